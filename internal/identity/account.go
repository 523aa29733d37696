package identity

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Store is the part of storage.Store the account operations use.
type Store interface {
	Loader
	ClientID() string
	Save(ctx context.Context, scope storage.Scope, key string, value any) error
	Remove(ctx context.Context, scope storage.Scope, key string) error
	Update(ctx context.Context, scope storage.Scope, key string, dst any, mutate func(found bool) error) error
}

var accountMessages = map[string]string{
	"name":     "This field is required",
	"email":    "Please enter a valid email address",
	"password": "This field is required",
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// newRegistration is the record written on sign-up. Existing records are
// kept as they are.
type newRegistration struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Timestamp    time.Time `json:"timestamp"`
}

// Accounts registers visitors and keeps the logged in user of a client.
type Accounts struct {
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
	cost     int
}

func NewAccounts(log *zap.Logger) *Accounts {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		return name
	})
	return &Accounts{validate: v, log: log, now: time.Now, cost: bcrypt.DefaultCost}
}

// Register adds a registration record. The email must not be registered yet.
func (a *Accounts) Register(ctx context.Context, st Store, in RegisterInput) (domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := a.check(in); err != nil {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	record := newRegistration{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Timestamp:    a.now().UTC(),
	}

	var records []json.RawMessage
	err = st.Update(ctx, storage.Durable, storage.KeyRegisterResponses, &records, func(bool) error {
		if _, ok := findRegistration(records, in.Email); ok {
			return domain.ErrAlreadyRegistered
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return err
		}
		records = append(records, raw)
		return nil
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("register %s: %w", in.Email, err)
	}

	a.log.Info("user registered", zap.String("user_id", record.ID))
	return domain.User{ID: record.ID, Name: record.Name, Email: record.Email}, nil
}

// Login checks the credentials against the registration records and stores
// the user as the client's current user.
func (a *Accounts) Login(ctx context.Context, st Store, in LoginInput) (domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := a.check(in); err != nil {
		return domain.User{}, err
	}

	var records []json.RawMessage
	if _, err := st.Load(ctx, storage.Durable, storage.KeyRegisterResponses, &records); err != nil {
		return domain.User{}, fmt.Errorf("load registrations: %w", err)
	}
	record, ok := findRegistration(records, in.Email)
	if !ok {
		return domain.User{}, domain.ErrNotRegistered
	}
	if !passwordMatches(record, in.Password) {
		a.log.Info("login rejected", zap.String("client_id", st.ClientID()))
		return domain.User{}, domain.ErrInvalidCredentials
	}

	user := record.user()
	if err := st.Save(ctx, storage.Durable, storage.KeyCurrentUser, user); err != nil {
		return domain.User{}, fmt.Errorf("store current user: %w", err)
	}
	a.log.Info("user logged in", zap.String("user_id", user.ID))
	return user, nil
}

func (a *Accounts) Logout(ctx context.Context, st Store) error {
	if err := st.Remove(ctx, storage.Durable, storage.KeyCurrentUser); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (a *Accounts) check(in any) error {
	err := a.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := domain.NewValidationError()
	for _, fe := range fieldErrs {
		msg := accountMessages[fe.Field()]
		if fe.Tag() == "required" {
			msg = "This field is required"
		}
		verr.Add(fe.Field(), msg)
	}
	return verr
}

func findRegistration(records []json.RawMessage, email string) (registration, bool) {
	for _, raw := range records {
		var r registration
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		if r.Email == email {
			return r, true
		}
	}
	return registration{}, false
}

func passwordMatches(r registration, password string) bool {
	if r.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) == nil
	}
	return r.Password != "" && subtle.ConstantTimeCompare([]byte(r.Password), []byte(password)) == 1
}

func (r registration) user() domain.User {
	user := domain.User{ID: r.ID, Name: r.Name, Email: r.Email}
	if user.ID == "" {
		user.ID = r.Email
	}
	if user.Name == "" {
		user.Name = r.Email
	}
	return user
}
