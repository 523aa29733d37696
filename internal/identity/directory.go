package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/storage"
)

// Loader is the read side of a storage.Store.
type Loader interface {
	Load(ctx context.Context, scope storage.Scope, key string, dst any) (bool, error)
}

// registration is one entry of register_responses. The sign-up form has
// written both "email" and "Email" over time; encoding/json matches either.
type registration struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Password is the plain text of records written by the old sign-up form.
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// CurrentUser returns the logged in user or nil. The login page stores only
// name and email, so a missing id is taken from the registration record and
// finally from the email itself.
func CurrentUser(ctx context.Context, st Loader) (*domain.User, error) {
	var user domain.User
	found, err := st.Load(ctx, storage.Durable, storage.KeyCurrentUser, &user)
	if err != nil {
		return nil, fmt.Errorf("load current user: %w", err)
	}
	if !found || user.Email == "" && user.ID == "" {
		return nil, nil
	}

	if user.ID == "" {
		registered, ok, err := LookupRegistered(ctx, st, user.Email)
		if err != nil {
			return nil, err
		}
		if ok {
			user.ID = registered.ID
			if user.Name == "" {
				user.Name = registered.Name
			}
		}
	}
	if user.ID == "" {
		user.ID = user.Email
	}
	return &user, nil
}

// LookupRegistered finds the registration for email. Name and id fall back
// to the email when the record has none.
func LookupRegistered(ctx context.Context, st Loader, email string) (domain.User, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, false, nil
	}

	var records []registration
	found, err := st.Load(ctx, storage.Durable, storage.KeyRegisterResponses, &records)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load registrations: %w", err)
	}
	if !found {
		return domain.User{}, false, nil
	}

	for _, r := range records {
		if r.Email == email {
			return r.user(), true, nil
		}
	}
	return domain.User{}, false, nil
}
