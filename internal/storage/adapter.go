package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"go.uber.org/zap"
)

// SchemaVersion is written into every envelope. Records carrying another
// version are treated as corrupt.
const SchemaVersion = 1

type Scope int

const (
	Durable Scope = iota
	Session
)

func (s Scope) String() string {
	switch s {
	case Durable:
		return "durable"
	case Session:
		return "session"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

type envelope struct {
	Version  int             `json:"v"`
	Revision uint64          `json:"rev"`
	Data     json.RawMessage `json:"data"`
}

type Options struct {
	Prefix     string
	SessionTTL time.Duration
	// MaxRetries bounds how often Update retries after a conflict.
	MaxRetries int
	// OnCorrupt is called whenever a corrupt record is discarded.
	OnCorrupt func(scope Scope, key string)
}

func DefaultOptions() Options {
	return Options{
		Prefix:     "stonehub",
		SessionTTL: 24 * time.Hour,
		MaxRetries: 3,
	}
}

// Adapter owns the durable and session backends. Use For to obtain a Store
// bound to one client.
type Adapter struct {
	durable Backend
	session Backend
	opts    Options
	log     *zap.Logger
}

func NewAdapter(durable, session Backend, log *zap.Logger, opts Options) *Adapter {
	if opts.Prefix == "" {
		opts.Prefix = DefaultOptions().Prefix
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Adapter{durable: durable, session: session, opts: opts, log: log}
}

// For returns a Store scoped to a client (the durable namespace) and one of
// its sessions.
func (a *Adapter) For(clientID, sessionID string) *Store {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return &Store{a: a, clientID: clientID, sessionID: sessionID}
}

func (a *Adapter) Close() error {
	errDurable := a.durable.Close()
	if a.session == a.durable {
		return errDurable
	}
	return errors.Join(errDurable, a.session.Close())
}

type Store struct {
	a         *Adapter
	clientID  string
	sessionID string
}

func (s *Store) ClientID() string  { return s.clientID }
func (s *Store) SessionID() string { return s.sessionID }

func (s *Store) resolve(scope Scope, key string) (Backend, string, time.Duration) {
	if scope == Session {
		return s.a.session, sessionKey(s.a.opts.Prefix, s.clientID, s.sessionID, key), s.a.opts.SessionTTL
	}
	return s.a.durable, durableKey(s.a.opts.Prefix, s.clientID, key), 0
}

// Load decodes the record into dst. It reports false when the record is
// missing or corrupt; corrupt durable records are deleted. Only backend
// failures are returned as errors.
func (s *Store) Load(ctx context.Context, scope Scope, key string, dst any) (bool, error) {
	backend, fullKey, _ := s.resolve(scope, key)

	raw, err := backend.Get(ctx, fullKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s %s: %w", scope, key, err)
	}

	if _, err := decode(raw, dst); err != nil {
		s.discard(ctx, scope, key, fullKey, err)
		return false, nil
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, scope Scope, key string, value any) error {
	backend, fullKey, ttl := s.resolve(scope, key)

	raw, err := encode(value, 1)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", scope, key, err)
	}
	if err := backend.Set(ctx, fullKey, raw, ttl); err != nil {
		return fmt.Errorf("save %s %s: %w", scope, key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, scope Scope, key string) error {
	backend, fullKey, _ := s.resolve(scope, key)
	if err := backend.Delete(ctx, fullKey); err != nil {
		return fmt.Errorf("remove %s %s: %w", scope, key, err)
	}
	return nil
}

// Update loads the record into dst (zeroed first), calls mutate and writes
// dst back, all as one atomic step of the backend. found is false when the
// record was missing or corrupt. On a concurrent write the whole cycle is
// retried against the fresh value up to MaxRetries times.
func (s *Store) Update(ctx context.Context, scope Scope, key string, dst any, mutate func(found bool) error) error {
	backend, fullKey, ttl := s.resolve(scope, key)
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("update %s %s: destination must be a non-nil pointer", scope, key)
	}

	var err error
	for attempt := 0; attempt <= s.a.opts.MaxRetries; attempt++ {
		err = backend.Update(ctx, fullKey, ttl, func(current []byte) ([]byte, error) {
			target.Elem().SetZero()

			found := false
			var revision uint64
			if current != nil {
				rev, decodeErr := decode(current, dst)
				if decodeErr != nil {
					target.Elem().SetZero()
					s.reportCorrupt(scope, key, decodeErr)
				} else {
					found, revision = true, rev
				}
			}

			if mutateErr := mutate(found); mutateErr != nil {
				return nil, mutateErr
			}
			return encode(dst, revision+1)
		})
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		s.a.log.Debug("storage update conflict, retrying",
			zap.String("scope", scope.String()),
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
		)
	}

	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("update %s %s: %w", scope, key, err)
	}
	return err
}

func (s *Store) discard(ctx context.Context, scope Scope, key, fullKey string, cause error) {
	s.reportCorrupt(scope, key, cause)
	if scope != Durable {
		return
	}
	if err := s.a.durable.Delete(ctx, fullKey); err != nil {
		s.a.log.Warn("failed to remove corrupt record", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) reportCorrupt(scope Scope, key string, cause error) {
	s.a.log.Warn("discarding corrupt record",
		zap.String("scope", scope.String()),
		zap.String("key", key),
		zap.String("client_id", s.clientID),
		zap.Error(cause),
	)
	if s.a.opts.OnCorrupt != nil {
		s.a.opts.OnCorrupt(scope, key)
	}
}

func encode(value any, revision uint64) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value failed: %w", err)
	}
	raw, err := json.Marshal(envelope{Version: SchemaVersion, Revision: revision, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope failed: %w", err)
	}
	return raw, nil
}

func decode(raw []byte, dst any) (uint64, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageCorrupt, err)
	}
	if env.Version != SchemaVersion {
		return 0, fmt.Errorf("%w: schema version %d, want %d", domain.ErrStorageCorrupt, env.Version, SchemaVersion)
	}
	if len(env.Data) == 0 {
		return 0, fmt.Errorf("%w: empty payload", domain.ErrStorageCorrupt)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageCorrupt, err)
	}
	return env.Revision, nil
}
