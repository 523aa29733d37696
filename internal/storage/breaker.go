package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/stonehub/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	Name string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// OnStateChange, if set, is called with the new state name
	// ("closed", "half-open" or "open").
	OnStateChange func(name, state string)
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, ConsecutiveFailures: 5, OpenTimeout: 10 * time.Second}
}

// BreakerBackend fails fast while the wrapped backend is unhealthy. Misses,
// conflicts and errors returned by an UpdateFunc do not count as failures.
type BreakerBackend struct {
	next Backend
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewBreakerBackend(next Backend, cfg BreakerConfig, log *zap.Logger) *BreakerBackend {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, domain.ErrConflict)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("storage breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, to.String())
			}
		},
	}
	return &BreakerBackend{next: next, cb: gobreaker.NewCircuitBreaker[[]byte](settings)}
}

func (b *BreakerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.cb.Execute(func() ([]byte, error) {
		return b.next.Get(ctx, key)
	})
	return value, b.wrap(err)
}

func (b *BreakerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Set(ctx, key, value, ttl)
	})
	return b.wrap(err)
}

func (b *BreakerBackend) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return b.wrap(err)
}

func (b *BreakerBackend) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	var fnErr error
	_, err := b.cb.Execute(func() ([]byte, error) {
		err := b.next.Update(ctx, key, ttl, func(current []byte) ([]byte, error) {
			next, err := fn(current)
			fnErr = err
			return next, err
		})
		if fnErr != nil {
			return nil, nil
		}
		return nil, err
	})
	if fnErr != nil {
		return fnErr
	}
	return b.wrap(err)
}

func (b *BreakerBackend) Close() error {
	return b.next.Close()
}

func (b *BreakerBackend) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.cb.Name(), err)
	}
	return err
}
