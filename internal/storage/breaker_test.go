package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var errUnavailable = errors.New("backend unavailable")

type failingBackend struct {
	*MemoryBackend
	fail  bool
	calls int
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.fail {
		return nil, errUnavailable
	}
	return f.MemoryBackend.Get(ctx, key)
}

func setupBreaker(t *testing.T) (*BreakerBackend, *failingBackend) {
	inner := &failingBackend{MemoryBackend: NewMemoryBackend()}
	cfg := BreakerConfig{Name: "session", ConsecutiveFailures: 2, OpenTimeout: time.Minute}
	b := NewBreakerBackend(inner, cfg, zap.NewNop())
	t.Cleanup(func() { b.Close() })
	return b, inner
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, inner := setupBreaker(t)
	inner.fail = true
	ctx := context.Background()

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, errUnavailable)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, errUnavailable)

	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the backend")
}

func TestBreaker_MissesDoNotTrip(t *testing.T) {
	b, inner := setupBreaker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := b.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 5, inner.calls)
}

func TestBreaker_UpdateFuncErrorsDoNotTrip(t *testing.T) {
	b, _ := setupBreaker(t)
	ctx := context.Background()
	abort := errors.New("order not found")

	for i := 0; i < 5; i++ {
		err := b.Update(ctx, "k", 0, func([]byte) ([]byte, error) { return nil, abort })
		assert.ErrorIs(t, err, abort)
	}

	err := b.Update(ctx, "k", 0, func([]byte) ([]byte, error) { return []byte("ok"), nil })
	assert.NoError(t, err)
}

func TestBreaker_ReportsStateChanges(t *testing.T) {
	inner := &failingBackend{MemoryBackend: NewMemoryBackend(), fail: true}
	var states []string
	cfg := BreakerConfig{
		Name:                "durable",
		ConsecutiveFailures: 1,
		OpenTimeout:         time.Minute,
		OnStateChange:       func(_, state string) { states = append(states, state) },
	}
	b := NewBreakerBackend(inner, cfg, zap.NewNop())
	defer b.Close()

	_, err := b.Get(context.Background(), "k")
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, []string{"open"}, states)
}
