package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// UpdateFunc receives the current raw value (nil when absent) and returns
// the value to store. An error aborts the update without writing.
type UpdateFunc func(current []byte) ([]byte, error)

// Backend is a raw key-value store. A ttl of zero means no expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Update is an atomic read-modify-write of a single key. It returns
	// domain.ErrConflict when another writer changed the key first.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
	Close() error
}
