package storage

import (
	"context"
	"sync"
	"time"
)

// CleanupInterval is how often expired entries are swept.
const CleanupInterval = 30 * time.Second

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryBackend keeps everything in process memory. Update never conflicts
// because it runs under the store lock.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	stopCleanup chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

func NewMemoryBackend() *MemoryBackend {
	m := &MemoryBackend{
		entries:     make(map[string]memoryEntry),
		stopCleanup: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

func (m *MemoryBackend) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.expireEntries()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *MemoryBackend) expireEntries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
		}
	}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.entries[key]
	if !exists || entry.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return cloneBytes(entry.value), nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = newMemoryEntry(value, ttl)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current []byte
	if entry, exists := m.entries[key]; exists && !entry.expired(time.Now()) {
		current = cloneBytes(entry.value)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	m.entries[key] = newMemoryEntry(next, ttl)
	return nil
}

// Close stops the background cleanup and waits for it to finish.
func (m *MemoryBackend) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCleanup)
		m.wg.Wait()
	})
	return nil
}

func newMemoryEntry(value []byte, ttl time.Duration) memoryEntry {
	entry := memoryEntry{value: cloneBytes(value)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	return entry
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
