package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	counter Counter
	period  time.Duration
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use. Counters are lost on process restart and are
// only shared by callers within the same process.
type MemoryStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*entry
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock the store reads "now" from.
func WithMemoryClock(c clockwork.Clock) MemoryOption {
	return func(m *MemoryStore) {
		m.clock = c
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		clock:   clockwork.NewRealClock(),
		entries: make(map[string]*entry),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Increment atomically adds n to the decayed counter for key if it fits.
func (m *MemoryStore) Increment(_ context.Context, key string, n int64, l Limit) (Result, error) {
	return m.apply(key, l, incrementOp(n, l)), nil
}

// Decrement atomically subtracts n from the decayed counter for key.
func (m *MemoryStore) Decrement(_ context.Context, key string, n int64, l Limit) (float64, error) {
	return m.apply(key, l, decrementOp(n, l)).Used, nil
}

// Peek returns the decayed counter for key without changing it.
func (m *MemoryStore) Peek(_ context.Context, key string, n int64, l Limit) (Result, error) {
	return m.apply(key, l, peekOp(n, l)), nil
}

// Reset sets the counter for key to zero.
func (m *MemoryStore) Reset(_ context.Context, key string, l Limit) error {
	m.apply(key, l, resetOp())
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) apply(key string, l Limit, fn op) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var c Counter
	if e, ok := m.entries[key]; ok {
		c = e.counter
		// Idle for a whole period: the key has expired.
		if now.Sub(c.Timestamp) >= e.period {
			delete(m.entries, key)
			c = Counter{}
		}
	}

	next, res := fn(c, now)
	if next != nil {
		m.entries[key] = &entry{counter: *next, period: l.Period}
	}
	return res
}
