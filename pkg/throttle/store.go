package throttle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStoreUnavailable wraps every counter store failure
var ErrStoreUnavailable = errors.New("counter store unavailable")

// Counter is the state of one consumer key in one window
type Counter struct {
	Key     string
	Count   int64
	ResetAt time.Time
}

// Store keeps rate-limit counters. Increment must be atomic per key: it
// resets an expired window, then increments and returns the new count.
// Counters are never rolled back once over the limit.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)
	Get(ctx context.Context, key string) (Counter, error)
	Reset(ctx context.Context, key string) error
}

// MemoryStore is a process-local store with one lock per key
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

type memoryCounter struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
	swept   bool
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

func (s *MemoryStore) counter(key string) *memoryCounter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &memoryCounter{}
		s.counters[key] = c
	}
	return c
}

// Increment implements Store
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}

	c := s.counter(key)
	c.mu.Lock()
	for c.swept {
		c.mu.Unlock()
		c = s.counter(key)
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	now := s.now()
	if !now.Before(c.resetAt) {
		c.count = 0
		c.resetAt = now.Add(window)
	}
	c.count++

	return Counter{Key: key, Count: c.count, ResetAt: c.resetAt}, nil
}

// Get implements Store. Expired and unknown keys report a zero count.
func (s *MemoryStore) Get(ctx context.Context, key string) (Counter, error) {
	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}

	s.mu.Lock()
	c, ok := s.counters[key]
	s.mu.Unlock()
	if !ok {
		return Counter{Key: key}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.now().Before(c.resetAt) {
		return Counter{Key: key}, nil
	}
	return Counter{Key: key, Count: c.count, ResetAt: c.resetAt}, nil
}

// Reset implements Store
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[key]; ok {
		c.mu.Lock()
		c.swept = true
		c.mu.Unlock()
		delete(s.counters, key)
	}
	return nil
}

// Sweep drops expired counters and returns how many were removed
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, c := range s.counters {
		c.mu.Lock()
		if !now.Before(c.resetAt) {
			c.swept = true
			delete(s.counters, key)
			removed++
		}
		c.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
