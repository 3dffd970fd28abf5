package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the state of one counter after an operation.
type Result struct {
	Count int
	Reset time.Time
}

// Store is an atomic increment-with-expiry counter keyed by identity.
type Store interface {
	// Incr adds one to key's counter, starting a fresh window when none is
	// active, and returns the post-increment state.
	Incr(ctx context.Context, key string, window time.Duration) (Result, error)
	// Peek returns the current state without incrementing. A missing or
	// expired key reports Count 0.
	Peek(ctx context.Context, key string) (Result, error)
}

type memoryEntry struct {
	count int
	reset time.Time
}

// MemoryStore is the in-process Store. Counters for expired windows are
// evicted by a background sweep so idle clients do not accumulate.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore creates the store and starts the background sweep, which
// stops when ctx is cancelled.
func NewMemoryStore(ctx context.Context) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]*memoryEntry)}
	go s.sweep(ctx)
	return s
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (Result, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.reset) {
		e = &memoryEntry{reset: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return Result{Count: e.count, Reset: e.reset}, nil
}

func (s *MemoryStore) Peek(_ context.Context, key string) (Result, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.reset) {
		return Result{}, nil
	}
	return Result{Count: e.count, Reset: e.reset}, nil
}

func (s *MemoryStore) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.reset) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
