// Package dedup remembers which webhook events have already been applied.
package dedup

import (
	"context"
	"sync"
	"time"
)

// KeyPrefix namespaces dedup keys in a shared Redis.
const KeyPrefix = "tutorhub:webhook:"

// DefaultTTL is how long an event id is remembered.
const DefaultTTL = 72 * time.Hour

// Store is an expiring key set.
type Store interface {
	// Claim records key and reports whether it was not already present.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a failed event can be replayed.
	Release(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Claim implements Store.
func (s *MemoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evict(now)

	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(s.now())
	return len(s.entries)
}

func (s *MemoryStore) evict(now time.Time) {
	for key, expires := range s.entries {
		if !now.Before(expires) {
			delete(s.entries, key)
		}
	}
}
