package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MemoryStore is an in-process Store. It backs single-process deployments
// that run without Redis and most unit tests. Expired entries are retained
// for the stale window and evicted lazily on access.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	staleFor time.Duration
	clock    clock.Clock
}

// NewMemory creates an in-process store.
// staleFor <= 0 falls back to DefaultStaleFor.
func NewMemory(staleFor time.Duration) *MemoryStore {
	return NewMemoryWithClock(staleFor, clock.New())
}

// NewMemoryWithClock creates an in-process store on an injected clock.
func NewMemoryWithClock(staleFor time.Duration, clk clock.Clock) *MemoryStore {
	if staleFor <= 0 {
		staleFor = DefaultStaleFor
	}
	return &MemoryStore{
		entries:  make(map[string]*Entry),
		staleFor: staleFor,
		clock:    clk,
	}
}

// Get retrieves the entry for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	now := s.clock.Now()
	if ok && now.After(entry.ExpiresAt().Add(s.staleFor)) {
		// Retention window over, the entry is gone for good. A Put may
		// have replaced it since the read above; only evict the entry
		// this reader actually saw, never a refreshed one.
		s.mu.Lock()
		if cur, still := s.entries[key]; still && cur == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		ok = false
	}
	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrNotFound
	}

	freshness := "stale"
	if entry.Fresh(now) {
		freshness = "fresh"
	}
	CacheHits.WithLabelValues("memory", freshness).Inc()

	// Entries are immutable, hand out a shallow copy so callers cannot
	// touch the stored one.
	cp := *entry
	return &cp, nil
}

// Put atomically replaces the entry for key.
func (s *MemoryStore) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive (got %v)", ttl)
	}

	entry := &Entry{
		Key:      key,
		Value:    value,
		CachedAt: s.clock.Now(),
		TTL:      ttl,
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	CacheWrites.WithLabelValues("memory").Inc()
	return nil
}

// Clear removes the entry for key.
func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// ClearAll removes every entry.
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
	return nil
}

// Keys lists the keys that currently hold an entry.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys, nil
}
