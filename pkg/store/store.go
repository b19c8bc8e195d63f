package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested key has no entry.
	// Readers translate this into the warming_up state.
	ErrNotFound = errors.New("cache entry not found")

	// ErrUnavailable indicates the store itself is unreachable.
	// This is distinct from ErrNotFound: a missing key means a refresh is
	// pending, an unreachable store is an infrastructure failure.
	ErrUnavailable = errors.New("cache store unavailable")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the keyed TTL cache shared by the scheduler (writer) and the
// gateway (reader). Get returns expired entries as long as they are still
// physically retained, so readers can serve stale values instead of
// blocking on a refresh.
type Store interface {
	// Get retrieves the entry for key. Returns ErrNotFound when no entry
	// exists and ErrUnavailable when the backing store cannot be reached.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put atomically replaces the entry for key.
	Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error

	// Clear removes the entry for key. Clearing a missing key is a no-op.
	Clear(ctx context.Context, key string) error

	// ClearAll removes every entry.
	ClearAll(ctx context.Context) error

	// Keys lists the keys that currently hold an entry.
	Keys(ctx context.Context) ([]string, error)
}

// DefaultStaleFor is the default retention window past the TTL during
// which an expired entry remains servable as stale.
const DefaultStaleFor = 30 * time.Minute
