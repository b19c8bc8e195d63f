// Package guard provides per-key mutual exclusion for cache refreshes.
// At most one refresh per key may be in flight, no matter how many
// schedulers or admin warmup calls race for it. A second acquirer is
// rejected with ErrHeld rather than queued: the scheduler retries on its
// own cadence, so waiting would only pile up redundant provider calls.
package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld indicates a refresh for the key is already in flight.
var ErrHeld = errors.New("refresh already in flight")

// Guard limits concurrent refreshes to one per key. Releasing must happen
// on every exit path of the guarded work, including timeouts and panics.
type Guard interface {
	// TryAcquire claims the key. Returns ErrHeld when another refresh
	// holds it. Never blocks.
	TryAcquire(ctx context.Context, key string) error

	// Release frees the key. Releasing an unheld key is a no-op.
	Release(ctx context.Context, key string)
}

// KeyGuard is an in-process Guard backed by a set of held keys.
// Unrelated keys never block each other; the mutex only covers set
// membership, never the guarded work itself.
type KeyGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyGuard creates an in-process guard.
func NewKeyGuard() *KeyGuard {
	return &KeyGuard{held: make(map[string]struct{})}
}

// TryAcquire claims the key.
func (g *KeyGuard) TryAcquire(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return ErrHeld
	}
	g.held[key] = struct{}{}
	return nil
}

// Release frees the key.
func (g *KeyGuard) Release(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}
