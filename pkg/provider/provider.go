// Package provider defines the upstream data-fetching collaborator and
// resilience wrappers around it. Providers are slow, rate-limited and
// flaky; everything here exists to keep those properties away from the
// read path.
package provider

import (
	"context"
	"encoding/json"
)

// Provider computes the current value for one logical dataset. A fetch
// may take seconds and may fail; it is only ever invoked from behind the
// refresh guard, never from request handling.
type Provider interface {
	Fetch(ctx context.Context) (json.RawMessage, error)
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context) (json.RawMessage, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context) (json.RawMessage, error) {
	return f(ctx)
}

// Static returns a Provider that always yields the given value.
// Useful for wiring fixed reference data and in examples.
func Static(value json.RawMessage) Provider {
	return Func(func(context.Context) (json.RawMessage, error) {
		return value, nil
	})
}
