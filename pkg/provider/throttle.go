package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ThrottleConfig paces provider calls so a burst of due refreshes cannot
// hammer a rate-limited upstream.
type ThrottleConfig struct {
	// MaxPerMinute caps fetches in any sliding 60s window. 0 disables
	// the cap.
	MaxPerMinute int

	// MinDelay and MaxDelay bound a random pause applied before every
	// fetch to decorrelate bursts.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultThrottleConfig mirrors the pacing used against free market-data
// endpoints: ten calls a minute with a 1-3s pre-fetch pause.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxPerMinute: 10,
		MinDelay:     time.Second,
		MaxDelay:     3 * time.Second,
	}
}

// Throttler is a shared pacer. One throttler typically serves every
// provider that talks to the same upstream host.
type Throttler struct {
	cfg   ThrottleConfig
	clock clock.Clock

	mu    sync.Mutex
	calls []time.Time
}

// NewThrottler creates a throttler.
func NewThrottler(cfg ThrottleConfig) *Throttler {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Throttler{cfg: cfg, clock: clk}
}

// Wait blocks until a call slot is free, then applies the random delay.
// Returns early with the context error on cancellation.
func (t *Throttler) Wait(ctx context.Context) error {
	if t.cfg.MaxPerMinute > 0 {
		for {
			wait := t.reserve()
			if wait <= 0 {
				break
			}
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	if t.cfg.MaxDelay > 0 {
		delay := t.cfg.MinDelay
		if span := t.cfg.MaxDelay - t.cfg.MinDelay; span > 0 {
			delay += time.Duration(rand.Int63n(int64(span)))
		}
		if err := t.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// reserve records the call if a slot is free and returns 0, otherwise
// returns how long until the oldest tracked call ages out of the window.
func (t *Throttler) reserve() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	cutoff := now.Add(-time.Minute)
	kept := t.calls[:0]
	for _, at := range t.calls {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	t.calls = kept

	if len(t.calls) < t.cfg.MaxPerMinute {
		t.calls = append(t.calls, now)
		return 0
	}
	return t.calls[0].Sub(cutoff)
}

func (t *Throttler) sleep(ctx context.Context, d time.Duration) error {
	timer := t.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type throttledProvider struct {
	inner    Provider
	throttle *Throttler
}

// WithThrottle wraps a provider so every fetch first passes the shared
// throttler.
func WithThrottle(inner Provider, throttle *Throttler) Provider {
	return &throttledProvider{inner: inner, throttle: throttle}
}

// Fetch waits for pacing, then calls the inner provider.
func (p *throttledProvider) Fetch(ctx context.Context) (json.RawMessage, error) {
	if err := p.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttled fetch: %w", err)
	}
	return p.inner.Fetch(ctx)
}
