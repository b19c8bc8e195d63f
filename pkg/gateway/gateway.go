// Package gateway implements the synchronous read path between the
// cache store and browser clients. A read classifies what the store
// holds right now; it never calls a provider and never blocks on a
// refresh.
package gateway

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/finboard/finboard/pkg/logging"
	"github.com/finboard/finboard/pkg/store"
)

// Gateway serves cache reads as three-state envelopes.
type Gateway struct {
	store  store.Store
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock injects the clock used for freshness classification.
func WithClock(clk clock.Clock) Option {
	return func(g *Gateway) { g.clock = clk }
}

// New creates a gateway reading from st.
func New(st store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:  st,
		clock:  clock.New(),
		logger: logging.NewLogger("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Read classifies the store's current state for key:
//
//  1. store unreachable        -> error
//  2. no entry                 -> warming_up
//  3. entry fresh              -> ok
//  4. entry expired            -> ok, marked stale
//
// Once a key has ever held a value, a reader sees data (possibly stale)
// until the entry is cleared; staleness is disclosed, never hidden.
func (g *Gateway) Read(ctx context.Context, key string) Envelope {
	entry, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		ReadsTotal.WithLabelValues(string(StatusWarmingUp)).Inc()
		g.logger.Debug().Str("key", key).Msg("No entry yet, warming up")
		return warmingEnvelope()

	case err != nil:
		ReadsTotal.WithLabelValues(string(StatusError)).Inc()
		g.logger.Error().Err(err).Str("key", key).Msg("Cache store unreachable")
		return errorEnvelope(msgUnavailable)
	}

	stale := !entry.Fresh(g.clock.Now())
	ReadsTotal.WithLabelValues(string(StatusOK)).Inc()
	if stale {
		StaleReadsTotal.Inc()
		g.logger.Debug().
			Str("key", key).
			Time("cached_at", entry.CachedAt).
			Msg("Serving stale entry")
	}
	return okEnvelope(entry, stale)
}
