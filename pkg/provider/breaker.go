package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker settings for a provider.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker once reached.
	ConsecutiveFailures uint32

	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
}

// DefaultBreakerConfig returns settings suited to upstream market-data
// APIs: trip quickly, probe again after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenFor:             time.Minute,
	}
}

type breakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps a provider in a circuit breaker. While the breaker is
// open, Fetch fails immediately without touching the upstream; the
// scheduler counts that as an ordinary provider failure and keeps
// retrying on its cadence.
func WithBreaker(inner Provider, name string, cfg BreakerConfig, logger zerolog.Logger) Provider {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = DefaultBreakerConfig().OpenFor
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider circuit breaker state change")
		},
	})

	return &breakerProvider{inner: inner, cb: cb}
}

// Fetch executes the inner fetch through the breaker.
func (p *breakerProvider) Fetch(ctx context.Context) (json.RawMessage, error) {
	result, err := p.cb.Execute(func() (any, error) {
		return p.inner.Fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	value, _ := result.(json.RawMessage)
	return value, nil
}
