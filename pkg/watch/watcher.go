package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/finboard/finboard/pkg/gateway"
	"github.com/finboard/finboard/pkg/logging"
)

// DefaultResultTTL is the lifetime of locally cached ok envelopes.
// Long enough to absorb render-loop bursts, short enough that a freshly
// refreshed backend value is picked up on the next poll cycle.
const DefaultResultTTL = 2 * time.Second

// Config holds watcher configuration. The zero value works.
type Config struct {
	// WarmingCeiling bounds the warming state per key.
	// Defaults to DefaultWarmingCeiling.
	WarmingCeiling time.Duration

	// ResultTTL is the lifetime of the local result cache.
	// Defaults to DefaultResultTTL.
	ResultTTL time.Duration

	// Handler receives display updates. Optional.
	Handler Handler

	// Clock defaults to the wall clock. The result cache always runs on
	// wall time.
	Clock clock.Clock
}

// Watcher polls read envelopes for any number of keys and maintains one
// display state machine per key. Concurrent polls for the same key
// collapse into a single upstream read, and ok results are served from
// a local cache for a short window.
type Watcher struct {
	reader  Reader
	cfg     Config
	clock   clock.Clock
	handler Handler
	logger  zerolog.Logger

	group   singleflight.Group
	results *ristretto.Cache

	mu       sync.Mutex
	machines map[string]*Machine
}

// NewWatcher creates a watcher reading through r.
func NewWatcher(r Reader, cfg Config) (*Watcher, error) {
	if r == nil {
		return nil, fmt.Errorf("watch: reader must not be nil")
	}
	if cfg.WarmingCeiling <= 0 {
		cfg.WarmingCeiling = DefaultWarmingCeiling
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	// A dashboard watches tens of keys, so the cache is deliberately
	// tiny. Cost 1 per envelope keeps MaxCost an entry count.
	results, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 10,
		MaxCost:     256,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	return &Watcher{
		reader:   r,
		cfg:      cfg,
		clock:    clk,
		handler:  cfg.Handler,
		logger:   logging.NewLogger("watch"),
		results:  results,
		machines: make(map[string]*Machine),
	}, nil
}

// Poll reads the envelope for key, driving the key's state machine.
// Concurrent polls for the same key share one upstream read, and a
// recently seen ok envelope is returned without touching upstream at
// all. A transport failure surfaces as both the returned error and an
// error envelope.
func (w *Watcher) Poll(ctx context.Context, key string) (gateway.Envelope, error) {
	if cached, ok := w.results.Get(key); ok {
		return cached.(gateway.Envelope), nil
	}

	m := w.machine(key)
	m.Begin()

	// The machine is driven inside the singleflight function, so N
	// coalesced polls produce one observation and one handler update,
	// not N identical ones.
	v, err, _ := w.group.Do(key, func() (any, error) {
		env, err := w.reader.Read(ctx, key)
		if err != nil {
			w.logger.Warn().Err(err).Str("key", key).Msg("Poll failed")
			msg := msgUnavailable
			env = gateway.Envelope{Status: gateway.StatusError, Message: &msg}
			m.Observe(env)
			return env, err
		}
		m.Observe(env)
		if env.Status == gateway.StatusOK {
			w.results.SetWithTTL(key, env, 1, w.cfg.ResultTTL)
		}
		return env, nil
	})
	return v.(gateway.Envelope), err
}

// Refresh drops the locally cached result for key and polls again.
// The backend decides whether the underlying entry is due; Refresh only
// guarantees the next envelope is not served from the local cache.
func (w *Watcher) Refresh(ctx context.Context, key string) (gateway.Envelope, error) {
	w.results.Del(key)
	return w.Poll(ctx, key)
}

// State returns the display state of key. Keys never polled are in
// StateInit.
func (w *Watcher) State(key string) State {
	w.mu.Lock()
	m, ok := w.machines[key]
	w.mu.Unlock()
	if !ok {
		return StateInit
	}
	return m.State()
}

// Stop cancels all warming timers and releases the result cache. The
// watcher must not be used afterwards.
func (w *Watcher) Stop() {
	w.mu.Lock()
	machines := make([]*Machine, 0, len(w.machines))
	for _, m := range w.machines {
		machines = append(machines, m)
	}
	w.mu.Unlock()

	for _, m := range machines {
		m.Stop()
	}
	w.results.Close()
}

func (w *Watcher) machine(key string) *Machine {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, ok := w.machines[key]
	if !ok {
		m = NewMachine(key, w.cfg.WarmingCeiling, w.clock, w.handler)
		w.machines[key] = m
	}
	return m
}
