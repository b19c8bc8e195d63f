// Package scheduler drives the background refresh of every registered
// cache key. It is the only writer to the cache store: handlers and
// clients read what the scheduler last produced and never trigger a
// provider fetch themselves.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/finboard/finboard/pkg/guard"
	"github.com/finboard/finboard/pkg/logging"
	"github.com/finboard/finboard/pkg/store"
)

// Config holds scheduler configuration.
type Config struct {
	// Tick is the evaluation interval for due tasks.
	Tick time.Duration

	// RefreshTimeout is the hard ceiling on one provider fetch. A fetch
	// that exceeds it counts as a failure.
	RefreshTimeout time.Duration

	// UnhealthyAfter flags a task unhealthy at this failure streak. The
	// task keeps retrying regardless.
	UnhealthyAfter int

	// PrewarmAttempts bounds the exponential-backoff retries of the
	// startup prewarm pass.
	PrewarmAttempts int

	// PrewarmBackoff is the initial prewarm retry backoff.
	PrewarmBackoff time.Duration

	// StaggerMax adds a random pause before each tick-driven refresh so
	// simultaneously due tasks do not hit providers in one burst.
	// 0 disables staggering.
	StaggerMax time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Tick:            5 * time.Second,
		RefreshTimeout:  30 * time.Second,
		UnhealthyAfter:  3,
		PrewarmAttempts: 3,
		PrewarmBackoff:  time.Second,
		StaggerMax:      2 * time.Second,
	}
}

// Scheduler owns the refresh task registry and the tick loop. Multiple
// independent schedulers can coexist; all shared state is injected.
type Scheduler struct {
	store  store.Store
	guard  guard.Guard
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   map[string]*taskState
	order   []string
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler writing through g into st.
func New(st store.Store, g guard.Guard, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}
	if cfg.UnhealthyAfter <= 0 {
		cfg.UnhealthyAfter = def.UnhealthyAfter
	}
	if cfg.PrewarmAttempts <= 0 {
		cfg.PrewarmAttempts = def.PrewarmAttempts
	}
	if cfg.PrewarmBackoff <= 0 {
		cfg.PrewarmBackoff = def.PrewarmBackoff
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		store:  st,
		guard:  g,
		cfg:    cfg,
		clock:  clk,
		logger: logging.NewLogger("scheduler"),
		tasks:  make(map[string]*taskState),
	}
}

// Register adds a refresh task. Must be called before Start.
func (s *Scheduler) Register(task Task) error {
	if task.Key == "" {
		return fmt.Errorf("task key cannot be empty")
	}
	if task.Provider == nil {
		return fmt.Errorf("task %q: provider cannot be nil", task.Key)
	}
	if task.TTL <= 0 {
		return fmt.Errorf("task %q: ttl must be positive", task.Key)
	}
	if task.ActiveInterval <= 0 {
		return fmt.Errorf("task %q: active interval must be positive", task.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.Key]; ok {
		return fmt.Errorf("task %q already registered", task.Key)
	}
	s.tasks[task.Key] = &taskState{task: task}
	s.order = append(s.order, task.Key)
	return nil
}

// Start launches the prewarm pass and the tick loop. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info().Int("tasks", len(s.snapshot())).Msg("Scheduler starting")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.prewarm()
	}()
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
}

// Stop halts the tick loop and waits for in-flight refreshes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop() {
	ticker := s.clock.Ticker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.runDue()
		}
	}
}

func (s *Scheduler) runDue() {
	now := s.clock.Now()
	for _, ts := range s.snapshot() {
		s.mu.Lock()
		due := ts.lastAttempt.IsZero() || now.Sub(ts.lastAttempt) >= ts.task.interval(now)
		s.mu.Unlock()
		if !due {
			continue
		}

		s.wg.Add(1)
		go func(ts *taskState) {
			defer s.wg.Done()
			if s.cfg.StaggerMax > 0 {
				if !s.pause(time.Duration(rand.Int63n(int64(s.cfg.StaggerMax)))) {
					return
				}
			}
			_ = s.refresh(context.Background(), ts)
		}(ts)
	}
}

// prewarm refreshes every task once at startup, retrying failures with
// exponential backoff so a transiently failing provider still gets its
// cache populated before the first tick-driven cycle.
func (s *Scheduler) prewarm() {
	var wg sync.WaitGroup
	for _, ts := range s.snapshot() {
		wg.Add(1)
		go func(ts *taskState) {
			defer wg.Done()
			backoff := s.cfg.PrewarmBackoff
			for attempt := 1; attempt <= s.cfg.PrewarmAttempts; attempt++ {
				err := s.refresh(context.Background(), ts)
				if err == nil || errors.Is(err, guard.ErrHeld) {
					return
				}
				if attempt == s.cfg.PrewarmAttempts {
					s.logger.Warn().
						Str("key", ts.task.Key).
						Int("attempts", attempt).
						Msg("Prewarm failed, task falls back to the regular cadence")
					return
				}
				s.logger.Warn().
					Str("key", ts.task.Key).
					Int("attempt", attempt).
					Dur("backoff", backoff).
					Msg("Prewarm attempt failed, retrying")
				if !s.pause(backoff) {
					return
				}
				backoff *= 2
			}
		}(ts)
	}
	wg.Wait()
	s.logger.Info().Msg("Prewarm pass complete")
}

// RunAll refreshes every task once, immediately and concurrently. The
// guard still applies, so tasks already refreshing are skipped. Blocks
// until the pass finishes.
func (s *Scheduler) RunAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ts := range s.snapshot() {
		wg.Add(1)
		go func(ts *taskState) {
			defer wg.Done()
			_ = s.refresh(ctx, ts)
		}(ts)
	}
	wg.Wait()
}

// RunKey refreshes a single task immediately. Returns guard.ErrHeld when
// a refresh for the key is already in flight.
func (s *Scheduler) RunKey(ctx context.Context, key string) error {
	s.mu.Lock()
	ts, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no task registered for key %q", key)
	}
	return s.refresh(ctx, ts)
}

// refresh performs one guarded provider fetch and, on success, writes the
// result to the store. Failures leave any existing entry untouched.
func (s *Scheduler) refresh(ctx context.Context, ts *taskState) error {
	key := ts.task.Key

	if err := s.guard.TryAcquire(ctx, key); err != nil {
		if errors.Is(err, guard.ErrHeld) {
			RefreshTotal.WithLabelValues(key, "skipped").Inc()
			s.logger.Debug().Str("key", key).Msg("Refresh already in flight, skipping")
		}
		return err
	}
	// The lock must be released on every exit path, even when ctx died.
	defer s.guard.Release(context.WithoutCancel(ctx), key)

	now := s.clock.Now()
	s.mu.Lock()
	ts.lastAttempt = now
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.RefreshTimeout)
	defer cancel()

	start := time.Now()
	value, err := ts.task.Provider.Fetch(fetchCtx)
	RefreshDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())

	if err == nil {
		err = s.store.Put(ctx, key, value, ts.task.TTL)
		if err != nil {
			err = fmt.Errorf("store refreshed value: %w", err)
		}
	}

	if err != nil {
		s.mu.Lock()
		ts.consecutiveFailures++
		failures := ts.consecutiveFailures
		s.mu.Unlock()

		RefreshTotal.WithLabelValues(key, "failure").Inc()
		ConsecutiveFailures.WithLabelValues(key).Set(float64(failures))

		evt := s.logger.Warn()
		if failures == s.cfg.UnhealthyAfter {
			// Flagged, not disabled: the task stays on its cadence.
			evt = s.logger.Error()
		}
		evt.Err(err).
			Str("key", key).
			Int("consecutive_failures", failures).
			Msg("Refresh failed, existing entry kept")
		return err
	}

	s.mu.Lock()
	ts.lastSuccess = s.clock.Now()
	ts.consecutiveFailures = 0
	s.mu.Unlock()

	RefreshTotal.WithLabelValues(key, "success").Inc()
	ConsecutiveFailures.WithLabelValues(key).Set(0)

	s.logger.Debug().
		Str("key", key).
		Dur("ttl", ts.task.TTL).
		Dur("duration", time.Since(start)).
		Msg("Refresh succeeded")
	return nil
}

// Status returns the per-key health snapshot, sorted by key.
func (s *Scheduler) Status() []TaskStatus {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, ts := range s.tasks {
		st := TaskStatus{
			Key:                 ts.task.Key,
			ConsecutiveFailures: ts.consecutiveFailures,
			IntervalSeconds:     int64(ts.task.interval(now) / time.Second),
			Healthy:             ts.consecutiveFailures < s.cfg.UnhealthyAfter,
		}
		if !ts.lastAttempt.IsZero() {
			at := ts.lastAttempt
			st.LastAttempt = &at
		}
		if !ts.lastSuccess.IsZero() {
			at := ts.lastSuccess
			st.LastSuccess = &at
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Key < statuses[j].Key })
	return statuses
}

// pause sleeps on the scheduler clock, returning false when the
// scheduler stopped meanwhile.
func (s *Scheduler) pause(d time.Duration) bool {
	timer := s.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.done:
		return false
	}
}

func (s *Scheduler) snapshot() []*taskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*taskState, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.tasks[key])
	}
	return out
}
