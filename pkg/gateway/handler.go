package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finboard/finboard/pkg/scheduler"
)

// Control is the slice of the scheduler the admin surface needs.
type Control interface {
	RunAll(ctx context.Context)
	RunKey(ctx context.Context, key string) error
	Status() []scheduler.TaskStatus
	Running() bool
}

// Handler returns the HTTP surface:
//
//	GET    /api/data/{key}    three-state read
//	POST   /cache/warmup      immediate out-of-band refresh pass
//	DELETE /cache/clear       clear one key (?key=) or all
//	GET    /cache/stats       key count and per-key freshness
//	GET    /scheduler/status  per-key health counters
//	GET    /health            liveness
//	GET    /metrics           prometheus
func (g *Gateway) Handler(ctrl Control) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/data/{key}", g.instrument("data", g.handleRead))
	mux.HandleFunc("POST /cache/warmup", g.instrument("warmup", g.handleWarmup(ctrl)))
	mux.HandleFunc("DELETE /cache/clear", g.instrument("clear", g.handleClear))
	mux.HandleFunc("GET /cache/stats", g.instrument("stats", g.handleStats))
	mux.HandleFunc("GET /scheduler/status", g.instrument("status", g.handleSchedulerStatus(ctrl)))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (g *Gateway) instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}()
		fn(w, r)
	}
}

func (g *Gateway) handleRead(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	env := g.Read(r.Context(), key)

	code := http.StatusOK
	if env.Status == StatusError {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, env)
}

// handleWarmup triggers a refresh pass without waiting for it: warmup is
// an administrative nudge, the caller polls the data endpoints to see
// the effect. The entry guard still applies.
func (g *Gateway) handleWarmup(ctrl Control) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := r.URL.Query().Get("key"); key != "" {
			go func() {
				_ = ctrl.RunKey(context.Background(), key)
			}()
			g.logger.Info().Str("key", key).Msg("Warmup triggered")
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "key": key})
			return
		}

		go ctrl.RunAll(context.Background())
		g.logger.Info().Msg("Full warmup triggered")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (g *Gateway) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var err error
	key := r.URL.Query().Get("key")
	if key != "" {
		err = g.store.Clear(ctx, key)
	} else {
		err = g.store.ClearAll(ctx)
	}
	if err != nil {
		g.logger.Error().Err(err).Str("key", key).Msg("Cache clear failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": msgUnavailable})
		return
	}

	g.logger.Info().Str("key", key).Msg("Cache cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "key": key})
}

// keyStats is one key's freshness in the stats listing.
type keyStats struct {
	Key      string    `json:"key"`
	CachedAt time.Time `json:"cached_at"`
	TTL      int64     `json:"ttl"`
	Fresh    bool      `json:"fresh"`
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keys, err := g.store.Keys(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": msgUnavailable})
		return
	}

	now := g.clock.Now()
	stats := make([]keyStats, 0, len(keys))
	for _, key := range keys {
		entry, err := g.store.Get(ctx, key)
		if err != nil {
			continue // evicted between Keys and Get
		}
		stats = append(stats, keyStats{
			Key:      key,
			CachedAt: entry.CachedAt,
			TTL:      int64(entry.TTL / time.Second),
			Fresh:    entry.Fresh(now),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keys_count": len(stats),
		"keys":       stats,
	})
}

func (g *Gateway) handleSchedulerStatus(ctrl Control) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"running": ctrl.Running(),
			"tasks":   ctrl.Status(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
