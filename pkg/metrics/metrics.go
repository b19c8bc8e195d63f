// Package metrics provides the centralized Prometheus metrics registry
// for the dashboard cache. All metrics are defined in their respective
// packages (store, scheduler, gateway) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the dashboard
// cache. All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/store):
//   - finboard_cache_hits_total{backend, freshness} (Counter): Cache hits by backend and fresh/stale
//   - finboard_cache_misses_total{backend} (Counter): Cache misses
//   - finboard_cache_writes_total{backend} (Counter): Successful cache writes
//   - finboard_cache_errors_total{backend, operation} (Counter): Cache operation errors
//
// Refresh Metrics (pkg/scheduler):
//   - finboard_refresh_total{key, outcome} (Counter): Refresh attempts by key and success/failure/skipped
//   - finboard_refresh_duration_seconds{key} (Histogram): Provider fetch duration by key
//   - finboard_refresh_consecutive_failures{key} (Gauge): Current failure streak by key
//
// Read Metrics (pkg/gateway):
//   - finboard_reads_total{status} (Counter): Reads by envelope status (ok, warming_up, error)
//   - finboard_stale_reads_total (Counter): Reads answered with an expired entry
//   - finboard_request_duration_seconds{route} (Histogram): HTTP handler latency by route
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(finboard_cache_hits_total[5m])) /
//   (sum(rate(finboard_cache_hits_total[5m])) + sum(rate(finboard_cache_misses_total[5m])))
//
//   # Stale Read Ratio
//   rate(finboard_stale_reads_total[5m]) / rate(finboard_reads_total{status="ok"}[5m])
//
//   # Keys Currently Failing
//   finboard_refresh_consecutive_failures > 0
//
//   # P95 Read Latency
//   histogram_quantile(0.95, rate(finboard_request_duration_seconds_bucket[5m]))
