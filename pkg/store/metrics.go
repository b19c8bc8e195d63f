package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend and freshness
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finboard_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend", "freshness"}, // "redis"/"memory", "fresh"/"stale"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finboard_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"backend"},
	)

	// CacheWrites tracks successful cache writes by backend
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finboard_cache_writes_total",
			Help: "Total number of cache entry writes",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finboard_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "put", "clear", "keys"
	)
)
