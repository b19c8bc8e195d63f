package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadsTotal tracks gateway reads by response status
	ReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finboard_reads_total",
			Help: "Total gateway reads by response status",
		},
		[]string{"status"}, // "ok", "warming_up", "error"
	)

	// StaleReadsTotal tracks ok responses that served an expired entry
	StaleReadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finboard_stale_reads_total",
			Help: "Total reads served from an expired cache entry",
		},
	)

	// RequestDuration tracks HTTP handler latency by route
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finboard_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"route"},
	)
)
