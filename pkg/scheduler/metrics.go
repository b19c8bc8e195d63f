package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshTotal tracks refresh executions by key and outcome
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finboard_refresh_total",
			Help: "Total refresh executions by key and outcome",
		},
		[]string{"key", "outcome"}, // "success", "failure", "skipped"
	)

	// RefreshDuration tracks provider fetch duration by key
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finboard_refresh_duration_seconds",
			Help:    "Refresh duration in seconds by key",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"key"},
	)

	// ConsecutiveFailures tracks the current failure streak by key
	ConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "finboard_refresh_consecutive_failures",
			Help: "Current consecutive refresh failures by key",
		},
		[]string{"key"},
	)
)
