package scheduler

import (
	"time"

	"github.com/finboard/finboard/pkg/provider"
)

// ActiveFunc reports whether a task's market is in its active period at
// the given instant. Hours.Active is the stock implementation.
type ActiveFunc func(at time.Time) bool

// Task describes one registered refresh: which key to keep warm, how, and
// on what cadence. Tasks are created at startup and never destroyed.
type Task struct {
	// Key is the cache key the task maintains.
	Key string

	// Provider computes the value on each refresh.
	Provider provider.Provider

	// TTL is the freshness window written with every successful value.
	TTL time.Duration

	// ActiveInterval is the refresh period during active hours.
	ActiveInterval time.Duration

	// InactiveInterval is the refresh period outside active hours.
	// 0 falls back to ActiveInterval.
	InactiveInterval time.Duration

	// Active selects between the two intervals. nil means always active.
	Active ActiveFunc
}

// interval returns the refresh period in effect at the given instant.
func (t Task) interval(at time.Time) time.Duration {
	if t.Active == nil || t.Active(at) {
		return t.ActiveInterval
	}
	if t.InactiveInterval > 0 {
		return t.InactiveInterval
	}
	return t.ActiveInterval
}

// taskState is a Task plus its runtime counters, owned by one Scheduler.
type taskState struct {
	task                Task
	lastAttempt         time.Time
	lastSuccess         time.Time
	consecutiveFailures int
}

// TaskStatus is the health snapshot exposed per key.
type TaskStatus struct {
	Key                 string     `json:"key"`
	LastAttempt         *time.Time `json:"last_attempt"`
	LastSuccess         *time.Time `json:"last_success"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	IntervalSeconds     int64      `json:"interval"`
	Healthy             bool       `json:"healthy"`
}
