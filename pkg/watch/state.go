// Package watch is the client side of the cache: it polls read
// envelopes for a set of keys, runs the per-key display state machine,
// coalesces concurrent polls and keeps a short-lived local result
// cache so a busy UI does not hammer the read surface.
package watch

import "github.com/finboard/finboard/pkg/gateway"

// State is the display state of one watched key.
type State int

const (
	// StateInit is the state before the first poll.
	StateInit State = iota

	// StateLoading covers the first poll in flight.
	StateLoading

	// StateDisplayed means a value (fresh or stale) is on screen.
	StateDisplayed

	// StateWarming means the backend has no value yet and the watcher
	// is waiting, bounded by the warming ceiling.
	StateWarming

	// StateErrored means the key shows an error message until a later
	// poll delivers a value.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoading:
		return "loading"
	case StateDisplayed:
		return "displayed"
	case StateWarming:
		return "warming"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Update is delivered to the handler on every state change and on every
// new value for a displayed key.
type Update struct {
	Key   string
	State State

	// Envelope carries the value for StateDisplayed updates. nil for
	// the other states.
	Envelope *gateway.Envelope

	// Message is the display text for StateWarming and StateErrored.
	Message string
}

// Handler receives updates. It is called from polling goroutines and
// from timer callbacks; implementations must not call back into the
// watcher synchronously.
type Handler func(Update)
