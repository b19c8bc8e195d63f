package watch

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/finboard/finboard/pkg/gateway"
)

const (
	// DefaultWarmingCeiling bounds how long a key may sit in
	// StateWarming before it degrades to StateErrored.
	DefaultWarmingCeiling = 30 * time.Second

	msgWarming     = "data warming up"
	msgUnavailable = "data unavailable"
)

// Machine is the display state machine for one key. Envelope statuses
// drive it forward; a warming ceiling timer bounds how long warming_up
// responses keep the key in limbo.
type Machine struct {
	key     string
	ceiling time.Duration
	clock   clock.Clock
	handler Handler

	mu    sync.Mutex
	state State
	timer *clock.Timer
}

// NewMachine creates a machine in StateInit. handler may be nil.
func NewMachine(key string, ceiling time.Duration, clk clock.Clock, handler Handler) *Machine {
	if ceiling <= 0 {
		ceiling = DefaultWarmingCeiling
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Machine{
		key:     key,
		ceiling: ceiling,
		clock:   clk,
		handler: handler,
		state:   StateInit,
	}
}

// State returns the current display state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin marks the first poll in flight. It is a no-op unless the
// machine is still in StateInit.
func (m *Machine) Begin() {
	m.mu.Lock()
	if m.state != StateInit {
		m.mu.Unlock()
		return
	}
	m.state = StateLoading
	m.mu.Unlock()

	m.emit(Update{Key: m.key, State: StateLoading})
}

// Observe feeds one read result into the machine.
//
//	ok          -> StateDisplayed, ceiling timer cancelled
//	warming_up  -> StateWarming; the ceiling timer starts on the first
//	               warming response and is NOT reset by later ones, so
//	               the total wait stays bounded
//	error       -> StateErrored
//
// A key that already timed out stays in StateErrored on further
// warming_up responses; only an ok value brings it back.
func (m *Machine) Observe(env gateway.Envelope) {
	m.mu.Lock()

	switch env.Status {
	case gateway.StatusOK:
		m.stopTimerLocked()
		m.state = StateDisplayed
		m.mu.Unlock()
		// Every ok is emitted, not just the first: displayed keys get
		// their new values through the same path.
		m.emit(Update{Key: m.key, State: StateDisplayed, Envelope: &env})

	case gateway.StatusWarmingUp:
		if m.state == StateErrored || m.state == StateWarming {
			m.mu.Unlock()
			return
		}
		m.state = StateWarming
		if m.timer == nil {
			m.timer = m.clock.AfterFunc(m.ceiling, m.expire)
		}
		m.mu.Unlock()
		m.emit(Update{Key: m.key, State: StateWarming, Message: msgWarming})

	default: // gateway.StatusError and anything unrecognised
		m.stopTimerLocked()
		if m.state == StateErrored {
			m.mu.Unlock()
			return
		}
		m.state = StateErrored
		m.mu.Unlock()
		msg := msgUnavailable
		if env.Message != nil {
			msg = *env.Message
		}
		m.emit(Update{Key: m.key, State: StateErrored, Message: msg})
	}
}

// expire fires when the warming ceiling elapses without a value.
func (m *Machine) expire() {
	m.mu.Lock()
	m.timer = nil
	if m.state != StateWarming {
		m.mu.Unlock()
		return
	}
	m.state = StateErrored
	m.mu.Unlock()

	m.emit(Update{Key: m.key, State: StateErrored, Message: msgUnavailable})
}

// Stop cancels the ceiling timer. The machine keeps its last state.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) emit(u Update) {
	if m.handler != nil {
		m.handler(u)
	}
}
