package status

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// State is the connection state of the current messaging session.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Open         State = "OPEN"
	Reconnecting State = "RECONNECTING"
	LoggedOut    State = "LOGGED_OUT"
	Error        State = "ERROR"
)

var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Error},
	AuthRequired: {Connecting, Open, LoggedOut, Error},
	Connecting:   {Open, AuthRequired, Reconnecting, LoggedOut, Error},
	Open:         {Reconnecting, LoggedOut, Error},
	Reconnecting: {Connecting, AuthRequired, LoggedOut, Error},
	LoggedOut:    {Booting, Connecting},
	Error:        {Booting, Connecting},
}

// Change describes one accepted transition.
type Change struct {
	From State
	To   State
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu        sync.RWMutex
	current   State
	logger    *zap.Logger
	listeners []func(Change)
}

// NewMachine creates a machine in the Booting state. logger may be nil.
func NewMachine(logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{current: Booting, logger: logger}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers fn to be called after every accepted transition.
func (m *Machine) OnChange(fn func(Change)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Transition moves to a new state. Moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	m.logger.Info("connection state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	change := Change{From: from, To: to}
	for _, fn := range listeners {
		fn(change)
	}
	return nil
}

// Force sets the state without consulting the transition table. Used when a
// new session replaces the old one and the previous state no longer applies.
func (m *Machine) Force(to State) {
	m.mu.Lock()
	from := m.current
	m.current = to
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	if from == to {
		return
	}
	m.logger.Info("connection state reset", zap.String("from", string(from)), zap.String("to", string(to)))
	for _, fn := range listeners {
		fn(Change{From: from, To: to})
	}
}
