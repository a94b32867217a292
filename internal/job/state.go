// Package job defines the job model: identity, budgets, and the explicit
// finite-state machine with its append-only transition log.
package job

import (
	"fmt"
	"sync"
	"time"
)

// State is one lifecycle state of a job.
type State string

const (
	// StatePlanning is the initial state: a plan is being produced.
	StatePlanning State = "PLANNING"
	// StateExecuting means plan steps are running in the sandbox.
	StateExecuting State = "EXECUTING"
	// StateTesting means the attempt's test results are being evaluated.
	StateTesting State = "TESTING"
	// StateTestsPassed is a transient sub-state of TESTING, immediately
	// folded into COMPLETED.
	StateTestsPassed State = "TESTS_PASSED"
	// StateTestsFailed is a transient sub-state of TESTING, immediately
	// folded into REFLECTING.
	StateTestsFailed State = "TESTS_FAILED"
	// StateReflecting means a failed attempt is being classified.
	StateReflecting State = "REFLECTING"
	// StateCompleted is the successful terminal state.
	StateCompleted State = "COMPLETED"
	// StateStoppedSafe is the terminal state for ambiguous or
	// underspecified tasks: the agent refused rather than guessed.
	StateStoppedSafe State = "STOPPED_SAFE"
	// StateStoppedError is the terminal state for guardrail rejections,
	// budget overruns, timeouts, and exhausted retries.
	StateStoppedError State = "STOPPED_ERROR"
)

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateStoppedSafe, StateStoppedError:
		return true
	}
	return false
}

// allowedTransitions is the enumerated transition table. Any transition
// not listed here is a violation; violations from a running state force
// STOPPED_ERROR.
var allowedTransitions = map[State][]State{
	StatePlanning:    {StateExecuting, StateStoppedSafe, StateStoppedError},
	StateExecuting:   {StateTesting, StateStoppedError},
	StateTesting:     {StateTestsPassed, StateTestsFailed, StateStoppedError},
	StateTestsPassed: {StateCompleted},
	StateTestsFailed: {StateReflecting},
	StateReflecting:  {StatePlanning, StateStoppedError},
}

// allowed reports whether from -> to is in the transition table.
func allowed(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when a disallowed transition is attempted.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// Transition is one entry of a job's append-only transition log: previous
// state, next state, timestamp, reason. The log, ordered per job, is the
// only audit trail of the control loop.
type Transition struct {
	From      State     `json:"from,omitempty"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Machine tracks one job's state and transition log.
type Machine struct {
	mu      sync.Mutex
	current State
	log     []Transition
	// onTransition, if set, observes every recorded transition.
	onTransition func(Transition)
}

// NewMachine creates a state machine in PLANNING.
func NewMachine() *Machine {
	m := &Machine{current: StatePlanning}
	m.log = append(m.log, Transition{To: StatePlanning, Timestamp: time.Now(), Reason: "job admitted"})
	return m
}

// OnTransition registers an observer invoked for every transition,
// including forced stops. Must be set before the machine is shared.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.onTransition = fn
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// To transitions to a new state if the transition table allows it, logging
// the reason. A rejected transition leaves the state unchanged.
func (m *Machine) To(next State, reason string) error {
	if reason == "" {
		return fmt.Errorf("transition to %s requires a reason", next)
	}

	m.mu.Lock()
	if !allowed(m.current, next) {
		err := &TransitionError{From: m.current, To: next}
		m.mu.Unlock()
		return err
	}
	entry := Transition{From: m.current, To: next, Timestamp: time.Now(), Reason: reason}
	m.current = next
	m.log = append(m.log, entry)
	fn := m.onTransition
	m.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
	return nil
}

// ForceErrorStop transitions to STOPPED_ERROR from any non-terminal state,
// bypassing the table. Used for invariant violations, timeouts, and
// unhandled collaborator failures. A job already in a terminal state is
// left untouched so the original stop reason is preserved.
func (m *Machine) ForceErrorStop(reason string) {
	m.mu.Lock()
	if m.current.Terminal() {
		m.mu.Unlock()
		return
	}
	entry := Transition{From: m.current, To: StateStoppedError, Timestamp: time.Now(), Reason: "forced stop: " + reason}
	m.current = StateStoppedError
	m.log = append(m.log, entry)
	fn := m.onTransition
	m.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
}

// Log returns a copy of the transition log in order.
func (m *Machine) Log() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.log))
	copy(out, m.log)
	return out
}
