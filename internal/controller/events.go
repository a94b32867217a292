package controller

import (
	"sync"
	"time"

	"github.com/castorlabs/gantry/internal/guardrail"
	"github.com/castorlabs/gantry/internal/job"
)

// EventKind identifies the type of a control-loop event.
type EventKind string

const (
	// EventTransition is emitted once per recorded state transition.
	EventTransition EventKind = "transition"
	// EventIncident is emitted once per recorded guardrail incident.
	EventIncident EventKind = "incident"
)

// Event is one control-loop notification. Exactly one of Transition and
// Incident is set, selected by Kind.
type Event struct {
	Kind       EventKind           `json:"kind"`
	JobID      string              `json:"job_id"`
	Timestamp  time.Time           `json:"timestamp"`
	Transition *job.Transition     `json:"transition,omitempty"`
	Incident   *guardrail.Incident `json:"incident,omitempty"`
}

// Emitter fans control-loop events out to subscribers over buffered
// channels. A slow subscriber drops events rather than blocking the loop.
type Emitter struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function that releases the subscription. The channel is closed
// when the subscription is cancelled or the emitter closes.
func (e *Emitter) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, 256)
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	e.subs = append(e.subs, ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() { e.unsubscribe(ch) })
	}
	return ch, cancel
}

// unsubscribe removes and closes one subscriber channel.
func (e *Emitter) unsubscribe(ch chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for i, sub := range e.subs {
		if sub == ch {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// EmitTransition publishes a state-transition event.
func (e *Emitter) EmitTransition(jobID string, t job.Transition) {
	e.emit(Event{Kind: EventTransition, JobID: jobID, Timestamp: time.Now(), Transition: &t})
}

// EmitIncident publishes an incident event.
func (e *Emitter) EmitIncident(inc guardrail.Incident) {
	e.emit(Event{Kind: EventIncident, JobID: inc.JobID, Timestamp: time.Now(), Incident: &inc})
}

func (e *Emitter) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Further emits are dropped.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}
