package engine

import (
	"github.com/roach88/ruleunit/internal/ir"
)

// EventKind names a session event.
type EventKind string

const (
	EventSessionOpened       EventKind = "session_opened"
	EventSessionClosed       EventKind = "session_closed"
	EventFactInserted        EventKind = "fact_inserted"
	EventFactRetracted       EventKind = "fact_retracted"
	EventFactUpdated         EventKind = "fact_updated"
	EventActivationCreated   EventKind = "activation_created"
	EventActivationCancelled EventKind = "activation_cancelled"
	EventRuleFired           EventKind = "rule_fired"
	EventActionFailed        EventKind = "action_failed"
	EventCycleExceeded       EventKind = "cycle_exceeded"
	EventHalted              EventKind = "halted"
	EventControlSetAdded     EventKind = "control_set_added"
	EventControlSetRemoved   EventKind = "control_set_removed"
)

// EventKinds lists every event kind.
var EventKinds = []EventKind{
	EventSessionOpened, EventSessionClosed,
	EventFactInserted, EventFactRetracted, EventFactUpdated,
	EventActivationCreated, EventActivationCancelled,
	EventRuleFired, EventActionFailed, EventCycleExceeded, EventHalted,
	EventControlSetAdded, EventControlSetRemoved,
}

// Event describes one thing that happened inside a session.
//
// Seq comes from the session's logical clock, so two runs over the same
// inputs produce identical event streams. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind      EventKind   `json:"kind"`
	SessionID string      `json:"session_id"`
	Seq       int64       `json:"seq"`
	Rule      string      `json:"rule,omitempty"`
	FactID    ir.FactID   `json:"fact_id,omitempty"`
	Fact      *ir.Fact    `json:"fact,omitempty"`
	Facts     []ir.FactID `json:"facts,omitempty"`
	Binding   *ir.Binding `json:"binding,omitempty"`
	Set       string      `json:"set,omitempty"`
	Value     ir.Value    `json:"value,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Observer receives session events synchronously, in order.
//
// Observers run on the caller's goroutine inside the session operation that
// produced the event; they must not call back into the session.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Recorder is an Observer that keeps every event. Used by tests and the
// scenario harness.
type Recorder struct {
	Events []Event
}

// Observe appends e.
func (r *Recorder) Observe(e Event) {
	r.Events = append(r.Events, e)
}

// Kinds returns the kind of every recorded event, in order.
func (r *Recorder) Kinds() []EventKind {
	out := make([]EventKind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
