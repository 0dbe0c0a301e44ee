package harness

import (
	"github.com/roach88/ruleunit/internal/engine"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Trace holds every session event in seq order, session_closed last.
	Trace []engine.Event `json:"trace"`

	// Fired is the total number of firings over the session.
	Fired int `json:"fired"`

	// ControlSets holds the formatted members of each control set at the
	// end of the steps.
	ControlSets map[string][]string `json:"control_sets"`

	// Facts holds the live facts at the end of the steps.
	Facts []engine.StoredFact `json:"facts"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Scenario:    name,
		Pass:        true,
		Errors:      []string{},
		Trace:       []engine.Event{},
		ControlSets: make(map[string][]string),
		Facts:       []engine.StoredFact{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
