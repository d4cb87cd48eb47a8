package harness

import (
	"github.com/roach88/famshelf/internal/inventory"
	"github.com/roach88/famshelf/internal/protocol"
)

// Outcome kinds a step can report besides an error code.
const (
	OutcomeOK        = "ok"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
)

// StepTrace records one executed step.
type StepTrace struct {
	Index   int    `json:"index"`
	Line    string `json:"line"`    // human-readable description of the step
	Outcome string `json:"outcome"` // ok, duplicate, skipped or an error code
	Detail  string `json:"detail,omitempty"`
}

// Frame is one message a connection was sent, decoded and summarized.
type Frame struct {
	Type    protocol.Type `json:"type"`
	Summary string        `json:"summary"`
}

// ConnTrace is everything one connection was sent, in order.
type ConnTrace struct {
	Name   string  `json:"name"`
	Frames []Frame `json:"frames"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step produced its expected outcome and every
	// assertion held.
	Pass bool `json:"pass"`

	Scenario string      `json:"scenario"`
	Group    string      `json:"group"`
	Steps    []StepTrace `json:"steps"`

	// Conns lists connections in the order they were opened.
	Conns []ConnTrace `json:"conns"`

	// Members and Items are the group's final state.
	Members []protocol.Member `json:"members"`
	Items   []inventory.Item  `json:"items"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario, group string) *Result {
	return &Result{
		Pass:     true,
		Scenario: scenario,
		Group:    group,
		Steps:    []StepTrace{},
		Conns:    []ConnTrace{},
		Members:  []protocol.Member{},
		Items:    []inventory.Item{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Conn returns the trace of the named connection.
func (r *Result) Conn(name string) (ConnTrace, bool) {
	for _, c := range r.Conns {
		if c.Name == name {
			return c, true
		}
	}
	return ConnTrace{}, false
}
