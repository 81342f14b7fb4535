package harness

import (
	"fmt"

	"github.com/roach88/murmur/internal/engine"
)

// TraceEvent records one executed action.
type TraceEvent struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

func (e TraceEvent) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("step %d %s", e.Step, e.Action)
	}
	return fmt.Sprintf("step %d %s %s", e.Step, e.Action, e.Detail)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step ran and every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed actions in order. Expect steps are not
	// traced.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// View is the view published after the last step.
	View *engine.View `json:"view,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace event.
func (r *Result) AddTrace(step int, action, detail string) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Action: action, Detail: detail})
}
