package harness

import (
	"github.com/roach88/accord/internal/formula"
	"github.com/roach88/accord/internal/roworder"
)

// TraceEvent records what one step did to the engine.
type TraceEvent struct {
	Seq        int      `json:"seq"`
	Op         string   `json:"op"`
	Actions    []string `json:"actions"`              // Labels of applied changes
	Rejections []string `json:"rejections,omitempty"` // Codes of ignored requests
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion and expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Rows is the final unified row order.
	Rows []roworder.Row `json:"rows"`

	// Summary is the final formula summary.
	Summary formula.Summary `json:"summary"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Rejections returns every rejection code of the trace, in order.
func (r *Result) Rejections() []string {
	out := []string{}
	for _, ev := range r.Trace {
		out = append(out, ev.Rejections...)
	}
	return out
}
