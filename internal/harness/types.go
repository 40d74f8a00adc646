package harness

import "github.com/roach88/formsync/internal/engine"

// TraceEvent records one applied event.
type TraceEvent struct {
	Seq       int64    `json:"seq"`
	Kind      string   `json:"kind"`
	Path      string   `json:"path,omitempty"`
	Changed   []string `json:"changed"`
	Templates []string `json:"templates"`
	Passes    int      `json:"passes"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation matched and replay reproduced
	// the final state.
	Pass bool `json:"pass"`

	// Trace has one entry per applied event, the initial load first.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Hash is the final field store hash.
	Hash string `json:"hash"`

	// Final is the state after the last step.
	Final engine.State `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
