package harness

import (
	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/policy"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every assertion held.
	Pass bool

	// Trace is the policy trace of the stream. Nil when tracing failed.
	Trace ir.Trace

	// TraceErr is the tracing error, if any.
	TraceErr error

	// Fragment is the policy extracted from Trace under the scenario class.
	Fragment policy.Policy

	// Gated reports whether the gate ran.
	Gated bool

	// GateErr is the gate error, if any. Nil means the stream loaded.
	GateErr error

	// Calls lists the recording host functions that ran during the load.
	Calls []string

	// Errors contains failed assertion messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Calls:  []string{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Violation returns the gate's policy violation, or nil.
func (r *Result) Violation() *engine.PolicyViolation {
	pv, _ := engine.AsPolicyViolation(r.GateErr)
	return pv
}
