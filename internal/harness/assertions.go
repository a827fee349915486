package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pickleball/internal/engine"
	"github.com/roach88/pickleball/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    ir.Trace // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describe(ev))
		}
	}
	return buf.String()
}

func describe(ev ir.PolicyEvent) string {
	switch e := ev.(type) {
	case ir.GlobalResolved:
		return "global " + string(e.Name)
	case ir.ReduceInvoked:
		return fmt.Sprintf("reduce %s argc=%d", eventName(e), e.Argc)
	}
	return fmt.Sprintf("%T", ev)
}

// eventName is the name an assertion matches an event against: the
// qualified name for globals, the callable (or bare name when the callable
// is unresolved) for reduces.
func eventName(ev ir.PolicyEvent) string {
	switch e := ev.(type) {
	case ir.GlobalResolved:
		return string(e.Name)
	case ir.ReduceInvoked:
		if e.Callable != "" {
			return string(e.Callable)
		}
		return e.Bare
	}
	return ""
}

func eventKind(ev ir.PolicyEvent) string {
	return ev.Record().Kind
}

// assertTraceContains checks that an event of the given kind and name
// appears in the trace.
func assertTraceContains(trace ir.Trace, a Assertion) error {
	for _, ev := range trace {
		if eventKind(ev) == a.Kind && eventName(ev) == a.Name {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event for %s", a.Kind, a.Name),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that globals resolve in the specified order.
// Globals don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace ir.Trace, a Assertion) error {
	positions := make(map[string]int)
	for i, name := range trace.Globals() {
		if _, seen := positions[string(name)]; !seen {
			positions[string(name)] = i + 1 // 1-indexed for readability
		}
	}

	for _, name := range a.Names {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all globals present: %v", a.Names),
				Actual:   fmt.Sprintf("missing global: %s", name),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Names); i++ {
		prev, curr := a.Names[i-1], a.Names[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("globals in order: %v", a.Names),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that events of the given kind, optionally
// restricted to a name, occur exactly Count times.
func assertTraceCount(trace ir.Trace, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if eventKind(ev) != a.Kind {
			continue
		}
		if a.Name == "" || eventName(ev) == a.Name {
			count++
		}
	}
	if count != a.Count {
		subject := a.Kind + " events"
		if a.Name != "" {
			subject += " for " + a.Name
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s", a.Count, subject),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceError checks that tracing failed with the given code.
func assertTraceError(r *Result, a Assertion) error {
	got := engine.ErrorCode(r.TraceErr)
	if got == a.Code {
		return nil
	}
	actual := "trace succeeded"
	if r.TraceErr != nil {
		actual = r.TraceErr.Error()
	}
	return &AssertionError{
		Type:     AssertTraceError,
		Expected: "trace error " + a.Code,
		Actual:   actual,
		Trace:    r.Trace,
	}
}

func assertGateAllows(r *Result) error {
	if r.GateErr == nil {
		return nil
	}
	return &AssertionError{
		Type:     AssertGateAllows,
		Expected: "stream loads",
		Actual:   r.GateErr.Error(),
		Trace:    r.Trace,
	}
}

// assertGateRejects checks the gate's violation kind and, when given, the
// rejected name.
func assertGateRejects(r *Result, a Assertion) error {
	expected := a.Kind + " violation"
	if a.Name != "" {
		expected += " on " + a.Name
	}

	pv := r.Violation()
	switch {
	case pv == nil && r.GateErr == nil:
		return &AssertionError{Type: AssertGateRejects, Expected: expected, Actual: "stream loaded", Trace: r.Trace}
	case pv == nil:
		return &AssertionError{Type: AssertGateRejects, Expected: expected, Actual: r.GateErr.Error(), Trace: r.Trace}
	case string(pv.Kind) != a.Kind || (a.Name != "" && string(pv.Name) != a.Name):
		return &AssertionError{
			Type:     AssertGateRejects,
			Expected: expected,
			Actual:   fmt.Sprintf("%s violation on %s", pv.Kind, pv.Name),
			Trace:    r.Trace,
		}
	}
	return nil
}

// assertGateError checks that the gate failed with the given runtime
// error code.
func assertGateError(r *Result, a Assertion) error {
	if r.GateErr != nil && engine.ErrorCode(r.GateErr) == a.Code {
		return nil
	}
	actual := "stream loaded"
	if r.GateErr != nil {
		actual = r.GateErr.Error()
	}
	return &AssertionError{
		Type:     AssertGateError,
		Expected: "gate error " + a.Code,
		Actual:   actual,
		Trace:    r.Trace,
	}
}

func assertHostCalls(r *Result, a Assertion) error {
	want := a.Names
	if want == nil {
		want = []string{}
	}
	if slices.Equal(r.Calls, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertHostCalls,
		Expected: fmt.Sprintf("host calls %v", want),
		Actual:   fmt.Sprintf("host calls %v", r.Calls),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTraceError:
			err = assertTraceError(result, a)
		case AssertGateAllows:
			err = assertGateAllows(result)
		case AssertGateRejects:
			err = assertGateRejects(result, a)
		case AssertGateError:
			err = assertGateError(result, a)
		case AssertHostCalls:
			err = assertHostCalls(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
