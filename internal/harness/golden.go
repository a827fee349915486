package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pickleball/internal/canon"
	"github.com/roach88/pickleball/internal/engine"
)

// Snapshot renders a result as canonical JSON for golden comparison:
//
//	{"events":[...],"gate":"allowed","scenario":"name"}
//
// "gate" is present only when the gate ran and holds "allowed", the
// violation as "<kind> <name>", or the error code. "trace_error" replaces
// "events" when tracing failed. A trailing newline is appended.
func Snapshot(name string, r *Result) ([]byte, error) {
	obj := canon.Object{"scenario": canon.String(name)}
	if r.TraceErr != nil {
		obj["trace_error"] = canon.String(engine.ErrorCode(r.TraceErr))
	} else {
		obj["events"] = r.Trace.Canonical()["events"]
	}
	if r.Gated {
		obj["gate"] = canon.String(gateOutcome(r))
	}

	data, err := canon.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}
	return append(data, '\n'), nil
}

func gateOutcome(r *Result) string {
	if r.GateErr == nil {
		return "allowed"
	}
	if pv := r.Violation(); pv != nil {
		return fmt.Sprintf("%s %s", pv.Kind, pv.Name)
	}
	if code := engine.ErrorCode(r.GateErr); code != "" {
		return code
	}
	return "error"
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden
// file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
