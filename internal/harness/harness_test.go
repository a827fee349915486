package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/engine"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its snapshot with the golden file.
func TestScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures:\n%v", result.Errors)
		})
	}
}

// TestRun_RejectedStreamRunsNothing tests that every scenario whose gate
// rejects the stream leaves the host untouched.
func TestRun_RejectedStreamRunsNothing(t *testing.T) {
	files, err := FindScenarios(filepath.Join("testdata", "scenarios", "bypass"))
	require.NoError(t, err)

	for _, sr := range New().RunFiles(context.Background(), files) {
		require.NoError(t, sr.Err, sr.Path)
		assert.True(t, sr.Result.Gated)
		assert.NotNil(t, sr.Result.Violation(), sr.Path)
		assert.Empty(t, sr.Result.Calls, sr.Path)
	}
}

func TestRun_FragmentExtracted(t *testing.T) {
	s := mustParse(t, `
name: fragment
description: "fragment follows the trace"
protocol: 2
class: torch
stream:
  - global: [collections, OrderedDict]
  - op: EMPTY_TUPLE
  - op: REDUCE
assertions:
  - type: trace_count
    kind: global
    count: 1
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.False(t, result.Gated)

	entry, ok := result.Fragment.Entry("torch")
	require.True(t, ok)
	assert.Equal(t, []string{"collections.OrderedDict"}, entry.Globals.Strings())
	assert.Equal(t, []string{"collections.OrderedDict"}, entry.Reduces.Strings())
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	s := mustParse(t, `
name: wrong
description: "assertions that do not hold"
protocol: 2
stream:
  - global: [os, system]
  - op: POP
  - op: NONE
policy:
  globals: [os.system]
  reduces: []
assertions:
  - type: trace_contains
    kind: reduce
    name: os.system
  - type: gate_rejects
    kind: global
  - type: trace_error
    code: MALFORMED_STREAM
  - type: host_calls
    names: [os.system]
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "not found in trace")
	assert.Contains(t, result.Errors[1], "stream loaded")
	assert.Contains(t, result.Errors[2], "trace succeeded")
	assert.Contains(t, result.Errors[3], "host calls []")
}

func TestRun_EngineOptions(t *testing.T) {
	s := mustParse(t, `
name: budget
description: "step budget applies to scenarios"
protocol: 2
stream:
  - op: MARK
  - op: POP_MARK
  - op: MARK
  - op: POP_MARK
assertions:
  - type: trace_error
    code: TRACE_TIMEOUT
`)
	h := New(WithEngineOptions(engine.WithMaxSteps(2)))
	result, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
	assert.Nil(t, result.Trace)
}

func TestSnapshot(t *testing.T) {
	s := mustParse(t, `
name: snap
description: "snapshot shape"
protocol: 2
stream:
  - op: TUPLE
policy:
  globals: []
  reduces: []
assertions:
  - type: trace_error
    code: MALFORMED_STREAM
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	data, err := Snapshot("snap", result)
	require.NoError(t, err)
	assert.Equal(t, `{"gate":"MALFORMED_STREAM","scenario":"snap","trace_error":"MALFORMED_STREAM"}`+"\n", string(data))
}

func TestRunFiles_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	body := `
name: same
description: "dup"
protocol: 2
stream:
  - op: NONE
assertions:
  - type: trace_count
    kind: global
    count: 0
`
	a := writeFile(t, dir, "a.yaml", body)
	b := writeFile(t, dir, "b.yaml", body)

	results := New().RunFiles(context.Background(), []string{a, b})
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed())
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "duplicate scenario name")
	assert.False(t, results[1].Passed())
}

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}
