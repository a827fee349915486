package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracedDB traces a model directory into a fresh database and returns the
// database path and the stored run id.
func tracedDB(t *testing.T) (db, runID string) {
	t.Helper()
	db = filepath.Join(t.TempDir(), "traces.db")
	stdout, err := execute(t, "--format", "json", "trace", modelDir(t, true), "--db", db)
	require.NoError(t, err)

	var result TraceResult
	decodeData(t, stdout, &result)
	require.NotEmpty(t, result.RunID)
	return db, result.RunID
}

func TestReportCommand_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	stdout, err := execute(t, "report", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No runs stored.\n", stdout)
}

func TestReportCommand_ListRuns(t *testing.T) {
	db, runID := tracedDB(t)

	stdout, err := execute(t, "--format", "json", "report", "--db", db)
	require.NoError(t, err)

	var runs []RunSummary
	decodeData(t, stdout, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "torch.nn.Module", runs[0].Class)
	assert.True(t, runs[0].Finished)
	assert.Equal(t, map[string]int{"ok": 2, "skipped": 0, "failed": 0}, runs[0].Counts)

	stdout, err = execute(t, "report", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, runID)
	assert.Contains(t, stdout, "ok 2, skipped 0, failed 0  finished")
}

func TestReportCommand_Run(t *testing.T) {
	db, runID := tracedDB(t)

	stdout, err := execute(t, "report", runID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run:      "+runID+"\n")
	assert.Contains(t, stdout, "Class:    torch.nn.Module\n")
	assert.Contains(t, stdout, "Samples:  ok 2, skipped 0, failed 0\n")
	assert.Contains(t, stdout, "Policy (")
	assert.Contains(t, stdout, `"os.system"`)

	stdout, err = execute(t, "--format", "json", "report", runID, "--db", db, "--samples")
	require.NoError(t, err)

	var report RunReport
	decodeData(t, stdout, &report)
	assert.Equal(t, runID, report.ID)
	assert.Contains(t, string(report.Policy), "torch._utils._rebuild_tensor_v2")
	require.Len(t, report.Samples, 2)
	for _, s := range report.Samples {
		assert.Equal(t, runID, s.RunID)
		assert.Equal(t, "ok", s.Status)
		assert.NotEmpty(t, s.Digest)
		assert.Positive(t, s.Events)
	}
	assert.Contains(t, report.Samples[0].Name, "model.pkl")
}

func TestReportCommand_Digest(t *testing.T) {
	db, runID := tracedDB(t)

	stdout, err := execute(t, "--format", "json", "report", runID, "--db", db, "--samples")
	require.NoError(t, err)
	var report RunReport
	decodeData(t, stdout, &report)
	require.Len(t, report.Samples, 2)
	digest := report.Samples[1].Digest

	stdout, err = execute(t, "--format", "json", "report", "--db", db, "--digest", digest)
	require.NoError(t, err)
	var matches []StoredSample
	decodeData(t, stdout, &matches)
	require.Len(t, matches, 1)
	assert.Equal(t, report.Samples[1].Name, matches[0].Name)

	stdout, err = execute(t, "report", "--db", db, "--digest", "sha256:none")
	require.NoError(t, err)
	assert.Equal(t, "No samples with digest sha256:none\n", stdout)
}

func TestReportCommand_UnknownRun(t *testing.T) {
	db, _ := tracedDB(t)

	_, err := execute(t, "report", "no-such-run", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, err.Error(), "run not found")
}
