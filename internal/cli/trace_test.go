package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/pickle"
	"github.com/roach88/pickleball/internal/policy"
	"github.com/roach88/pickleball/internal/store"
	"github.com/roach88/pickleball/internal/testutil"
)

func TestTraceCommand_WritesPolicy(t *testing.T) {
	dir := modelDir(t, false)
	out := filepath.Join(t.TempDir(), "policy.json")

	stdout, err := execute(t, "trace", dir, "--class", "lib.Model", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 ok, 0 skipped, 0 failed")
	assert.Contains(t, stdout, "Wrote policy for lib.Model")

	p, err := policy.ReadFile(out, "unused")
	require.NoError(t, err)
	entry, ok := p.Entry("lib.Model")
	require.True(t, ok)
	assert.True(t, entry.Equal(stateDictEntry()))
}

func TestTraceCommand_FlatToStdout(t *testing.T) {
	dir := modelDir(t, false)

	stdout, err := execute(t, "trace", dir, "--flat")
	require.NoError(t, err)

	entry, err := policy.UnmarshalEntry([]byte(stdout))
	require.NoError(t, err)
	assert.True(t, entry.Equal(stateDictEntry()))
}

func TestTraceCommand_JSON(t *testing.T) {
	dir := modelDir(t, true)
	writeFile(t, dir, "broken/model.pkl", pickle.NewBuilder(2).Emit(pickle.TUPLE).Assemble())

	stdout, err := execute(t, "--format", "json", "trace", dir, "--class", "lib.Model")
	require.NoError(t, err)

	var result struct {
		Class   string          `json:"class"`
		Files   int             `json:"files"`
		Counts  map[string]int  `json:"counts"`
		Samples []SampleSummary `json:"samples"`
		Policy  map[string]policy.Entry
	}
	resp := decodeData(t, stdout, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "lib.Model", result.Class)
	assert.Equal(t, 3, result.Files)
	assert.Equal(t, map[string]int{"ok": 2, "skipped": 0, "failed": 1}, result.Counts)

	require.Len(t, result.Samples, 3)
	assert.Equal(t, "failed", result.Samples[0].Status)
	assert.Contains(t, result.Samples[0].Error, "MALFORMED_STREAM")

	entry := result.Policy["lib.Model"]
	assert.True(t, entry.Globals.Contains("os.system"))
	assert.True(t, entry.Reduces.Contains("os.system"))
}

func TestTraceCommand_Store(t *testing.T) {
	dir := modelDir(t, true)
	db := filepath.Join(t.TempDir(), "traces.db")

	stdout, err := execute(t, "trace", dir, "--db", db, "-o", filepath.Join(t.TempDir(), "p.json"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "stored in "+db)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runs, err := st.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Finished())
	assert.Equal(t, "torch.nn.Module", runs[0].ClassID)
	assert.Equal(t, dir, runs[0].Root)

	samples, err := st.ReadSamples(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	rebuilt, err := st.RebuildPolicy(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(runs[0].Policy))
}

func TestTraceCommand_NoModels(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", []byte("nothing here"))

	stdout, err := execute(t, "trace", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "E005")
}

func TestTraceCommand_MissingPath(t *testing.T) {
	_, err := execute(t, "trace", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceCommand_NothingTraced(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "model.pkl", testutil.GlobalPickle(2, "os", "getcwd"))

	_, err := execute(t, "trace", dir, "--max-steps", "2", "-o", filepath.Join(t.TempDir(), "p.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no sample traced successfully")
}
