package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/policy"
	"github.com/roach88/pickleball/internal/testutil"
)

func TestLoadCommand_Allowed(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "pytorch_model.bin", testutil.TorchStateDictPickle())
	pol := writePolicy(t, dir, "policy.json", map[string]policy.Entry{"torch.nn.Module": stateDictEntry()})

	stdout, err := execute(t, "load", model, "--policy", pol)
	require.NoError(t, err)
	assert.Contains(t, stdout, "loaded    "+model)
}

func TestLoadCommand_Rejected(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "model.pkl", testutil.CallPickle(2, "os", "system", "echo pwned"))
	pol := writePolicy(t, dir, "policy.json", map[string]policy.Entry{"torch.nn.Module": stateDictEntry()})

	stdout, err := execute(t, "--format", "json", "load", model, "--policy", pol)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeViolation)

	var result LoadResult
	decodeData(t, stdout, &result)
	assert.Equal(t, 0, result.Loaded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Samples, 1)

	s := result.Samples[0]
	assert.False(t, s.Loaded)
	assert.Equal(t, "POLICY_VIOLATION", s.Code)
	require.NotNil(t, s.Violation)
	assert.Equal(t, "global", s.Violation.Kind)
	assert.Equal(t, "os.system", s.Violation.Name)
}

func TestLoadCommand_WrongClassRejectsEverything(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "pytorch_model.bin", testutil.TorchStateDictPickle())
	pol := writePolicy(t, dir, "policy.json", map[string]policy.Entry{"torch.nn.Module": stateDictEntry()})

	stdout, err := execute(t, "load", model, "--policy", pol, "--class", "other.Model")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "rejected  "+model)
	assert.Contains(t, stdout, "collections.OrderedDict")
}

func TestLoadCommand_BadPolicy(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, dir, "model.pkl", testutil.GlobalPickle(2, "os", "getcwd"))
	pol := writeFile(t, dir, "policy.json", []byte(`not json`))

	_, err := execute(t, "load", model, "--policy", pol)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
