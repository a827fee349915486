package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/pickle"
	"github.com/roach88/pickleball/internal/testutil"
)

func TestDisasmCommand(t *testing.T) {
	model := writeFile(t, t.TempDir(), "model.pkl", testutil.GlobalPickle(2, "os", "getcwd"))

	stdout, err := execute(t, "disasm", model)
	require.NoError(t, err)
	assert.Contains(t, stdout, "PROTO")
	assert.Contains(t, stdout, `GLOBAL             "os getcwd"`)
	assert.Contains(t, stdout, "STOP")
	assert.NotContains(t, stdout, "==")
}

func TestDisasmCommand_JSON(t *testing.T) {
	model := writeFile(t, t.TempDir(), "model.pkl", testutil.GlobalPickle(2, "os", "getcwd"))

	stdout, err := execute(t, "--format", "json", "disasm", model)
	require.NoError(t, err)

	var listings []Listing
	decodeData(t, stdout, &listings)
	require.Len(t, listings, 1)
	assert.Equal(t, model, listings[0].Name)
	assert.Contains(t, listings[0].Listing, "GLOBAL")
	assert.Empty(t, listings[0].Error)
}

func TestDisasmCommand_DecodeError(t *testing.T) {
	data := pickle.NewBuilder(2).Str("truncated").Assemble()
	model := writeFile(t, t.TempDir(), "model.pkl", data[:len(data)-4])

	stdout, err := execute(t, "disasm", model)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "PROTO")
	assert.Contains(t, stdout, "error: ")
}
