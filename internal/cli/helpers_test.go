package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/policy"
	"github.com/roach88/pickleball/internal/testutil"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData decodes a JSON CLIResponse and its data payload into v.
func decodeData(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	if v != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, v))
	}
	return resp
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writePolicy(t *testing.T, dir, name string, entries map[string]policy.Entry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, policy.WriteFile(path, policy.Must(entries)))
	return path
}

// stateDictEntry is the entry TorchStateDictPickle needs.
func stateDictEntry() policy.Entry {
	globals, reduces := testutil.TorchStateDictPolicy()
	return policy.Entry{Globals: policy.Strings(globals...), Reduces: policy.Strings(reduces...)}
}

// modelDir creates a directory with a benign state dict and, when evil is
// set, a pickle that calls os.system.
func modelDir(t *testing.T, evil bool) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "good/pytorch_model.bin", testutil.TorchStateDictPickle())
	if evil {
		writeFile(t, dir, "evil/model.pkl", testutil.CallPickle(2, "os", "system", "echo pwned"))
	}
	return dir
}
