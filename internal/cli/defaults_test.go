package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/policy"
)

func TestDefaultsCommand(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeFile(t, dir, "manifest.toml", []byte(`
[system]
default_policy = "default.json"

[libraries.alpha]
model_class = "alpha.Model"

[libraries.beta]
model_class = "beta.Model"
policy = "custom/beta-policy.json"
`))
	def := policy.Entry{Globals: policy.Strings("torch.nn.Module"), Reduces: policy.Strings()}
	writePolicy(t, dir, "default.json", map[string]policy.Entry{"torch.nn.Module": def})

	t.Run("library policy paths", func(t *testing.T) {
		stdout, err := execute(t, "defaults", manifestPath)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Wrote 2 default polic(ies)")

		for _, want := range []struct{ path, class string }{
			{filepath.Join(dir, "policies", "alpha.json"), "alpha.Model"},
			{filepath.Join(dir, "custom", "beta-policy.json"), "beta.Model"},
		} {
			path, class := want.path, want.class
			p, err := policy.ReadFile(path, "unused")
			require.NoError(t, err, path)
			assert.Equal(t, []string{class}, p.Classes())
			entry, _ := p.Entry(class)
			assert.True(t, entry.Equal(def))
		}
	})

	t.Run("output directory", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "ablation")
		stdout, err := execute(t, "--format", "json", "defaults", manifestPath, "-o", out, "--only", "beta")
		require.NoError(t, err)

		var written []WrittenPolicy
		decodeData(t, stdout, &written)
		assert.Equal(t, []WrittenPolicy{{Library: "beta", Class: "beta.Model", Path: filepath.Join(out, "beta.json")}}, written)
	})
}

func TestDefaultsCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeFile(t, dir, "manifest.toml", []byte("[libraries.alpha]\nmodel_class = \"alpha.Model\"\n"))

	_, err := execute(t, "defaults", manifestPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no default policy")

	other := writePolicy(t, dir, "other.json", map[string]policy.Entry{"other.Model": {}})
	_, err = execute(t, "defaults", manifestPath, "--default-policy", other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no entry for torch.nn.Module")
}
