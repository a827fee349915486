package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/policy"
)

func TestUnionCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", []byte(`{"globals": ["os.getcwd"], "reduces": []}`))
	b := writeFile(t, dir, "b.json", []byte(`{"globals": ["collections.OrderedDict", "os.getcwd"], "reduces": ["collections.OrderedDict"]}`))
	c := writePolicy(t, dir, "c.json", map[string]policy.Entry{
		"other.Model": {Globals: policy.Strings("x.y"), Reduces: policy.Strings()},
	})
	list := writeFile(t, dir, "files.txt", []byte("# traces\n"+b+"\n\n"+c+"\n"))
	out := filepath.Join(dir, "union.json")

	stdout, err := execute(t, "union", a, "--files-list", list, "--class", "lib.Model", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Unioned 3 file(s) into 2 class(es)")

	p, err := policy.ReadFile(out, "unused")
	require.NoError(t, err)
	assert.Equal(t, []string{"lib.Model", "other.Model"}, p.Classes())
	entry, _ := p.Entry("lib.Model")
	assert.Equal(t, []string{"collections.OrderedDict", "os.getcwd"}, entry.Globals.Strings())
	assert.Equal(t, []string{"collections.OrderedDict"}, entry.Reduces.Strings())
}

func TestUnionCommand_Stdout(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", []byte(`{"globals": ["b.c", "a.b"], "reduces": ["a.b"]}`))

	stdout, err := execute(t, "union", a, "--class", "m")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		`{`,
		`  "m": {`,
		`    "globals": [`,
		`      "a.b",`,
		`      "b.c"`,
		`    ],`,
		`    "reduces": [`,
		`      "a.b"`,
		`    ]`,
		`  }`,
		`}`,
		``,
	}, "\n"), stdout)
}

func TestUnionCommand_Errors(t *testing.T) {
	_, err := execute(t, "union")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := writeFile(t, t.TempDir(), "bad.json", []byte(`{"globals": "os.system"}`))
	_, err = execute(t, "union", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeInvalidPolicy)
}
