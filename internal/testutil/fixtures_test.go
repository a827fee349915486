package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/pickle"
)

func TestFixturesDisassemble(t *testing.T) {
	for _, proto := range Protocols {
		for _, data := range [][]byte{
			GlobalPickle(proto, "os", "getcwd"),
			StackGlobalPickle(proto, "os", "getcwd"),
			InstPickle(proto, "os", "getcwd"),
			CallPickle(proto, "basic", "create_person", "bob", 5),
			OrderedDictPickle(proto),
		} {
			_, err := pickle.Disassemble(data)
			require.NoError(t, err, "protocol %d", proto)
		}
	}

	listing, err := pickle.Disassemble(TorchStateDictPickle())
	require.NoError(t, err)
	assert.Contains(t, listing, "BINPERSID")
}

func TestRegistryResolvesFixtures(t *testing.T) {
	var calls []string
	r := Registry(&calls)

	for _, qn := range [][2]string{
		{"basic", "create_person"},
		{"os", "environ.items"},
		{"torch", "serialization.os.system"},
		{"torch._utils", "_rebuild_tensor_v2"},
		{"collections", "OrderedDict"},
	} {
		_, err := r.Resolve(qn[0], qn[1])
		assert.NoError(t, err, "%s.%s", qn[0], qn[1])
	}
	assert.Empty(t, calls)
}
