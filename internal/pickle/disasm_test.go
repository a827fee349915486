package pickle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassemble(t *testing.T) {
	data := NewBuilder(2).Global("collections", "OrderedDict").Emit(EMPTY_TUPLE, REDUCE).Put(0).Assemble()
	out, err := Disassemble(data)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "PROTO")
	assert.Contains(t, lines[1], `GLOBAL             "collections OrderedDict"`)
	assert.Contains(t, lines[4], "BINPUT")
	assert.Contains(t, lines[5], "STOP")
}

func TestDisassembleStacked(t *testing.T) {
	data := append(NewBuilder(2).None().Assemble(), NewBuilder(2).Int(1).Assemble()...)
	out, err := Disassemble(data)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "STOP"))
	assert.Contains(t, out, "     4: PROTO")
}

func TestDisassemblePartialOnError(t *testing.T) {
	out, err := Disassemble([]byte{'N', 'J', 1})
	require.Error(t, err)
	assert.Contains(t, out, "NONE")
}

func TestOpcodeByName(t *testing.T) {
	op, ok := OpcodeByName("STACK_GLOBAL")
	require.True(t, ok)
	assert.Equal(t, STACK_GLOBAL, op)

	for code := range opcodeTable {
		back, ok := OpcodeByName(code.Name())
		require.True(t, ok, code.Name())
		assert.Equal(t, code, back)
	}

	_, ok = OpcodeByName("stack_global")
	assert.False(t, ok)
}
