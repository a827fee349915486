package host

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictOrderAndReplace(t *testing.T) {
	d := NewDict()
	require.NoError(t, d.SetItem("b", int64(1)))
	require.NoError(t, d.SetItem("a", int64(2)))
	require.NoError(t, d.SetItem("b", int64(3)))

	assert.Equal(t, []Object{"b", "a"}, d.Keys())
	v, ok := d.Get("b")
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)
}

func TestDictNumericKeyEquality(t *testing.T) {
	d := NewDict()
	require.NoError(t, d.SetItem(int64(1), "int"))
	require.NoError(t, d.SetItem(true, "bool"))
	require.NoError(t, d.SetItem(1.0, "float"))
	require.NoError(t, d.SetItem(big.NewInt(1), "big"))
	assert.Equal(t, 1, d.Len())

	require.NoError(t, d.SetItem(1.5, "x"))
	assert.Equal(t, 2, d.Len())
}

func TestDictUnhashableKey(t *testing.T) {
	d := NewDict()
	for _, k := range []Object{NewList(), NewDict(), NewSet(false), &ByteArray{}, Tuple{NewList()}} {
		err := d.SetItem(k, nil)
		assert.ErrorIs(t, err, ErrUnhashable, TypeName(k))
	}
	_, ok := d.Get(NewList())
	assert.False(t, ok)
}

func TestTupleAndFrozenSetKeys(t *testing.T) {
	d := NewDict()
	require.NoError(t, d.SetItem(Tuple{"a", int64(1)}, 1))
	_, ok := d.Get(Tuple{"a", int64(1)})
	assert.True(t, ok)

	f1, err := setOf(true, []Object{"x", "y"})
	require.NoError(t, err)
	f2, err := setOf(true, []Object{"y", "x"})
	require.NoError(t, err)
	require.NoError(t, d.SetItem(f1, 2))
	v, ok := d.Get(f2)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSetDedup(t *testing.T) {
	s := NewSet(false)
	require.NoError(t, s.Add("a"))
	require.NoError(t, s.Add("a"))
	require.NoError(t, s.Add([]byte("a")))
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("a"))
}

func TestInstanceSetState(t *testing.T) {
	cls := &Class{Module: "m", Name: "C"}
	obj, err := cls.NewObject(nil, nil)
	require.NoError(t, err)
	inst := obj.(*Instance)

	state := NewDict()
	require.NoError(t, state.SetItem("x", int64(1)))
	require.NoError(t, inst.SetState(state))
	v, ok := inst.Attr("x")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)

	slots := NewDict()
	require.NoError(t, slots.SetItem("y", int64(2)))
	require.NoError(t, inst.SetState(Tuple{nil, slots}))
	_, ok = inst.Attr("y")
	assert.True(t, ok)

	require.NoError(t, inst.SetState("opaque"))
	assert.Equal(t, "opaque", inst.State)
}

func TestDictBigAndSmallIntKeysMatch(t *testing.T) {
	d := NewDict()
	require.NoError(t, d.SetItem(int64(-1<<40), "small"))
	require.NoError(t, d.SetItem(new(big.Int).Lsh(big.NewInt(-1), 40), "big"))
	require.NoError(t, d.SetItem(float64(-(1 << 40)), "float"))
	assert.Equal(t, 1, d.Len())

	v, ok := d.Get(int64(-1 << 40))
	require.True(t, ok)
	assert.Equal(t, "float", v)
}

func TestDictLongKeys(t *testing.T) {
	d := NewDict()
	long := strings.Repeat("k", 1000)
	require.NoError(t, d.SetItem(long, 1))
	require.NoError(t, d.SetItem(long+"x", 2))
	assert.Equal(t, 2, d.Len())

	v, ok := d.Get(strings.Repeat("k", 1000))
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestDictSharedTupleKeyIsBounded(t *testing.T) {
	// Each level references the previous tuple twice.
	var key Object = Tuple{int64(1)}
	for range 40 {
		key = Tuple{key, key}
	}

	d := NewDict()
	err := d.SetItem(key, nil)
	assert.ErrorIs(t, err, ErrKeyTooLarge)

	s := NewSet(false)
	assert.ErrorIs(t, s.Add(key), ErrKeyTooLarge)
}

func TestDictModeratelyNestedTupleKey(t *testing.T) {
	var key Object = Tuple{int64(1)}
	for range 10 {
		key = Tuple{key, key}
	}
	d := NewDict()
	require.NoError(t, d.SetItem(key, "ok"))
	_, ok := d.Get(key)
	assert.True(t, ok)
}
