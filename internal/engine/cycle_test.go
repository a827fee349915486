package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/ir"
)

func TestCycleDetector_NewCycleDetector(t *testing.T) {
	cd := NewCycleDetector()
	require.NotNil(t, cd)
	assert.Equal(t, 0, cd.Size())
}

func TestCycleDetector_RecordAndClear(t *testing.T) {
	cd := NewCycleDetector()
	a := ir.NewContainer(ir.KindTuple)
	b := ir.NewContainer(ir.KindTuple)

	assert.False(t, cd.WouldCycle(a), "first visit is not a cycle")
	cd.Record(a)
	assert.True(t, cd.WouldCycle(a))
	assert.False(t, cd.WouldCycle(b), "identity, not equality")
	assert.Equal(t, 1, cd.Size())

	cd.Clear(a)
	assert.False(t, cd.WouldCycle(a))
	assert.Equal(t, 0, cd.Size())
}

func TestCycleDetector_SharedChildIsNotACycle(t *testing.T) {
	cd := NewCycleDetector()
	child := ir.NewContainer(ir.KindTuple)
	parent := ir.NewContainer(ir.KindTuple, child, child)

	cd.Record(parent)
	for range parent.Items {
		require.False(t, cd.WouldCycle(child))
		cd.Record(child)
		cd.Clear(child)
	}
	cd.Clear(parent)
	assert.Equal(t, 0, cd.Size())
}
