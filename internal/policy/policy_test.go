package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/ir"
)

func TestNewValidates(t *testing.T) {
	_, err := New(map[string]Entry{"": {}})
	assert.ErrorIs(t, err, ErrEmptyClassID)

	_, err = New(map[string]Entry{"torch": {Globals: Strings("")}})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestMissingClassAllowsNothing(t *testing.T) {
	p := Must(map[string]Entry{"torch": {Globals: Strings("torch._utils._rebuild_tensor_v2")}})
	e, ok := p.Entry("transformers")
	assert.False(t, ok)
	assert.False(t, e.AllowsGlobal("torch._utils._rebuild_tensor_v2"))
	assert.True(t, e.Empty())
}

func TestExtractReduceFixture(t *testing.T) {
	trace := ir.Trace{
		ir.GlobalResolved{Name: "basic.create_person"},
		ir.ReduceInvoked{Callable: "basic.create_person", Bare: "create_person", Argc: 2},
	}
	p, warnings, err := Extract("basic", trace)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	e, ok := p.Entry("basic")
	require.True(t, ok)
	assert.Equal(t, []string{"basic.create_person"}, e.Globals.Strings())
	assert.Equal(t, []string{"basic.create_person"}, e.Reduces.Strings())
}

func TestResolveReduceName(t *testing.T) {
	globals := ir.Names("collections.OrderedDict", "torch._utils._rebuild_tensor_v2", "mylib.OrderedDict")

	tests := []struct {
		name       string
		ev         ir.ReduceInvoked
		want       ir.QualifiedName
		wantWarn   bool
		candidates int
	}{
		{"exact callable", ir.ReduceInvoked{Callable: "a.b", Bare: "b"}, "a.b", false, 0},
		{"single tail match", ir.ReduceInvoked{Bare: "_rebuild_tensor_v2"}, "torch._utils._rebuild_tensor_v2", false, 0},
		{"first match wins", ir.ReduceInvoked{Bare: "OrderedDict"}, "collections.OrderedDict", true, 2},
		{"builtins fallback", ir.ReduceInvoked{Bare: "getattr"}, "builtins.getattr", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, w := ResolveReduceName(tt.ev, globals)
			assert.Equal(t, tt.want, got)
			if !tt.wantWarn {
				assert.Nil(t, w)
				return
			}
			require.NotNil(t, w)
			assert.Equal(t, AmbiguousReduceResolution, w.Kind)
			assert.Len(t, w.Candidates, tt.candidates)
		})
	}
}

func TestExtractCollectsWarnings(t *testing.T) {
	trace := ir.Trace{
		ir.ReduceInvoked{Bare: "list", Argc: 0},
	}
	p, warnings, err := Extract("c", trace)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].String(), "builtins.list")

	e, _ := p.Entry("c")
	assert.Equal(t, 0, e.Globals.Len())
	assert.True(t, e.AllowsReduce("builtins.list"))
}

func fixtures() (a, b, c Policy) {
	a = Must(map[string]Entry{
		"torch": {Globals: Strings("torch.FloatStorage", "collections.OrderedDict"), Reduces: Strings("collections.OrderedDict")},
	})
	b = Must(map[string]Entry{
		"torch":        {Globals: Strings("torch._utils._rebuild_tensor_v2"), Reduces: Strings("torch._utils._rebuild_tensor_v2")},
		"transformers": {Globals: Strings("transformers.BertConfig")},
	})
	c = Must(map[string]Entry{
		"sklearn": {Globals: Strings("numpy.dtype"), Reduces: Strings("numpy.dtype")},
		"torch":   {Globals: Strings("torch.FloatStorage")},
	})
	return a, b, c
}

func TestUnionLaws(t *testing.T) {
	a, b, c := fixtures()
	empty := Policy{}

	assert.True(t, Union(a, b).Equal(Union(b, a)), "commutative")
	assert.True(t, Union(Union(a, b), c).Equal(Union(a, Union(b, c))), "associative")
	assert.True(t, Union(a, a).Equal(a), "idempotent")
	assert.True(t, Union(a, empty).Equal(a), "identity")
	assert.Equal(t, 0, Union().Len())

	u := Union(a, b, c)
	assert.Equal(t, []string{"sklearn", "torch", "transformers"}, u.Classes())
	e, _ := u.Entry("torch")
	assert.Equal(t, []string{"collections.OrderedDict", "torch.FloatStorage", "torch._utils._rebuild_tensor_v2"}, e.Globals.Strings())
}

func TestUnionDoesNotMutateInputs(t *testing.T) {
	a, b, _ := fixtures()
	before, err := a.Digest()
	require.NoError(t, err)
	_ = Union(a, b)
	after, err := a.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCompareDegenerate(t *testing.T) {
	a, b, _ := fixtures()
	for _, p := range []Policy{{}, a, Union(a, b)} {
		cmp := Compare(p, p)
		for class, ec := range cmp.Classes {
			for _, s := range []Score{ec.Globals, ec.Reduces} {
				assert.Equal(t, 1.0, s.Precision, class)
				assert.Equal(t, 1.0, s.Recall, class)
				assert.Equal(t, 1.0, s.F1, class)
			}
		}
	}

	empty := CompareEntries(Entry{}, Entry{})
	assert.Equal(t, 1.0, empty.Globals.F1)
}

func TestCompareWorkedExample(t *testing.T) {
	baseline := Entry{Globals: Strings("A", "B", "C")}
	candidate := Entry{Globals: Strings("B", "C", "D")}

	s := CompareEntries(baseline, candidate).Globals
	assert.Equal(t, 2, s.TP())
	assert.Equal(t, 1, s.FP())
	assert.Equal(t, 1, s.FN())
	assert.InDelta(t, 2.0/3.0, s.Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, s.Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, s.F1, 1e-12)
}

func TestCompareOneSidedEmpty(t *testing.T) {
	s := ScoreSets(Strings("A"), NameSet{})
	assert.Equal(t, 1.0, s.Precision, "no predictions, no false positives")
	assert.Equal(t, 0.0, s.Recall)
	assert.Equal(t, 0.0, s.F1)
}

func TestCompareClassesFromBothSides(t *testing.T) {
	a, b, _ := fixtures()
	cmp := Compare(a, b)
	assert.Equal(t, []string{"torch", "transformers"}, cmp.ClassIDs())
	tr := cmp.Classes["transformers"].Globals
	assert.Equal(t, 0.0, tr.Precision)
	assert.Equal(t, 1.0, tr.Recall, "nothing to recall")
	assert.Equal(t, 0.0, tr.F1)
}

func TestDigestOrderIndependent(t *testing.T) {
	p1 := Must(map[string]Entry{"x": {Globals: Strings("b", "a")}})
	p2 := Must(map[string]Entry{"x": {Globals: Strings("a", "b", "a")}})
	d1, err := p1.Digest()
	require.NoError(t, err)
	d2, err := p2.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
