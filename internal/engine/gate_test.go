package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pickleball/internal/host"
	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/pickle"
	"github.com/roach88/pickleball/internal/policy"
	"github.com/roach88/pickleball/internal/testutil"
)

const class = "lib"

func allow(globals, reduces []string) policy.Policy {
	return policy.Must(map[string]policy.Entry{class: {
		Globals: policy.Strings(globals...),
		Reduces: policy.Strings(reduces...),
	}})
}

func newGate(t *testing.T, opts ...Option) (*Gate, *[]string) {
	t.Helper()
	calls := &[]string{}
	return NewGate(testutil.Registry(calls), opts...), calls
}

func requireViolation(t *testing.T, err error, kind ViolationKind, name ir.QualifiedName) {
	t.Helper()
	require.Error(t, err)
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv, "got %v", err)
	assert.Equal(t, kind, pv.Kind)
	assert.Equal(t, name, pv.Name)
	assert.Equal(t, class, pv.ClassID)
}

// =============================================================================
// Anti-bypass
// =============================================================================

// TestGate_DottedNameIsAtomic tests that allowing os.getcwd does not allow
// os.environ.items under any acquisition encoding.
func TestGate_DottedNameIsAtomic(t *testing.T) {
	g, calls := newGate(t)
	p := allow([]string{"os.getcwd"}, []string{"os.getcwd"})

	for _, proto := range testutil.Protocols {
		for _, data := range [][]byte{
			testutil.GlobalPickle(proto, "os", "environ.items"),
			testutil.StackGlobalPickle(proto, "os", "environ.items"),
			testutil.InstPickle(proto, "os", "environ.items"),
			testutil.CallPickle(proto, "os", "environ.items"),
		} {
			obj, err := g.Load(context.Background(), data, p, class)
			requireViolation(t, err, ViolationGlobal, "os.environ.items")
			assert.Nil(t, obj)
		}
	}
	assert.Empty(t, *calls)

	obj, err := g.Load(context.Background(), testutil.CallPickle(2, "os", "getcwd"), p, class)
	require.NoError(t, err)
	assert.Equal(t, "/", obj)
}

// TestGate_InstCallingFunction tests that INST on a function needs reduce
// permission.
func TestGate_InstCallingFunction(t *testing.T) {
	g, calls := newGate(t)
	data := testutil.InstPickle(2, "torch", "serialization.os.system")

	_, err := g.Load(context.Background(), data, allow(nil, nil), class)
	requireViolation(t, err, ViolationGlobal, "torch.serialization.os.system")

	_, err = g.Load(context.Background(), data, allow([]string{"torch.serialization.os.system"}, nil), class)
	requireViolation(t, err, ViolationReduce, "torch.serialization.os.system")

	obj := pickle.NewBuilder(1).Emit(pickle.MARK).Global("torch", "serialization.os.system").Str("id").Emit(pickle.OBJ).Assemble()
	_, err = g.Load(context.Background(), obj, allow([]string{"torch.serialization.os.system"}, nil), class)
	requireViolation(t, err, ViolationReduce, "torch.serialization.os.system")

	assert.Empty(t, *calls)
}

// TestGate_NewObjRequiresClass tests that NEWOBJ on a function is refused
// even when the function may be called.
func TestGate_NewObjRequiresClass(t *testing.T) {
	g, calls := newGate(t)
	p := allow([]string{"os.system"}, []string{"os.system"})
	data := pickle.NewBuilder(2).Global("os", "system").Str("id").Emit(pickle.TUPLE1, pickle.NEWOBJ).Assemble()

	_, err := g.Load(context.Background(), data, p, class)
	requireViolation(t, err, ViolationNotAClass, "os.system")
	assert.Empty(t, *calls)
}

// TestGate_BuildOnModule tests that BUILD cannot assign attributes on a
// module.
func TestGate_BuildOnModule(t *testing.T) {
	var calls []string
	r := testutil.Registry(&calls)
	g := NewGate(r)
	p := allow([]string{"os.environ", "os.cpu_count"}, nil)

	b := pickle.NewBuilder(2).Global("os", "environ")
	b.None().Emit(pickle.EMPTY_DICT).Str("items").Global("os", "cpu_count").Emit(pickle.SETITEM, pickle.TUPLE2)
	b.Emit(pickle.BUILD)

	_, err := g.Load(context.Background(), b.Assemble(), p, class)
	require.Error(t, err)
	assert.True(t, IsCallFailed(err), "got %v", err)

	items, err := r.Resolve("os", "environ.items")
	require.NoError(t, err)
	assert.Equal(t, "items", items.(*host.Func).Name)
	assert.Empty(t, calls)
}

// TestGate_ItemAssignmentOnModule tests that SETITEM on a non-container
// target fails closed.
func TestGate_ItemAssignmentOnModule(t *testing.T) {
	g, _ := newGate(t)
	p := allow([]string{"os.environ", "os.cpu_count"}, nil)
	data := pickle.NewBuilder(2).Global("os", "environ").Str("items").Global("os", "cpu_count").Emit(pickle.SETITEM).Assemble()

	_, err := g.Load(context.Background(), data, p, class)
	assert.True(t, IsCallFailed(err), "got %v", err)
}

// =============================================================================
// Reduce provenance
// =============================================================================

// TestGate_ReduceProvenance tests that only accepted References can be
// called.
func TestGate_ReduceProvenance(t *testing.T) {
	g, calls := newGate(t)

	t.Run("string callable", func(t *testing.T) {
		data := pickle.NewBuilder(2).Str("os.system").Str("id").Emit(pickle.TUPLE1, pickle.REDUCE).Assemble()
		_, err := g.Load(context.Background(), data, allow([]string{"os.system"}, []string{"os.system"}), class)
		requireViolation(t, err, ViolationProvenance, "str")
	})

	t.Run("call result", func(t *testing.T) {
		b := pickle.NewBuilder(2).Global("collections", "OrderedDict").Emit(pickle.EMPTY_TUPLE, pickle.REDUCE)
		b.Emit(pickle.EMPTY_TUPLE, pickle.REDUCE)
		p := allow([]string{"collections.OrderedDict"}, []string{"collections.OrderedDict"})
		_, err := g.Load(context.Background(), b.Assemble(), p, class)
		requireViolation(t, err, ViolationProvenance, "OrderedDict")
	})

	t.Run("global but not reduce", func(t *testing.T) {
		_, err := g.Load(context.Background(), testutil.CallPickle(2, "os", "getcwd"), allow([]string{"os.getcwd"}, nil), class)
		requireViolation(t, err, ViolationReduce, "os.getcwd")
	})

	assert.Empty(t, *calls)
}

// =============================================================================
// Successful loads
// =============================================================================

// TestGate_ReduceFixture tests the create_person end-to-end load.
func TestGate_ReduceFixture(t *testing.T) {
	g, _ := newGate(t)
	for _, proto := range testutil.Protocols {
		data := testutil.CallPickle(proto, "basic", "create_person", "bob", 5)
		tr, err := Trace(context.Background(), data)
		require.NoError(t, err)
		p, _, err := policy.Extract(class, tr)
		require.NoError(t, err)

		obj, err := g.Load(context.Background(), data, p, class)
		require.NoError(t, err, "protocol %d", proto)
		person, ok := obj.(*host.Instance)
		require.True(t, ok)
		assert.Same(t, testutil.PersonClass, person.Class)
		name, _ := person.Dict.Get("name")
		age, _ := person.Dict.Get("age")
		assert.Equal(t, "bob", name)
		assert.Equal(t, int64(5), age)
	}
}

// TestGate_OrderedDict tests SETITEMS forwarded to a call result.
func TestGate_OrderedDict(t *testing.T) {
	g, _ := newGate(t)
	p := allow([]string{"collections.OrderedDict"}, []string{"collections.OrderedDict"})
	for _, proto := range testutil.Protocols {
		obj, err := g.Load(context.Background(), testutil.OrderedDictPickle(proto), p, class)
		require.NoError(t, err, "protocol %d", proto)
		d, ok := obj.(*host.Dict)
		require.True(t, ok)
		assert.Equal(t, []host.Object{"a", "b"}, d.Keys())
		v, _ := d.Get("b")
		assert.Equal(t, int64(2), v)
	}
}

// TestGate_TorchStateDict tests a state dict with persistent storages.
func TestGate_TorchStateDict(t *testing.T) {
	globals, reduces := testutil.TorchStateDictPolicy()
	p := allow(globals, reduces)
	data := testutil.TorchStateDictPickle()

	g, _ := newGate(t, WithPersistentLoader(host.TorchPersistentLoader()))
	obj, err := g.Load(context.Background(), data, p, class)
	require.NoError(t, err)

	sd, ok := obj.(*host.Dict)
	require.True(t, ok)
	w, ok := sd.Get("weight")
	require.True(t, ok)
	tensor, ok := w.(*host.Tensor)
	require.True(t, ok)
	assert.Equal(t, []int64{2, 3}, tensor.Size)
	assert.Equal(t, []int64{3, 1}, tensor.Stride)
	assert.Equal(t, "Float", tensor.Storage.DType)
	assert.Equal(t, "cpu", tensor.Storage.Location)
	assert.Equal(t, int64(6), tensor.Storage.Numel)

	noLoader, _ := newGate(t)
	_, err = noLoader.Load(context.Background(), data, p, class)
	assert.True(t, IsCallFailed(err), "got %v", err)
}

// TestGate_NewObjAndBuild tests class instantiation followed by BUILD.
func TestGate_NewObjAndBuild(t *testing.T) {
	g, _ := newGate(t)
	b := pickle.NewBuilder(2).Global("basic", "Person").Emit(pickle.EMPTY_TUPLE, pickle.NEWOBJ)
	b.Emit(pickle.EMPTY_DICT).Str("name").Str("ann").Emit(pickle.SETITEM, pickle.BUILD)

	obj, err := g.Load(context.Background(), b.Assemble(), allow([]string{"basic.Person"}, nil), class)
	require.NoError(t, err)
	person := obj.(*host.Instance)
	name, _ := person.Dict.Get("name")
	assert.Equal(t, "ann", name)
}

// TestGate_SelfReferentialList tests that memo aliasing survives
// realization.
func TestGate_SelfReferentialList(t *testing.T) {
	g, _ := newGate(t)
	data := pickle.NewBuilder(2).Emit(pickle.EMPTY_LIST).Put(0).Get(0).Emit(pickle.APPEND).Assemble()

	obj, err := g.Load(context.Background(), data, policy.Policy{}, class)
	require.NoError(t, err)
	l := obj.(*host.List)
	require.Len(t, l.Items, 1)
	assert.Same(t, l, l.Items[0])
}

// TestGate_SelfReferentialTuple tests that a tuple reaching itself is
// rejected rather than built.
func TestGate_SelfReferentialTuple(t *testing.T) {
	g, _ := newGate(t)
	b := pickle.NewBuilder(2).Emit(pickle.EMPTY_LIST).Put(0).Emit(pickle.TUPLE1).Put(1)
	b.Get(0).Get(1).Emit(pickle.APPEND, pickle.POP)

	_, err := g.Load(context.Background(), b.Assemble(), policy.Policy{}, class)
	assert.True(t, IsMalformed(err), "got %v", err)
}

// TestGate_UnhashableKey tests that a list used as a dict key is refused.
func TestGate_UnhashableKey(t *testing.T) {
	g, _ := newGate(t)
	data := pickle.NewBuilder(2).Emit(pickle.EMPTY_DICT, pickle.EMPTY_LIST).Int(1).Emit(pickle.SETITEM).Assemble()

	_, err := g.Load(context.Background(), data, policy.Policy{}, class)
	assert.True(t, IsMalformed(err), "got %v", err)
}

// TestGate_ResourceLimits tests each structural bound while loading.
func TestGate_ResourceLimits(t *testing.T) {
	g, calls := newGate(t, WithLimits(tightLimits()))
	for name, data := range limitBombs() {
		t.Run(name, func(t *testing.T) {
			_, err := g.Load(context.Background(), data, policy.Policy{}, class)
			require.Error(t, err)
			assert.True(t, IsResourceLimit(err), "got %v", err)
		})
	}
	assert.Empty(t, *calls)
}

// TestGate_DoublingKey tests that a dict key built from a tuple shared at
// every level is refused instead of hashed node by node.
func TestGate_DoublingKey(t *testing.T) {
	g, _ := newGate(t, WithTimeout(time.Second))

	start := time.Now()
	_, err := g.Load(context.Background(), doublingKey(40), policy.Policy{}, class)
	require.Error(t, err)
	assert.True(t, IsResourceLimit(err), "got %v", err)
	assert.ErrorIs(t, err, host.ErrKeyTooLarge)
	assert.Less(t, time.Since(start), time.Second)

	// A shallow shared key still loads.
	obj, err := g.Load(context.Background(), doublingKey(4), policy.Policy{}, class)
	require.NoError(t, err)
	assert.Equal(t, 1, obj.(*host.Dict).Len())
}

// TestGate_LoadStacked tests one object per pickle.
func TestGate_LoadStacked(t *testing.T) {
	g, _ := newGate(t)
	p := allow([]string{"os.getcwd"}, []string{"os.getcwd"})
	data := append(testutil.CallPickle(2, "os", "getcwd"), pickle.NewBuilder(2).Int(7).Assemble()...)

	objs, err := g.LoadStacked(context.Background(), data, p, class)
	require.NoError(t, err)
	assert.Equal(t, []host.Object{"/", int64(7)}, objs)
}

// TestGate_ResolveFailed tests an allowed name missing from the registry.
func TestGate_ResolveFailed(t *testing.T) {
	g, _ := newGate(t)
	_, err := g.Load(context.Background(), testutil.GlobalPickle(2, "numpy", "dtype"), allow([]string{"numpy.dtype"}, nil), class)
	require.Error(t, err)
	assert.True(t, IsCallFailed(err))
	assert.ErrorIs(t, err, host.ErrModuleNotFound)
}

// TestGate_UnknownClassAllowsNothing tests a class id absent from the
// policy.
func TestGate_UnknownClassAllowsNothing(t *testing.T) {
	g, _ := newGate(t)
	p := allow([]string{"os.getcwd"}, nil)

	_, err := g.Load(context.Background(), testutil.GlobalPickle(2, "os", "getcwd"), p, "other")
	require.True(t, IsPolicyViolation(err))

	obj, err := g.Load(context.Background(), pickle.NewBuilder(2).Str("plain").Assemble(), p, "other")
	require.NoError(t, err)
	assert.Equal(t, "plain", obj)
}

// =============================================================================
// Fail-closed round trip
// =============================================================================

type roundTripCase struct {
	name string
	data []byte
	opts []Option
}

func roundTripCases() []roundTripCase {
	cases := []roundTripCase{
		{name: "torch state dict", data: testutil.TorchStateDictPickle(), opts: []Option{WithPersistentLoader(host.TorchPersistentLoader())}},
	}
	for _, proto := range testutil.Protocols {
		cases = append(cases,
			roundTripCase{name: fmt.Sprintf("create_person/%d", proto), data: testutil.CallPickle(proto, "basic", "create_person", "bob", 5)},
			roundTripCase{name: fmt.Sprintf("ordered dict/%d", proto), data: testutil.OrderedDictPickle(proto)},
		)
	}
	return cases
}

// TestGate_FailClosedRoundTrip tests that the extracted policy admits its
// stream and that removing any one name rejects it.
func TestGate_FailClosedRoundTrip(t *testing.T) {
	for _, tc := range roundTripCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			g, _ := newGate(t, tc.opts...)

			tr, err := Trace(ctx, tc.data)
			require.NoError(t, err)
			p, _, err := policy.Extract(class, tr)
			require.NoError(t, err)

			_, err = g.Load(ctx, tc.data, p, class)
			require.NoError(t, err)

			entry, _ := p.Entry(class)
			for _, name := range entry.Globals.Names() {
				reduced := policy.Entry{Globals: entry.Globals.Difference(policy.NewNameSet(name)), Reduces: entry.Reduces}
				_, err := g.Load(ctx, tc.data, policy.Must(map[string]policy.Entry{class: reduced}), class)
				assert.True(t, IsPolicyViolation(err), "without global %s: %v", name, err)
			}
			for _, name := range entry.Reduces.Names() {
				reduced := policy.Entry{Globals: entry.Globals, Reduces: entry.Reduces.Difference(policy.NewNameSet(name))}
				_, err := g.Load(ctx, tc.data, policy.Must(map[string]policy.Entry{class: reduced}), class)
				assert.True(t, IsPolicyViolation(err), "without reduce %s: %v", name, err)
			}
		})
	}
}

// TestGate_ConcurrentLoads tests one Gate shared by many goroutines.
func TestGate_ConcurrentLoads(t *testing.T) {
	g, _ := newGate(t)
	p := allow([]string{"collections.OrderedDict"}, []string{"collections.OrderedDict"})
	data := testutil.OrderedDictPickle(4)

	var wg sync.WaitGroup
	errs := make([]error, 32)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = g.Load(context.Background(), data, p, class)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}
