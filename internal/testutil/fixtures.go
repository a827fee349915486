package testutil

import (
	"fmt"

	"github.com/roach88/pickleball/internal/host"
	"github.com/roach88/pickleball/internal/pickle"
)

// Protocols lists every pickle protocol the interpreter accepts.
var Protocols = []int{0, 1, 2, 3, 4, 5}

// Push writes a Go literal with the encoding the builder's protocol uses.
// Supported: nil, bool, int, int64, float64, string, []byte.
func Push(b *pickle.Builder, v any) *pickle.Builder {
	switch x := v.(type) {
	case nil:
		return b.None()
	case bool:
		return b.Bool(x)
	case int:
		return b.Int(int64(x))
	case int64:
		return b.Int(x)
	case float64:
		return b.Float(x)
	case string:
		return b.Str(x)
	case []byte:
		return b.Bytes(x)
	}
	panic(fmt.Sprintf("testutil.Push: unsupported literal %T", v))
}

// Tuple pushes args as a tuple.
func Tuple(b *pickle.Builder, args ...any) *pickle.Builder {
	if len(args) == 0 && b.Protocol() >= 1 {
		return b.Emit(pickle.EMPTY_TUPLE)
	}
	b.Emit(pickle.MARK)
	for _, a := range args {
		Push(b, a)
	}
	return b.Emit(pickle.TUPLE)
}

// GlobalPickle returns a stream that resolves module.name with GLOBAL.
func GlobalPickle(proto int, module, name string) []byte {
	return pickle.NewBuilder(proto).Global(module, name).Assemble()
}

// StackGlobalPickle returns a stream that pushes module and name as
// strings and combines them with STACK_GLOBAL.
func StackGlobalPickle(proto int, module, name string) []byte {
	return pickle.NewBuilder(proto).StackGlobal(module, name).Assemble()
}

// InstPickle returns a stream that instantiates module.name with INST and
// no arguments.
func InstPickle(proto int, module, name string) []byte {
	return pickle.NewBuilder(proto).Emit(pickle.MARK).Inst(module, name).Assemble()
}

// CallPickle returns a stream that calls module.name(*args) with REDUCE.
func CallPickle(proto int, module, name string, args ...any) []byte {
	b := pickle.NewBuilder(proto).Global(module, name)
	Tuple(b, args...)
	return b.Emit(pickle.REDUCE).Assemble()
}

// OrderedDictPickle returns collections.OrderedDict() populated with
// {"a": 1, "b": 2}.
func OrderedDictPickle(proto int) []byte {
	b := pickle.NewBuilder(proto).Global("collections", "OrderedDict")
	Tuple(b).Emit(pickle.REDUCE)
	if proto == 0 {
		b.Str("a").Int(1).Emit(pickle.SETITEM)
		b.Str("b").Int(2).Emit(pickle.SETITEM)
	} else {
		b.Emit(pickle.MARK).Str("a").Int(1).Str("b").Int(2).Emit(pickle.SETITEMS)
	}
	return b.Assemble()
}

// TorchStateDictPickle returns a protocol 2 state dict in the layout
// torch.save writes: an OrderedDict holding one float tensor of shape
// (2, 3) whose storage is a persistent id.
func TorchStateDictPickle() []byte {
	b := pickle.NewBuilder(2).Global("collections", "OrderedDict")
	b.Emit(pickle.EMPTY_TUPLE, pickle.REDUCE)
	b.Emit(pickle.MARK).Str("weight")

	b.Global("torch._utils", "_rebuild_tensor_v2")
	b.Emit(pickle.MARK)
	b.Emit(pickle.MARK).Str("storage").Global("torch", "FloatStorage").Str("0").Str("cpu").Int(6).Emit(pickle.TUPLE)
	b.Emit(pickle.BINPERSID)
	b.Int(0)
	b.Int(2).Int(3).Emit(pickle.TUPLE2)
	b.Int(3).Int(1).Emit(pickle.TUPLE2)
	b.Bool(false)
	b.Global("collections", "OrderedDict").Emit(pickle.EMPTY_TUPLE, pickle.REDUCE)
	b.Emit(pickle.TUPLE, pickle.REDUCE)

	b.Emit(pickle.SETITEMS)
	return b.Assemble()
}

// TorchStateDictPolicy lists what TorchStateDictPickle needs, as
// (globals, reduces).
func TorchStateDictPolicy() (globals, reduces []string) {
	return []string{"collections.OrderedDict", "torch._utils._rebuild_tensor_v2", "torch.FloatStorage"},
		[]string{"collections.OrderedDict", "torch._utils._rebuild_tensor_v2"}
}

// PersonClass is the class basic.create_person constructs.
var PersonClass = &host.Class{Module: "basic", Name: "Person"}

// BasicModule is a host module with one factory function,
// create_person(name, age).
func BasicModule() *host.Module {
	return host.NewModule("basic").
		Class(PersonClass).
		Func("create_person", func(args []host.Object, _ *host.Dict) (host.Object, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("create_person() takes 2 arguments (%d given)", len(args))
			}
			obj, err := PersonClass.NewObject(nil, nil)
			if err != nil {
				return nil, err
			}
			p := obj.(*host.Instance)
			if err := p.Dict.SetItem("name", args[0]); err != nil {
				return nil, err
			}
			if err := p.Dict.SetItem("age", args[1]); err != nil {
				return nil, err
			}
			return p, nil
		})
}

// OSModule is a stand-in os module whose dangerous members record that
// they ran. The anti-bypass tests assert the calls never happen.
func OSModule(calls *[]string) *host.Module {
	record := func(name string) func([]host.Object, *host.Dict) (host.Object, error) {
		return func([]host.Object, *host.Dict) (host.Object, error) {
			*calls = append(*calls, name)
			return nil, nil
		}
	}
	environ := host.NewModule("os.environ").Func("items", record("os.environ.items"))
	return host.NewModule("os").
		Func("getcwd", func([]host.Object, *host.Dict) (host.Object, error) { return "/", nil }).
		Func("system", record("os.system")).
		Func("cpu_count", record("os.cpu_count")).
		Set("environ", environ)
}

// Registry returns the default host registry plus the torch shim, basic,
// and an os stand-in that appends to calls.
func Registry(calls *[]string) *host.Registry {
	r := host.Default()
	host.RegisterTorch(r)
	osm := OSModule(calls)
	r.Register(BasicModule(), osm)

	// torch.serialization.os is the real os module in CPython; reaching
	// os.system through it is the point of the attack.
	if torch, ok := r.Module("torch"); ok {
		torch.Set("serialization", host.NewModule("torch.serialization").Set("os", osm))
	}
	return r
}
