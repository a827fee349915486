package host

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Default returns a registry with the builtin modules every pickle may
// reference: builtins (and __builtin__), collections, _codecs and copyreg
// (and copy_reg).
func Default() *Registry {
	r := NewRegistry()
	r.Register(BuiltinsModule(), CollectionsModule(), CodecsModule(), CopyregModule())
	_ = r.Alias("__builtin__", "builtins")
	_ = r.Alias("copy_reg", "copyreg")
	return r
}

// ObjectClass is builtins.object. copyreg._reconstructor compares against it.
var ObjectClass = &Class{Module: "builtins", Name: "object"}

// BuiltinsModule returns the builtins module.
func BuiltinsModule() *Module {
	m := NewModule("builtins")
	m.Class(ObjectClass)
	m.Class(containerClass("set", func(items []Object) (Object, error) { return setOf(false, items) }))
	m.Class(containerClass("frozenset", func(items []Object) (Object, error) { return setOf(true, items) }))
	m.Class(containerClass("list", func(items []Object) (Object, error) { return NewList(items...), nil }))
	m.Class(containerClass("tuple", func(items []Object) (Object, error) { return Tuple(items), nil }))
	m.Class(&Class{Name: "dict", Construct: constructDict, Alloc: allocDict})
	m.Class(&Class{Name: "bytearray", Construct: constructByteArray, Alloc: func(*Class, []Object, *Dict) (Object, error) {
		return &ByteArray{}, nil
	}})
	m.Class(&Class{Name: "bytes", Construct: constructBytes})
	m.Class(&Class{Name: "int", Construct: constructInt})
	m.Class(&Class{Name: "float", Construct: constructFloat})
	m.Class(&Class{Name: "str", Construct: constructStr})
	m.Class(&Class{Name: "bool", Construct: constructBool})
	return m
}

// CollectionsModule returns collections with OrderedDict. Dict preserves
// insertion order, so both share one representation.
func CollectionsModule() *Module {
	return NewModule("collections").
		Class(&Class{Name: "OrderedDict", Construct: constructDict, Alloc: allocDict})
}

// CodecsModule returns _codecs with encode, used by protocol 2 pickles to
// carry bytes as latin-1 text.
func CodecsModule() *Module {
	return NewModule("_codecs").Func("encode", codecsEncode)
}

// CopyregModule returns copyreg with _reconstructor.
func CopyregModule() *Module {
	return NewModule("copyreg").Func("_reconstructor", reconstructor)
}

func containerClass(name string, build func(items []Object) (Object, error)) *Class {
	return &Class{
		Name: name,
		Construct: func(cls *Class, args []Object, _ *Dict) (Object, error) {
			if len(args) > 1 {
				return nil, badArgs(name, "expected at most 1 argument, got %d", len(args))
			}
			var items []Object
			if len(args) == 1 {
				var err error
				if items, err = iterate(args[0]); err != nil {
					return nil, fmt.Errorf("%s: %w", name, err)
				}
			}
			return build(items)
		},
		Alloc: func(*Class, []Object, *Dict) (Object, error) {
			return build(nil)
		},
	}
}

func setOf(frozen bool, items []Object) (*Set, error) {
	s := NewSet(frozen)
	for _, it := range items {
		if err := s.Add(it); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func allocDict(*Class, []Object, *Dict) (Object, error) {
	return NewDict(), nil
}

func constructDict(_ *Class, args []Object, kwargs *Dict) (Object, error) {
	d := NewDict()
	if len(args) > 1 {
		return nil, badArgs("dict", "expected at most 1 argument, got %d", len(args))
	}
	if len(args) == 1 {
		switch src := args[0].(type) {
		case *Dict:
			if err := d.Update(src); err != nil {
				return nil, err
			}
		default:
			pairs, err := iterate(src)
			if err != nil {
				return nil, fmt.Errorf("dict: %w", err)
			}
			for i, p := range pairs {
				kv, err := iterate(p)
				if err != nil || len(kv) != 2 {
					return nil, badArgs("dict", "element %d is not a pair", i)
				}
				if err := d.SetItem(kv[0], kv[1]); err != nil {
					return nil, err
				}
			}
		}
	}
	if kwargs != nil {
		if err := d.Update(kwargs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func constructByteArray(_ *Class, args []Object, _ *Dict) (Object, error) {
	if len(args) == 0 {
		return &ByteArray{}, nil
	}
	b, err := toBytes("bytearray", args)
	if err != nil {
		return nil, err
	}
	return &ByteArray{Data: b}, nil
}

func constructBytes(_ *Class, args []Object, _ *Dict) (Object, error) {
	if len(args) == 0 {
		return []byte{}, nil
	}
	return toBytes("bytes", args)
}

func toBytes(callee string, args []Object) ([]byte, error) {
	switch src := args[0].(type) {
	case []byte:
		return append([]byte(nil), src...), nil
	case *ByteArray:
		return append([]byte(nil), src.Data...), nil
	case string:
		if len(args) < 2 {
			return nil, badArgs(callee, "string argument without an encoding")
		}
		enc, _ := AsString(args[1])
		return encodeString(src, enc)
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", callee, err)
	}
	out := make([]byte, len(items))
	for i, it := range items {
		n, ok := AsInt(it)
		if !ok || n < 0 || n > 255 {
			return nil, badArgs(callee, "byte %d out of range", i)
		}
		out[i] = byte(n)
	}
	return out, nil
}

// maxIntDigits bounds int(str). Decimal conversion is superlinear.
const maxIntDigits = 4300

func constructInt(_ *Class, args []Object, _ *Dict) (Object, error) {
	if len(args) == 0 {
		return int64(0), nil
	}
	switch v := args[0].(type) {
	case int64, *big.Int:
		return v, nil
	case bool:
		n, _ := AsInt(v)
		return n, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, badArgs("int", "cannot convert float %v to integer", v)
		}
		if v >= -(1<<63) && v < 1<<63 {
			return int64(v), nil
		}
		n, _ := big.NewFloat(v).Int(nil)
		return n, nil
	case string:
		s := strings.TrimSpace(v)
		if digits := strings.TrimLeft(s, "+-"); len(digits) > maxIntDigits {
			return nil, badArgs("int", "literal has %d digits, limit %d", len(digits), maxIntDigits)
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if n, ok := new(big.Int).SetString(s, 10); ok {
			return n, nil
		}
		return nil, badArgs("int", "invalid literal %q", v)
	}
	return nil, badArgs("int", "unsupported argument %s", TypeName(args[0]))
}

func constructFloat(_ *Class, args []Object, _ *Dict) (Object, error) {
	if len(args) == 0 {
		return float64(0), nil
	}
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, badArgs("float", "invalid literal %q", v)
		}
		return f, nil
	}
	return nil, badArgs("float", "unsupported argument %s", TypeName(args[0]))
}

func constructStr(_ *Class, args []Object, _ *Dict) (Object, error) {
	if len(args) == 0 {
		return "", nil
	}
	switch v := args[0].(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return nil, badArgs("str", "unsupported argument %s", TypeName(args[0]))
}

func constructBool(_ *Class, args []Object, _ *Dict) (Object, error) {
	if len(args) == 0 {
		return false, nil
	}
	switch v := args[0].(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case int64:
		return v != 0, nil
	case string:
		return v != "", nil
	}
	return nil, badArgs("bool", "unsupported argument %s", TypeName(args[0]))
}

func codecsEncode(args []Object, _ *Dict) (Object, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, badArgs("_codecs.encode", "expected 1 or 2 arguments, got %d", len(args))
	}
	s, ok := AsString(args[0])
	if !ok {
		return nil, badArgs("_codecs.encode", "expected str, got %s", TypeName(args[0]))
	}
	enc := "utf-8"
	if len(args) == 2 {
		if enc, ok = AsString(args[1]); !ok {
			return nil, badArgs("_codecs.encode", "encoding must be str")
		}
	}
	return encodeString(s, enc)
}

func encodeString(s, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "_", "-")) {
	case "utf-8", "utf8":
		return []byte(s), nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				return nil, badArgs("encode", "character %U not in latin-1", r)
			}
			out = append(out, byte(r))
		}
		return out, nil
	case "ascii":
		for _, r := range s {
			if r > 0x7f {
				return nil, badArgs("encode", "character %U not in ascii", r)
			}
		}
		return []byte(s), nil
	}
	return nil, badArgs("encode", "unsupported encoding %q", encoding)
}

// reconstructor implements copyreg._reconstructor(cls, base, state) for
// the object base.
func reconstructor(args []Object, _ *Dict) (Object, error) {
	if len(args) != 3 {
		return nil, badArgs("copyreg._reconstructor", "expected 3 arguments, got %d", len(args))
	}
	cls, ok := args[0].(*Class)
	if !ok {
		return nil, badArgs("copyreg._reconstructor", "cls is %s, not a class", TypeName(args[0]))
	}
	base, ok := args[1].(*Class)
	if !ok {
		return nil, badArgs("copyreg._reconstructor", "base is %s, not a class", TypeName(args[1]))
	}
	if base != ObjectClass {
		return base.Call([]Object{args[2]}, nil)
	}
	return cls.NewObject(nil, nil)
}

// iterate expands an iterable object into its items.
func iterate(v Object) ([]Object, error) {
	switch o := v.(type) {
	case *List:
		return append([]Object(nil), o.Items...), nil
	case Tuple:
		return append([]Object(nil), o...), nil
	case *Set:
		return o.Items(), nil
	case *Dict:
		return o.Keys(), nil
	case string:
		out := make([]Object, 0, len(o))
		for _, r := range o {
			out = append(out, string(r))
		}
		return out, nil
	case []byte:
		out := make([]Object, len(o))
		for i, b := range o {
			out[i] = int64(b)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s object is not iterable", TypeName(v))
}
