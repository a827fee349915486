package host

import (
	"fmt"
	"math/big"
)

// Object is any host value. Literals use Go types directly: nil, bool,
// int64, *big.Int, float64, string and []byte. Containers use the types in
// this package.
type Object = any

// Callable is implemented by host functions and classes.
type Callable interface {
	Call(args []Object, kwargs *Dict) (Object, error)
}

// AttrGetter exposes named attributes. Registry.Resolve walks dotted names
// through AttrGetters.
type AttrGetter interface {
	Attr(name string) (Object, bool)
}

// StateSetter receives BUILD state.
type StateSetter interface {
	SetState(state Object) error
}

// ItemSetter receives SETITEM and SETITEMS pairs.
type ItemSetter interface {
	SetItem(key, value Object) error
}

// Appender receives APPEND and APPENDS items.
type Appender interface {
	Append(item Object) error
}

// Adder receives ADDITEMS items.
type Adder interface {
	Add(item Object) error
}

// PersistentLoader maps a persistent id to an object.
type PersistentLoader interface {
	PersistentLoad(pid Object) (Object, error)
}

// PersistentLoaderFunc adapts a function to PersistentLoader.
type PersistentLoaderFunc func(pid Object) (Object, error)

func (f PersistentLoaderFunc) PersistentLoad(pid Object) (Object, error) {
	return f(pid)
}

// Func is a host function.
type Func struct {
	Module string
	Name   string
	Fn     func(args []Object, kwargs *Dict) (Object, error)
}

// Call invokes the function.
func (f *Func) Call(args []Object, kwargs *Dict) (Object, error) {
	return f.Fn(args, kwargs)
}

func (f *Func) String() string {
	return fmt.Sprintf("<function %s.%s>", f.Module, f.Name)
}

// Class is a host type. Calling it constructs an instance; Alloc is the
// __new__ path used by NEWOBJ and OBJ with no arguments.
type Class struct {
	Module string
	Name   string

	// Construct implements cls(*args, **kwargs). Nil builds an Instance.
	Construct func(cls *Class, args []Object, kwargs *Dict) (Object, error)
	// Alloc implements cls.__new__(cls, *args, **kwargs). Nil builds an
	// Instance without running Construct.
	Alloc func(cls *Class, args []Object, kwargs *Dict) (Object, error)

	Attrs map[string]Object
}

// Call constructs an instance.
func (c *Class) Call(args []Object, kwargs *Dict) (Object, error) {
	if c.Construct != nil {
		return c.Construct(c, args, kwargs)
	}
	return c.NewObject(args, kwargs)
}

// NewObject allocates an instance without initialization.
func (c *Class) NewObject(args []Object, kwargs *Dict) (Object, error) {
	if c.Alloc != nil {
		return c.Alloc(c, args, kwargs)
	}
	return &Instance{Class: c, Dict: NewDict(), Args: args}, nil
}

// Attr returns a class attribute.
func (c *Class) Attr(name string) (Object, bool) {
	v, ok := c.Attrs[name]
	return v, ok
}

func (c *Class) String() string {
	return fmt.Sprintf("<class %s.%s>", c.Module, c.Name)
}

// Instance is a generic object: a class pointer, an attribute dict and
// any non-dict state applied by BUILD.
type Instance struct {
	Class *Class
	Dict  *Dict
	State Object
	Args  []Object
}

// SetState follows the default __setstate__ protocol: a dict updates the
// attribute dict, a (dict, slots) pair updates both, anything else is kept
// as opaque state.
func (i *Instance) SetState(state Object) error {
	switch s := state.(type) {
	case *Dict:
		return i.Dict.Update(s)
	case Tuple:
		if len(s) == 2 && dictOrNone(s[0]) && dictOrNone(s[1]) {
			for _, part := range s {
				if d, ok := part.(*Dict); ok {
					if err := i.Dict.Update(d); err != nil {
						return err
					}
				}
			}
			return nil
		}
	}
	i.State = state
	return nil
}

func dictOrNone(v Object) bool {
	if v == nil {
		return true
	}
	_, ok := v.(*Dict)
	return ok
}

// Attr looks up an instance attribute, then the class.
func (i *Instance) Attr(name string) (Object, bool) {
	if v, ok := i.Dict.Get(name); ok {
		return v, true
	}
	return i.Class.Attr(name)
}

func (i *Instance) String() string {
	return fmt.Sprintf("<%s.%s object>", i.Class.Module, i.Class.Name)
}

// AsInt converts an integer object to int64.
func AsInt(v Object) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case *big.Int:
		if n.IsInt64() {
			return n.Int64(), true
		}
	}
	return 0, false
}

// AsString converts a str object.
func AsString(v Object) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// TypeName returns the Python-facing type name of an object.
func TypeName(v Object) string {
	switch o := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64, *big.Int:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []byte:
		return "bytes"
	case *ByteArray:
		return "bytearray"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case Tuple:
		return "tuple"
	case *Set:
		if o.Frozen {
			return "frozenset"
		}
		return "set"
	case *Class:
		return "type"
	case *Func:
		return "function"
	case *Instance:
		return o.Class.Name
	}
	return fmt.Sprintf("%T", v)
}
