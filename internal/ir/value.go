package ir

import (
	"fmt"
	"math/big"
)

// Value is a sealed interface over the symbolic values that live on the
// interpreter's operand stack and in its memo table.
//
// Implementations:
//   - Primitive
//   - Reference
//   - Invocation
//   - *Container
//   - Instance
//   - Memo
//   - Persistent
type Value interface {
	irValue() // unexported marker prevents external implementations
}

// Bytes is an immutable byte string literal.
type Bytes []byte

// ByteArray is a mutable byte buffer literal (BYTEARRAY8).
type ByteArray []byte

// Primitive wraps a literal. V is one of nil, bool, int64, *big.Int,
// float64, string, Bytes or ByteArray.
type Primitive struct {
	V any
}

func (Primitive) irValue() {}

// None is the shared None literal.
var None = Primitive{}

// Str returns the string payload and whether V holds one.
func (p Primitive) Str() (string, bool) {
	s, ok := p.V.(string)
	return s, ok
}

// Int returns V as an int64 when it is an integer that fits.
func (p Primitive) Int() (int64, bool) {
	switch v := p.V.(type) {
	case int64:
		return v, true
	case *big.Int:
		if v.IsInt64() {
			return v.Int64(), true
		}
	}
	return 0, false
}

// TypeName returns the Python-facing type name of the literal.
func (p Primitive) TypeName() string {
	switch p.V.(type) {
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
	case Bytes:
		return "bytes"
	case ByteArray:
		return "bytearray"
	default:
		return fmt.Sprintf("%T", p.V)
	}
}

// Reference is the result of resolving a global symbol.
//
// Provenance is the per-run id of the acquisition that produced it. The
// enforcement gate only lets a Reference be invoked when its provenance id
// was issued by an acquisition the gate accepted in the same run.
// Real holds the resolved host object in enforce mode and is nil otherwise.
type Reference struct {
	Name       QualifiedName
	Module     string
	Attr       string
	Provenance uint64
	Real       any
}

func (Reference) irValue() {}

// Invocation is the symbolic result of calling Callable with Argc
// positional arguments.
type Invocation struct {
	Callable Value
	Bare     string
	Argc     int
	Real     any
}

func (Invocation) irValue() {}

// Instance is the result of instantiating a class (INST, OBJ, NEWOBJ,
// NEWOBJ_EX). State is the last state applied by BUILD, or nil.
type Instance struct {
	Class Value
	State Value
	Real  any
}

func (Instance) irValue() {}

// Memo stands in for a memo slot when rendering cyclic structures.
type Memo struct {
	ID int64
}

func (Memo) irValue() {}

// Persistent is a persistent-id reference (PERSID, BINPERSID).
type Persistent struct {
	ID   Value
	Real any
}

func (Persistent) irValue() {}

// BareName returns the short name a non-reference callable would report
// when invoked. For a Reference it is the tail of the qualified name.
func BareName(v Value) string {
	switch val := v.(type) {
	case Reference:
		return val.Name.Tail()
	case Instance:
		return BareName(val.Class)
	case Invocation:
		return val.Bare
	case Primitive:
		return val.TypeName()
	case *Container:
		return val.Kind.String()
	case Persistent:
		return "persistent_load"
	case Memo:
		return "memo"
	default:
		return fmt.Sprintf("%T", v)
	}
}
