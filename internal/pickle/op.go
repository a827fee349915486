package pickle

import "math/big"

// Header is carried by every decoded instruction.
type Header struct {
	Code   Opcode
	Offset int64
}

// Head returns the header. Embedding Header gives every variant this method.
func (h Header) Head() Header { return h }

// Op is a sealed interface over decoded instructions. The set of variants
// is closed; consumers dispatch with an exhaustive type switch.
type Op interface {
	Head() Header
	op()
}

// MarkArity marks a Tuple built from the items above the topmost mark.
const MarkArity = -1

type (
	// Mark pushes a mark boundary.
	Mark struct{ Header }
	// Stop ends the stream.
	Stop struct{ Header }
	// Pop discards the top item (or the topmost mark).
	Pop struct{ Header }
	// PopMark discards everything above and including the topmost mark.
	PopMark struct{ Header }
	// Dup duplicates the top item.
	Dup struct{ Header }
	// Proto declares the stream's protocol version.
	Proto struct {
		Header
		Version int
	}
	// Frame announces the size of the following frame.
	Frame struct {
		Header
		Size uint64
	}
	// Global resolves Module.Name (GLOBAL).
	Global struct {
		Header
		Module string
		Name   string
	}
	// StackGlobal resolves a module and name popped from the stack.
	StackGlobal struct{ Header }
	// Inst resolves Module.Name and instantiates it with the items above
	// the topmost mark.
	Inst struct {
		Header
		Module string
		Name   string
	}
	// Obj instantiates the first item above the mark with the rest as args.
	Obj struct{ Header }
	// Reduce calls a callable with an argument tuple.
	Reduce struct{ Header }
	// Build applies state to an object.
	Build struct{ Header }
	// NewObj is cls.__new__(cls, *args).
	NewObj struct{ Header }
	// NewObjEx is cls.__new__(cls, *args, **kwargs).
	NewObjEx struct{ Header }
	// MemoPut stores the top item. Auto is set for MEMOIZE, whose id is the
	// current memo size.
	MemoPut struct {
		Header
		ID   int64
		Auto bool
	}
	// MemoGet pushes a memoized item.
	MemoGet struct {
		Header
		ID int64
	}
	EmptyDict struct{ Header }
	Dict      struct{ Header }
	EmptyList struct{ Header }
	List      struct{ Header }
	// EmptyTuple pushes ().
	EmptyTuple struct{ Header }
	// Tuple builds a tuple of Arity items, or from the mark when Arity is
	// MarkArity.
	Tuple struct {
		Header
		Arity int
	}
	EmptySet  struct{ Header }
	AddItems  struct{ Header }
	FrozenSet struct{ Header }
	SetItem   struct{ Header }
	SetItems  struct{ Header }
	Append    struct{ Header }
	Appends   struct{ Header }
	// Int is an integer literal. Exactly one of Small or Big is meaningful:
	// Big is non-nil only for values outside int64.
	Int struct {
		Header
		Small int64
		Big   *big.Int
	}
	Float struct {
		Header
		Value float64
	}
	Bool struct {
		Header
		Value bool
	}
	None struct{ Header }
	// Str is a text string literal (STRING, BINSTRING, UNICODE, ...).
	Str struct {
		Header
		Value string
	}
	// Bytes is a byte string literal. Mutable is set for BYTEARRAY8.
	Bytes struct {
		Header
		Value   []byte
		Mutable bool
	}
	// PersistentID carries a textual persistent id (PERSID).
	PersistentID struct {
		Header
		ID string
	}
	// BinPersistentID takes the persistent id from the stack.
	BinPersistentID struct{ Header }
	// Ext references the copyreg extension registry.
	Ext struct {
		Header
		Code int64
	}
	// Buffer is an out-of-band buffer opcode (NEXT_BUFFER, READONLY_BUFFER).
	Buffer struct {
		Header
		ReadOnly bool
	}
	// UnknownOpcode is a byte that is not a defined opcode.
	UnknownOpcode struct {
		Header
		Byte byte
	}
)

func (Mark) op()            {}
func (Stop) op()            {}
func (Pop) op()             {}
func (PopMark) op()         {}
func (Dup) op()             {}
func (Proto) op()           {}
func (Frame) op()           {}
func (Global) op()          {}
func (StackGlobal) op()     {}
func (Inst) op()            {}
func (Obj) op()             {}
func (Reduce) op()          {}
func (Build) op()           {}
func (NewObj) op()          {}
func (NewObjEx) op()        {}
func (MemoPut) op()         {}
func (MemoGet) op()         {}
func (EmptyDict) op()       {}
func (Dict) op()            {}
func (EmptyList) op()       {}
func (List) op()            {}
func (EmptyTuple) op()      {}
func (Tuple) op()           {}
func (EmptySet) op()        {}
func (AddItems) op()        {}
func (FrozenSet) op()       {}
func (SetItem) op()         {}
func (SetItems) op()        {}
func (Append) op()          {}
func (Appends) op()         {}
func (Int) op()             {}
func (Float) op()           {}
func (Bool) op()            {}
func (None) op()            {}
func (Str) op()             {}
func (Bytes) op()           {}
func (PersistentID) op()    {}
func (BinPersistentID) op() {}
func (Ext) op()             {}
func (Buffer) op()          {}
func (UnknownOpcode) op()   {}
