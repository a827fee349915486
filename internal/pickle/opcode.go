package pickle

import "fmt"

// Opcode is a single pickle instruction byte.
type Opcode byte

// Protocol 0 and 1
const (
	MARK            Opcode = '(' // push special markobject on stack
	STOP            Opcode = '.' // every pickle ends with STOP
	POP             Opcode = '0' // discard topmost stack item
	POP_MARK        Opcode = '1' // discard stack top through topmost markobject
	DUP             Opcode = '2' // duplicate top stack item
	FLOAT           Opcode = 'F' // push float object; decimal string argument
	INT             Opcode = 'I' // push integer or bool; decimal string argument
	BININT          Opcode = 'J' // push four-byte signed int
	BININT1         Opcode = 'K' // push 1-byte unsigned int
	LONG            Opcode = 'L' // push long; decimal string argument
	BININT2         Opcode = 'M' // push 2-byte unsigned int
	NONE            Opcode = 'N' // push None
	PERSID          Opcode = 'P' // push persistent object; id is taken from string arg
	BINPERSID       Opcode = 'Q' // push persistent object; id is taken from stack
	REDUCE          Opcode = 'R' // apply callable to argtuple, both on stack
	STRING          Opcode = 'S' // push string; NL-terminated string argument
	BINSTRING       Opcode = 'T' // push string; counted binary string argument
	SHORT_BINSTRING Opcode = 'U' // push string; counted binary string argument < 256 bytes
	UNICODE         Opcode = 'V' // push Unicode string; raw-unicode-escaped argument
	BINUNICODE      Opcode = 'X' // push Unicode string; counted UTF-8 string argument
	APPEND          Opcode = 'a' // append stack top to list below it
	BUILD           Opcode = 'b' // call __setstate__ or __dict__.update()
	GLOBAL          Opcode = 'c' // push self.find_class(modname, name); 2 string args
	DICT            Opcode = 'd' // build a dict from stack items
	EMPTY_DICT      Opcode = '}' // push empty dict
	APPENDS         Opcode = 'e' // extend list on stack by topmost stack slice
	GET             Opcode = 'g' // push item from memo on stack; index is string arg
	BINGET          Opcode = 'h' // push item from memo on stack; index is 1-byte arg
	INST            Opcode = 'i' // build & push class instance
	LONG_BINGET     Opcode = 'j' // push item from memo on stack; index is 4-byte arg
	LIST            Opcode = 'l' // build list from topmost stack items
	EMPTY_LIST      Opcode = ']' // push empty list
	OBJ             Opcode = 'o' // build & push class instance
	PUT             Opcode = 'p' // store stack top in memo; index is string arg
	BINPUT          Opcode = 'q' // store stack top in memo; index is 1-byte arg
	LONG_BINPUT     Opcode = 'r' // store stack top in memo; index is 4-byte arg
	SETITEM         Opcode = 's' // add key+value pair to dict
	TUPLE           Opcode = 't' // build tuple from topmost stack items
	EMPTY_TUPLE     Opcode = ')' // push empty tuple
	SETITEMS        Opcode = 'u' // modify dict by adding topmost key+value pairs
	BINFLOAT        Opcode = 'G' // push float; arg is 8-byte float encoding
)

// Protocol 2
const (
	PROTO    Opcode = 0x80 // identify pickle protocol
	NEWOBJ   Opcode = 0x81 // build object by applying cls.__new__ to argtuple
	EXT1     Opcode = 0x82 // push object from extension registry; 1-byte index
	EXT2     Opcode = 0x83 // ditto, but 2-byte index
	EXT4     Opcode = 0x84 // ditto, but 4-byte index
	TUPLE1   Opcode = 0x85 // build 1-tuple from stack top
	TUPLE2   Opcode = 0x86 // build 2-tuple from two topmost stack items
	TUPLE3   Opcode = 0x87 // build 3-tuple from three topmost stack items
	NEWTRUE  Opcode = 0x88 // push True
	NEWFALSE Opcode = 0x89 // push False
	LONG1    Opcode = 0x8a // push long from < 256 bytes
	LONG4    Opcode = 0x8b // push really big long
)

// Protocol 3
const (
	BINBYTES       Opcode = 'B' // push bytes; counted binary string argument
	SHORT_BINBYTES Opcode = 'C' // push bytes; counted binary string argument < 256 bytes
)

// Protocol 4
const (
	SHORT_BINUNICODE Opcode = 0x8c // push short string; UTF-8 length < 256 bytes
	BINUNICODE8      Opcode = 0x8d // push very long string
	BINBYTES8        Opcode = 0x8e // push very long bytes string
	EMPTY_SET        Opcode = 0x8f // push empty set on the stack
	ADDITEMS         Opcode = 0x90 // modify set by adding topmost stack items
	FROZENSET        Opcode = 0x91 // build frozenset from topmost stack items
	NEWOBJ_EX        Opcode = 0x92 // like NEWOBJ but work with keyword only arguments
	STACK_GLOBAL     Opcode = 0x93 // same as GLOBAL but using names on the stacks
	MEMOIZE          Opcode = 0x94 // store top of the stack in memo
	FRAME            Opcode = 0x95 // indicate the beginning of a new frame
)

// Protocol 5
const (
	BYTEARRAY8      Opcode = 0x96 // push bytearray
	NEXT_BUFFER     Opcode = 0x97 // push next out-of-band buffer
	READONLY_BUFFER Opcode = 0x98 // make top of stack readonly
)

// HighestProtocol is the newest protocol the decoder accepts.
const HighestProtocol = 5

// argKind describes how an opcode's operand is framed in the stream.
type argKind uint8

const (
	argNone argKind = iota
	argLine          // one newline-terminated line
	argTwoLines      // two newline-terminated lines
	argU1            // 1-byte unsigned
	argU2            // 2-byte unsigned little-endian
	argI4            // 4-byte signed little-endian
	argU4            // 4-byte unsigned little-endian
	argU8            // 8-byte unsigned little-endian
	argF8            // 8-byte big-endian IEEE 754
	argBytes1        // 1-byte length prefix
	argBytes4        // 4-byte unsigned length prefix
	argBytes4Signed  // 4-byte signed length prefix
	argBytes8        // 8-byte length prefix
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name  string // pickletools name
	Proto int    // protocol that introduced it
	arg   argKind
}

var opcodeTable = map[Opcode]OpcodeInfo{
	MARK:            {"MARK", 0, argNone},
	STOP:            {"STOP", 0, argNone},
	POP:             {"POP", 0, argNone},
	POP_MARK:        {"POP_MARK", 1, argNone},
	DUP:             {"DUP", 0, argNone},
	FLOAT:           {"FLOAT", 0, argLine},
	INT:             {"INT", 0, argLine},
	BININT:          {"BININT", 1, argI4},
	BININT1:         {"BININT1", 1, argU1},
	LONG:            {"LONG", 0, argLine},
	BININT2:         {"BININT2", 1, argU2},
	NONE:            {"NONE", 0, argNone},
	PERSID:          {"PERSID", 0, argLine},
	BINPERSID:       {"BINPERSID", 1, argNone},
	REDUCE:          {"REDUCE", 0, argNone},
	STRING:          {"STRING", 0, argLine},
	BINSTRING:       {"BINSTRING", 1, argBytes4Signed},
	SHORT_BINSTRING: {"SHORT_BINSTRING", 1, argBytes1},
	UNICODE:         {"UNICODE", 0, argLine},
	BINUNICODE:      {"BINUNICODE", 1, argBytes4},
	APPEND:          {"APPEND", 0, argNone},
	BUILD:           {"BUILD", 0, argNone},
	GLOBAL:          {"GLOBAL", 0, argTwoLines},
	DICT:            {"DICT", 0, argNone},
	EMPTY_DICT:      {"EMPTY_DICT", 1, argNone},
	APPENDS:         {"APPENDS", 1, argNone},
	GET:             {"GET", 0, argLine},
	BINGET:          {"BINGET", 1, argU1},
	INST:            {"INST", 0, argTwoLines},
	LONG_BINGET:     {"LONG_BINGET", 1, argU4},
	LIST:            {"LIST", 0, argNone},
	EMPTY_LIST:      {"EMPTY_LIST", 1, argNone},
	OBJ:             {"OBJ", 1, argNone},
	PUT:             {"PUT", 0, argLine},
	BINPUT:          {"BINPUT", 1, argU1},
	LONG_BINPUT:     {"LONG_BINPUT", 1, argU4},
	SETITEM:         {"SETITEM", 0, argNone},
	TUPLE:           {"TUPLE", 0, argNone},
	EMPTY_TUPLE:     {"EMPTY_TUPLE", 1, argNone},
	SETITEMS:        {"SETITEMS", 1, argNone},
	BINFLOAT:        {"BINFLOAT", 1, argF8},

	PROTO:    {"PROTO", 2, argU1},
	NEWOBJ:   {"NEWOBJ", 2, argNone},
	EXT1:     {"EXT1", 2, argU1},
	EXT2:     {"EXT2", 2, argU2},
	EXT4:     {"EXT4", 2, argI4},
	TUPLE1:   {"TUPLE1", 2, argNone},
	TUPLE2:   {"TUPLE2", 2, argNone},
	TUPLE3:   {"TUPLE3", 2, argNone},
	NEWTRUE:  {"NEWTRUE", 2, argNone},
	NEWFALSE: {"NEWFALSE", 2, argNone},
	LONG1:    {"LONG1", 2, argBytes1},
	LONG4:    {"LONG4", 2, argBytes4Signed},

	BINBYTES:       {"BINBYTES", 3, argBytes4},
	SHORT_BINBYTES: {"SHORT_BINBYTES", 3, argBytes1},

	SHORT_BINUNICODE: {"SHORT_BINUNICODE", 4, argBytes1},
	BINUNICODE8:      {"BINUNICODE8", 4, argBytes8},
	BINBYTES8:        {"BINBYTES8", 4, argBytes8},
	EMPTY_SET:        {"EMPTY_SET", 4, argNone},
	ADDITEMS:         {"ADDITEMS", 4, argNone},
	FROZENSET:        {"FROZENSET", 4, argNone},
	NEWOBJ_EX:        {"NEWOBJ_EX", 4, argNone},
	STACK_GLOBAL:     {"STACK_GLOBAL", 4, argNone},
	MEMOIZE:          {"MEMOIZE", 4, argNone},
	FRAME:            {"FRAME", 4, argU8},

	BYTEARRAY8:      {"BYTEARRAY8", 5, argBytes8},
	NEXT_BUFFER:     {"NEXT_BUFFER", 5, argNone},
	READONLY_BUFFER: {"READONLY_BUFFER", 5, argNone},
}

// Known reports whether the byte is a defined opcode.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), Proto: -1}
}

// Name returns the pickletools name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// OpcodeByName looks up an opcode by its pickletools name.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}
