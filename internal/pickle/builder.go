package pickle

import (
	"encoding/binary"
	"math"
	"math/big"
	"strconv"
)

// Builder assembles pickle streams. It picks the encoding a CPython pickler
// would use for the configured protocol, and also exposes raw emitters so
// tests can produce any framing they need.
type Builder struct {
	proto int
	buf   []byte
}

// NewBuilder creates a builder for the given protocol.
func NewBuilder(proto int) *Builder {
	return &Builder{proto: proto, buf: make([]byte, 0, 64)}
}

// Protocol returns the configured protocol.
func (b *Builder) Protocol() int {
	return b.proto
}

// Len returns the number of body bytes emitted so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Assemble returns the stream: a PROTO header for protocol 2 and above,
// the body, and a trailing STOP.
func (b *Builder) Assemble() []byte {
	out := make([]byte, 0, len(b.buf)+3)
	if b.proto >= 2 {
		out = append(out, byte(PROTO), byte(b.proto))
	}
	out = append(out, b.buf...)
	return append(out, byte(STOP))
}

// Emit writes opcodes that take no operand.
func (b *Builder) Emit(codes ...Opcode) *Builder {
	for _, c := range codes {
		b.buf = append(b.buf, byte(c))
	}
	return b
}

// Raw writes bytes verbatim.
func (b *Builder) Raw(data ...byte) *Builder {
	b.buf = append(b.buf, data...)
	return b
}

// Text writes an opcode followed by newline-terminated lines.
func (b *Builder) Text(code Opcode, lines ...string) *Builder {
	b.buf = append(b.buf, byte(code))
	for _, l := range lines {
		b.buf = append(b.buf, l...)
		b.buf = append(b.buf, '\n')
	}
	return b
}

// Global emits GLOBAL module\nname\n.
func (b *Builder) Global(module, name string) *Builder {
	return b.Text(GLOBAL, module, name)
}

// Inst emits INST module\nname\n.
func (b *Builder) Inst(module, name string) *Builder {
	return b.Text(INST, module, name)
}

// StackGlobal pushes module and name as strings and emits STACK_GLOBAL.
func (b *Builder) StackGlobal(module, name string) *Builder {
	return b.Str(module).Str(name).Emit(STACK_GLOBAL)
}

// None pushes None.
func (b *Builder) None() *Builder {
	return b.Emit(NONE)
}

// Bool pushes a boolean.
func (b *Builder) Bool(v bool) *Builder {
	if b.proto >= 2 {
		if v {
			return b.Emit(NEWTRUE)
		}
		return b.Emit(NEWFALSE)
	}
	if v {
		return b.Text(INT, "01")
	}
	return b.Text(INT, "00")
}

// Int pushes an integer using the smallest encoding for the protocol.
func (b *Builder) Int(v int64) *Builder {
	switch {
	case b.proto == 0:
		return b.Text(INT, strconv.FormatInt(v, 10))
	case v >= 0 && v <= math.MaxUint8:
		return b.Raw(byte(BININT1), byte(v))
	case v >= 0 && v <= math.MaxUint16:
		b.buf = append(b.buf, byte(BININT2))
		b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(v))
		return b
	case v >= math.MinInt32 && v <= math.MaxInt32:
		b.buf = append(b.buf, byte(BININT))
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(int32(v)))
		return b
	}
	return b.BigInt(big.NewInt(v))
}

// BigInt pushes an arbitrary-precision integer (LONG1/LONG4, or LONG text
// below protocol 2).
func (b *Builder) BigInt(v *big.Int) *Builder {
	if b.proto < 2 {
		return b.Text(LONG, v.String()+"L")
	}
	enc := encodeLong(v)
	if len(enc) < 256 {
		b.buf = append(b.buf, byte(LONG1), byte(len(enc)))
	} else {
		b.buf = append(b.buf, byte(LONG4))
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(enc)))
	}
	b.buf = append(b.buf, enc...)
	return b
}

// Float pushes a float (BINFLOAT, or FLOAT text at protocol 0).
func (b *Builder) Float(v float64) *Builder {
	if b.proto == 0 {
		return b.Text(FLOAT, strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.buf = append(b.buf, byte(BINFLOAT))
	b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(v))
	return b
}

// Str pushes a text string.
func (b *Builder) Str(s string) *Builder {
	switch {
	case b.proto == 0:
		b.buf = append(b.buf, byte(UNICODE))
		b.buf = append(b.buf, rawUnicodeEscape(s)...)
		b.buf = append(b.buf, '\n')
		return b
	case b.proto >= 4 && len(s) < 256:
		b.buf = append(b.buf, byte(SHORT_BINUNICODE), byte(len(s)))
	default:
		b.buf = append(b.buf, byte(BINUNICODE))
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(s)))
	}
	b.buf = append(b.buf, s...)
	return b
}

// QuotedString pushes s with the protocol 0 STRING opcode.
func (b *Builder) QuotedString(s string) *Builder {
	return b.Text(STRING, quoteString(s))
}

// ShortBinString pushes s with SHORT_BINSTRING.
func (b *Builder) ShortBinString(s string) *Builder {
	b.buf = append(b.buf, byte(SHORT_BINSTRING), byte(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// Bytes pushes a byte string.
func (b *Builder) Bytes(data []byte) *Builder {
	switch {
	case len(data) < 256:
		b.buf = append(b.buf, byte(SHORT_BINBYTES), byte(len(data)))
	case uint64(len(data)) <= math.MaxUint32:
		b.buf = append(b.buf, byte(BINBYTES))
		b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(data)))
	default:
		b.buf = append(b.buf, byte(BINBYTES8))
		b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(len(data)))
	}
	b.buf = append(b.buf, data...)
	return b
}

// ByteArray pushes a bytearray (BYTEARRAY8).
func (b *Builder) ByteArray(data []byte) *Builder {
	b.buf = append(b.buf, byte(BYTEARRAY8))
	b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(len(data)))
	b.buf = append(b.buf, data...)
	return b
}

// Put stores the top of stack in memo slot id.
func (b *Builder) Put(id int64) *Builder {
	switch {
	case b.proto == 0:
		return b.Text(PUT, strconv.FormatInt(id, 10))
	case id >= 0 && id <= math.MaxUint8:
		return b.Raw(byte(BINPUT), byte(id))
	}
	b.buf = append(b.buf, byte(LONG_BINPUT))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(id))
	return b
}

// Get pushes memo slot id.
func (b *Builder) Get(id int64) *Builder {
	switch {
	case b.proto == 0:
		return b.Text(GET, strconv.FormatInt(id, 10))
	case id >= 0 && id <= math.MaxUint8:
		return b.Raw(byte(BINGET), byte(id))
	}
	b.buf = append(b.buf, byte(LONG_BINGET))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(id))
	return b
}

// PersistentID emits PERSID with a textual id.
func (b *Builder) PersistentID(id string) *Builder {
	return b.Text(PERSID, id)
}

// Frame emits a FRAME header announcing size bytes.
func (b *Builder) Frame(size uint64) *Builder {
	b.buf = append(b.buf, byte(FRAME))
	b.buf = binary.LittleEndian.AppendUint64(b.buf, size)
	return b
}

// encodeLong encodes v as minimal little-endian two's complement.
func encodeLong(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	m := new(big.Int).Set(v)
	if v.Sign() < 0 {
		m.Neg(m).Sub(m, big.NewInt(1))
	}
	n := m.BitLen()/8 + 1

	x := new(big.Int).Set(v)
	if v.Sign() < 0 {
		x.Add(x, new(big.Int).Lsh(big.NewInt(1), uint(8*n)))
	}
	be := x.FillBytes(make([]byte, n))
	out := make([]byte, n)
	for i, c := range be {
		out[n-1-i] = c
	}
	return out
}
