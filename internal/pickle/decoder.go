package pickle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultMaxOperandSize bounds any single length-prefixed or line operand.
const DefaultMaxOperandSize = 256 << 20

// DefaultMaxIntDigits bounds the decimal digits of an INT or LONG text
// literal. Decimal conversion is superlinear, so the bound is checked
// before parsing. It matches CPython's default int_max_str_digits.
const DefaultMaxIntDigits = 4300

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxOperandSize sets the largest operand the decoder will accept.
func WithMaxOperandSize(n int64) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxOperand = n
		}
	}
}

// WithMaxIntDigits sets the longest decimal integer literal the decoder
// will parse.
func WithMaxIntDigits(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxIntDigits = n
		}
	}
}

// Decoder turns a byte slice into a forward-only sequence of Op values.
//
// A Decoder is not restartable and not safe for concurrent use. After STOP,
// Next returns io.EOF and Rest returns the unread remainder, which callers
// use to decode stacked pickles.
type Decoder struct {
	data         []byte
	pos          int64
	maxOperand   int64
	maxIntDigits int
	stopped      bool
	err          error
}

// NewDecoder creates a decoder over data. The slice is not modified.
func NewDecoder(data []byte, opts ...DecoderOption) *Decoder {
	d := &Decoder{data: data, maxOperand: DefaultMaxOperandSize, maxIntDigits: DefaultMaxIntDigits}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Offset returns the position of the next unread byte.
func (d *Decoder) Offset() int64 {
	return d.pos
}

// Rest returns the bytes after the last decoded instruction.
func (d *Decoder) Rest() []byte {
	return d.data[d.pos:]
}

// Next decodes one instruction.
//
// It returns io.EOF once STOP has been decoded. Any other error is a
// *DecodeError and is sticky: later calls return the same error.
func (d *Decoder) Next() (Op, error) {
	if d.stopped {
		return nil, io.EOF
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.pos >= int64(len(d.data)) {
		d.err = &DecodeError{Offset: d.pos, Code: STOP, Err: ErrNoStop}
		return nil, d.err
	}

	h := Header{Code: Opcode(d.data[d.pos]), Offset: d.pos}
	d.pos++

	op, err := d.decode(h)
	if err != nil {
		d.err = err
		return nil, err
	}
	switch op.(type) {
	case Stop:
		d.stopped = true
	case UnknownOpcode:
		d.err = &DecodeError{Offset: h.Offset, Code: h.Code, Err: ErrUnknownOpcode}
	}
	return op, nil
}

// Ops iterates over the remaining instructions. Iteration ends after STOP
// or after yielding the first error.
func (d *Decoder) Ops() iter.Seq2[Op, error] {
	return func(yield func(Op, error) bool) {
		for {
			op, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(op, err) || err != nil {
				return
			}
		}
	}
}

func (d *Decoder) decode(h Header) (Op, error) {
	switch h.Code {
	case MARK:
		return Mark{h}, nil
	case STOP:
		return Stop{h}, nil
	case POP:
		return Pop{h}, nil
	case POP_MARK:
		return PopMark{h}, nil
	case DUP:
		return Dup{h}, nil
	case NONE:
		return None{h}, nil
	case NEWTRUE:
		return Bool{Header: h, Value: true}, nil
	case NEWFALSE:
		return Bool{Header: h, Value: false}, nil
	case BINPERSID:
		return BinPersistentID{h}, nil
	case REDUCE:
		return Reduce{h}, nil
	case BUILD:
		return Build{h}, nil
	case OBJ:
		return Obj{h}, nil
	case NEWOBJ:
		return NewObj{h}, nil
	case NEWOBJ_EX:
		return NewObjEx{h}, nil
	case STACK_GLOBAL:
		return StackGlobal{h}, nil
	case APPEND:
		return Append{h}, nil
	case APPENDS:
		return Appends{h}, nil
	case DICT:
		return Dict{h}, nil
	case EMPTY_DICT:
		return EmptyDict{h}, nil
	case LIST:
		return List{h}, nil
	case EMPTY_LIST:
		return EmptyList{h}, nil
	case SETITEM:
		return SetItem{h}, nil
	case SETITEMS:
		return SetItems{h}, nil
	case EMPTY_TUPLE:
		return EmptyTuple{h}, nil
	case TUPLE:
		return Tuple{Header: h, Arity: MarkArity}, nil
	case TUPLE1:
		return Tuple{Header: h, Arity: 1}, nil
	case TUPLE2:
		return Tuple{Header: h, Arity: 2}, nil
	case TUPLE3:
		return Tuple{Header: h, Arity: 3}, nil
	case EMPTY_SET:
		return EmptySet{h}, nil
	case ADDITEMS:
		return AddItems{h}, nil
	case FROZENSET:
		return FrozenSet{h}, nil
	case MEMOIZE:
		return MemoPut{Header: h, Auto: true}, nil
	case NEXT_BUFFER:
		return Buffer{Header: h}, nil
	case READONLY_BUFFER:
		return Buffer{Header: h, ReadOnly: true}, nil

	case PROTO:
		v, err := d.u8(h)
		if err != nil {
			return nil, err
		}
		if v > HighestProtocol {
			return nil, d.fail(h, ErrUnsupportedProtocol, strconv.Itoa(int(v)))
		}
		return Proto{Header: h, Version: int(v)}, nil
	case FRAME:
		size, err := d.u64(h)
		if err != nil {
			return nil, err
		}
		if size > uint64(d.remaining()) {
			return nil, d.fail(h, ErrTruncated, "frame larger than remaining input")
		}
		return Frame{Header: h, Size: size}, nil

	case GLOBAL, INST:
		module, err := d.line(h)
		if err != nil {
			return nil, err
		}
		name, err := d.line(h)
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(module) || !utf8.ValidString(name) {
			return nil, d.fail(h, ErrBadLiteral, "module or name is not valid UTF-8")
		}
		if h.Code == GLOBAL {
			return Global{Header: h, Module: module, Name: name}, nil
		}
		return Inst{Header: h, Module: module, Name: name}, nil

	case INT:
		s, err := d.line(h)
		if err != nil {
			return nil, err
		}
		switch s {
		case "00":
			return Bool{Header: h, Value: false}, nil
		case "01":
			return Bool{Header: h, Value: true}, nil
		}
		return d.parseInt(h, s)
	case LONG:
		s, err := d.line(h)
		if err != nil {
			return nil, err
		}
		return d.parseInt(h, strings.TrimSuffix(strings.TrimSpace(s), "L"))
	case BININT:
		v, err := d.u32(h)
		if err != nil {
			return nil, err
		}
		return Int{Header: h, Small: int64(int32(v))}, nil
	case BININT1:
		v, err := d.u8(h)
		if err != nil {
			return nil, err
		}
		return Int{Header: h, Small: int64(v)}, nil
	case BININT2:
		v, err := d.u16(h)
		if err != nil {
			return nil, err
		}
		return Int{Header: h, Small: int64(v)}, nil
	case LONG1:
		n, err := d.u8(h)
		if err != nil {
			return nil, err
		}
		return d.long(h, int64(n))
	case LONG4:
		n, err := d.u32(h)
		if err != nil {
			return nil, err
		}
		return d.long(h, int64(int32(n)))

	case FLOAT:
		s, err := d.line(h)
		if err != nil {
			return nil, err
		}
		f, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr != nil {
			return nil, d.fail(h, ErrBadLiteral, s)
		}
		return Float{Header: h, Value: f}, nil
	case BINFLOAT:
		b, err := d.take(h, 8)
		if err != nil {
			return nil, err
		}
		return Float{Header: h, Value: math.Float64frombits(binary.BigEndian.Uint64(b))}, nil

	case STRING:
		s, err := d.line(h)
		if err != nil {
			return nil, err
		}
		v, ok := unquoteString(s)
		if !ok {
			return nil, d.fail(h, ErrBadLiteral, "STRING argument must be quoted")
		}
		return Str{Header: h, Value: v}, nil
	case UNICODE:
		s, err := d.line(h)
		if err != nil {
			return nil, err
		}
		return Str{Header: h, Value: rawUnicodeUnescape(s)}, nil
	case BINSTRING:
		n, err := d.u32(h)
		if err != nil {
			return nil, err
		}
		b, err := d.take(h, int64(int32(n)))
		if err != nil {
			return nil, err
		}
		return Str{Header: h, Value: string(b)}, nil
	case SHORT_BINSTRING:
		b, err := d.counted(h, 1)
		if err != nil {
			return nil, err
		}
		return Str{Header: h, Value: string(b)}, nil
	case BINUNICODE, SHORT_BINUNICODE, BINUNICODE8:
		b, err := d.counted(h, unicodeWidth(h.Code))
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, d.fail(h, ErrBadLiteral, "invalid UTF-8")
		}
		return Str{Header: h, Value: string(b)}, nil
	case BINBYTES, SHORT_BINBYTES, BINBYTES8, BYTEARRAY8:
		b, err := d.counted(h, bytesWidth(h.Code))
		if err != nil {
			return nil, err
		}
		return Bytes{Header: h, Value: bytes.Clone(b), Mutable: h.Code == BYTEARRAY8}, nil

	case PERSID:
		s, err := d.line(h)
		if err != nil {
			return nil, err
		}
		return PersistentID{Header: h, ID: s}, nil

	case GET, PUT:
		s, err := d.line(h)
		if err != nil {
			return nil, err
		}
		id, perr := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if perr != nil {
			return nil, d.fail(h, ErrBadLiteral, s)
		}
		if h.Code == GET {
			return MemoGet{Header: h, ID: id}, nil
		}
		return MemoPut{Header: h, ID: id}, nil
	case BINGET, BINPUT:
		v, err := d.u8(h)
		if err != nil {
			return nil, err
		}
		if h.Code == BINGET {
			return MemoGet{Header: h, ID: int64(v)}, nil
		}
		return MemoPut{Header: h, ID: int64(v)}, nil
	case LONG_BINGET, LONG_BINPUT:
		v, err := d.u32(h)
		if err != nil {
			return nil, err
		}
		if h.Code == LONG_BINGET {
			return MemoGet{Header: h, ID: int64(v)}, nil
		}
		return MemoPut{Header: h, ID: int64(v)}, nil

	case EXT1:
		v, err := d.u8(h)
		if err != nil {
			return nil, err
		}
		return Ext{Header: h, Code: int64(v)}, nil
	case EXT2:
		v, err := d.u16(h)
		if err != nil {
			return nil, err
		}
		return Ext{Header: h, Code: int64(v)}, nil
	case EXT4:
		v, err := d.u32(h)
		if err != nil {
			return nil, err
		}
		return Ext{Header: h, Code: int64(int32(v))}, nil
	}

	return UnknownOpcode{Header: h, Byte: byte(h.Code)}, nil
}

func (d *Decoder) remaining() int64 {
	return int64(len(d.data)) - d.pos
}

func (d *Decoder) fail(h Header, err error, detail string) *DecodeError {
	return &DecodeError{Offset: h.Offset, Code: h.Code, Err: err, Detail: detail}
}

// take returns the next n bytes without copying. Length is validated
// against the limit and the remaining input before any use.
func (d *Decoder) take(h Header, n int64) ([]byte, error) {
	if n < 0 {
		return nil, d.fail(h, ErrNegativeLength, strconv.FormatInt(n, 10))
	}
	if n > d.maxOperand {
		return nil, d.fail(h, ErrOversize, strconv.FormatInt(n, 10))
	}
	if n > d.remaining() {
		return nil, d.fail(h, ErrTruncated, "need "+strconv.FormatInt(n, 10)+" bytes")
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// counted reads a length prefix of the given width followed by that many
// bytes.
func (d *Decoder) counted(h Header, width int) ([]byte, error) {
	var n int64
	switch width {
	case 1:
		v, err := d.u8(h)
		if err != nil {
			return nil, err
		}
		n = int64(v)
	case 4:
		v, err := d.u32(h)
		if err != nil {
			return nil, err
		}
		n = int64(v)
	default:
		v, err := d.u64(h)
		if err != nil {
			return nil, err
		}
		if v > math.MaxInt64 {
			return nil, d.fail(h, ErrOversize, strconv.FormatUint(v, 10))
		}
		n = int64(v)
	}
	return d.take(h, n)
}

func (d *Decoder) line(h Header) (string, error) {
	rest := d.data[d.pos:]
	i := bytes.IndexByte(rest, '\n')
	if i < 0 {
		return "", d.fail(h, ErrMissingNewline, "")
	}
	if int64(i) > d.maxOperand {
		return "", d.fail(h, ErrOversize, "line too long")
	}
	s := string(rest[:i])
	d.pos += int64(i) + 1
	return s, nil
}

func (d *Decoder) u8(h Header) (uint8, error) {
	b, err := d.take(h, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) u16(h Header) (uint16, error) {
	b, err := d.take(h, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) u32(h Header) (uint32, error) {
	b, err := d.take(h, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) u64(h Header) (uint64, error) {
	b, err := d.take(h, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) long(h Header, n int64) (Op, error) {
	b, err := d.take(h, n)
	if err != nil {
		return nil, err
	}
	v := decodeLong(b)
	if v.IsInt64() {
		return Int{Header: h, Small: v.Int64()}, nil
	}
	return Int{Header: h, Big: v}, nil
}

// parseInt parses INT and LONG text the way int(s, 0) does: decimal
// without leading zeros, or a 0x/0o/0b prefixed literal.
func (d *Decoder) parseInt(h Header, s string) (Op, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	prefixed := len(digits) > 1 && digits[0] == '0' && strings.ContainsRune("xXoObB", rune(digits[1]))
	if !prefixed {
		if len(digits) > 1 && digits[0] == '0' && strings.Trim(digits, "0_") != "" {
			return nil, d.fail(h, ErrBadLiteral, "leading zeros in decimal literal")
		}
		if len(digits) > d.maxIntDigits {
			return nil, d.fail(h, ErrIntTooLong, fmt.Sprintf("%d digits, limit %d", len(digits), d.maxIntDigits))
		}
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int{Header: h, Small: v}, nil
		}
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, d.fail(h, ErrBadLiteral, s)
	}
	if v.IsInt64() {
		return Int{Header: h, Small: v.Int64()}, nil
	}
	return Int{Header: h, Big: v}, nil
}

func unicodeWidth(code Opcode) int {
	switch code {
	case SHORT_BINUNICODE:
		return 1
	case BINUNICODE:
		return 4
	}
	return 8
}

func bytesWidth(code Opcode) int {
	switch code {
	case SHORT_BINBYTES:
		return 1
	case BINBYTES:
		return 4
	}
	return 8
}

// decodeLong decodes a little-endian two's complement integer.
func decodeLong(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}
	be := make([]byte, len(b))
	for i, c := range b {
		be[len(b)-1-i] = c
	}
	v := new(big.Int).SetBytes(be)
	if b[len(b)-1]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return v
}
