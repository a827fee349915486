package pickle

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassemble returns a pickletools-style listing of a stream, one
// instruction per line. Stacked pickles are listed one after another.
// On a decode error the partial listing is returned with the error.
func Disassemble(data []byte) (string, error) {
	var sb strings.Builder
	base := int64(0)
	for {
		d := NewDecoder(data)
		for op, err := range d.Ops() {
			if err != nil {
				return sb.String(), err
			}
			h := op.Head()
			fmt.Fprintf(&sb, "%6d: %-18s %s\n", base+h.Offset, h.Code.Name(), operand(op))
		}
		rest := d.Rest()
		if len(rest) == 0 || rest[0] != byte(PROTO) {
			if len(rest) > 0 {
				fmt.Fprintf(&sb, "%6d: <%d trailing bytes>\n", base+d.Offset(), len(rest))
			}
			return sb.String(), nil
		}
		base += d.Offset()
		data = rest
		sb.WriteByte('\n')
	}
}

// DisassembleTo writes the listing to w.
func DisassembleTo(w io.Writer, data []byte) error {
	out, err := Disassemble(data)
	if _, werr := io.WriteString(w, out); werr != nil {
		return werr
	}
	return err
}

func operand(op Op) string {
	switch o := op.(type) {
	case Proto:
		return strconv.Itoa(o.Version)
	case Frame:
		return strconv.FormatUint(o.Size, 10)
	case Global:
		return strconv.Quote(o.Module + " " + o.Name)
	case Inst:
		return strconv.Quote(o.Module + " " + o.Name)
	case MemoPut:
		if o.Auto {
			return ""
		}
		return strconv.FormatInt(o.ID, 10)
	case MemoGet:
		return strconv.FormatInt(o.ID, 10)
	case Tuple:
		if o.Arity == MarkArity {
			return "(MARK)"
		}
		return ""
	case Int:
		if o.Big != nil {
			return o.Big.String()
		}
		return strconv.FormatInt(o.Small, 10)
	case Float:
		return strconv.FormatFloat(o.Value, 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(o.Value)
	case Str:
		return strconv.Quote(o.Value)
	case Bytes:
		return fmt.Sprintf("%q", o.Value)
	case PersistentID:
		return strconv.Quote(o.ID)
	case Ext:
		return strconv.FormatInt(o.Code, 10)
	case UnknownOpcode:
		return fmt.Sprintf("0x%02x", o.Byte)
	}
	return ""
}
