package pickle

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// unquoteString decodes a STRING operand: a single- or double-quoted
// literal with backslash escapes. It reports false when the quoting is
// malformed.
func unquoteString(s string) (string, bool) {
	if len(s) < 2 || s[0] != s[len(s)-1] || (s[0] != '\'' && s[0] != '"') {
		return "", false
	}
	body := s[1 : len(s)-1]

	var out []byte
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			out = append(out, c)
			continue
		}
		i++
		switch e := body[i]; e {
		case '\\', '\'', '"':
			out = append(out, e)
		case 'a':
			out = append(out, '\a')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'v':
			out = append(out, '\v')
		case '\n':
		case 'x':
			if i+2 >= len(body) {
				return "", false
			}
			v, err := strconv.ParseUint(body[i+1:i+3], 16, 8)
			if err != nil {
				return "", false
			}
			out = append(out, byte(v))
			i += 2
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(body) && j < i+3 && body[j] >= '0' && body[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(body[i:j], 8, 16)
			out = append(out, byte(v))
			i = j - 1
		default:
			out = append(out, '\\', e)
		}
	}
	return string(out), true
}

// quoteString encodes s as a single-quoted STRING operand.
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' || c == '\'':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, `\x%02x`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// rawUnicodeUnescape decodes a raw-unicode-escape operand. Bytes are
// Latin-1 except for \uXXXX and \UXXXXXXXX escapes introduced by an odd
// run of backslashes.
func rawUnicodeUnescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteRune(rune(c))
			continue
		}
		run := 1
		for i+run < len(s) && s[i+run] == '\\' {
			run++
		}
		next := i + run
		width := 0
		if run%2 == 1 && next < len(s) {
			switch s[next] {
			case 'u':
				width = 4
			case 'U':
				width = 8
			}
		}
		if width == 0 || next+1+width > len(s) {
			b.WriteString(s[i:next])
			i = next - 1
			continue
		}
		v, err := strconv.ParseUint(s[next+1:next+1+width], 16, 32)
		if err != nil || !utf8.ValidRune(rune(v)) {
			b.WriteString(s[i:next])
			i = next - 1
			continue
		}
		b.WriteString(s[i : next-1])
		b.WriteRune(rune(v))
		i = next + width
	}
	return b.String()
}

// rawUnicodeEscape encodes s as Latin-1 bytes so rawUnicodeUnescape
// returns it unchanged.
func rawUnicodeEscape(s string) []byte {
	var b []byte
	for _, r := range s {
		switch {
		case r > 0xffff:
			b = fmt.Appendf(b, `\U%08x`, r)
		case r == '\\' || r == '\n' || r == '\r' || r > 0xff:
			b = fmt.Appendf(b, `\u%04x`, r)
		default:
			b = append(b, byte(r))
		}
	}
	return b
}
