package pickle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "plain", "it's", "back\\slash", "tab\tnew\nline", "\x00\xff"} {
		got, ok := unquoteString(quoteString(s))
		assert.True(t, ok, s)
		assert.Equal(t, s, got)
	}
}

func TestRawUnicodeRoundTrip(t *testing.T) {
	for _, s := range []string{"", "ascii", "caf\u00e9", "\u4e2d\u6587", "\U0001F600", "a\\ub", "line\nbreak"} {
		assert.Equal(t, s, rawUnicodeUnescape(string(rawUnicodeEscape(s))), s)
	}
}

func TestRawUnicodeEvenBackslashes(t *testing.T) {
	// Two backslashes before u are literal; no escape is decoded.
	assert.Equal(t, `\\u0041`, rawUnicodeUnescape(`\\u0041`))
	assert.Equal(t, `\\A`, rawUnicodeUnescape(`\\\u0041`))
}

func TestUnquoteStringOctal(t *testing.T) {
	got, ok := unquoteString(`'\101\0'`)
	assert.True(t, ok)
	assert.Equal(t, "A\x00", got)
}
