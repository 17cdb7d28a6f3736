package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatioIdentical(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("what is go?", "what is go?"))
	assert.Equal(t, 1.0, Ratio("", ""))
}

func TestRatioEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("", "abc"))
	assert.Equal(t, 0.0, Ratio("abc", ""))
}

func TestRatioDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))
}

func TestRatioKnownValues(t *testing.T) {
	// LCS("abcd", "bcde") = "bcd" -> 2*3/8
	assert.InDelta(t, 0.75, Ratio("abcd", "bcde"), 1e-9)

	// LCS is "What is " plus "?" -> 2*9/20
	assert.InDelta(t, 0.9, Ratio("What is A?", "What is B?"), 1e-9)
}

func TestRatioSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"what is go", "what was go"},
		{"short", "a much longer string entirely"},
		{"héllo wörld", "hello world"},
	}
	for _, p := range pairs {
		assert.Equal(t, Ratio(p[0], p[1]), Ratio(p[1], p[0]))
	}
}

func TestRatioUnicodeRunes(t *testing.T) {
	// Counted over runes, not bytes: one rune differs out of four.
	assert.InDelta(t, 0.75, Ratio("日本語x", "日本語y"), 1e-9)
}
