package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeText("  a\t b\n\nc  "))
	assert.Equal(t, "", NormalizeText("   \n\t "))
	assert.Equal(t, "hello", NormalizeText("hello"))
}

func TestContentHashDeterministic(t *testing.T) {
	h1 := ContentHash("What is Go?", "Go is a language.", "https://example.com")
	h2 := ContentHash("What is Go?", "Go is a language.", "https://example.com")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestContentHashIgnoresFormattingNoise(t *testing.T) {
	h1 := ContentHash("What is Go?", "Go is a language.", "https://example.com")
	h2 := ContentHash("  What   is Go? ", "Go is\na language. ", "https://example.com")
	assert.Equal(t, h1, h2)
}

func TestContentHashSensitivity(t *testing.T) {
	base := ContentHash("What is Go?", "ctx", "https://example.com")

	assert.NotEqual(t, base, ContentHash("What is Rust?", "ctx", "https://example.com"))
	assert.NotEqual(t, base, ContentHash("What is Go?", "other", "https://example.com"))
	assert.NotEqual(t, base, ContentHash("What is Go?", "ctx", "https://other.com"))
}

func TestURLHash(t *testing.T) {
	h := URLHash("https://example.com/page")
	assert.Len(t, h, 32)
	assert.Equal(t, h, URLHash("https://example.com/page"))
	assert.NotEqual(t, h, URLHash("https://example.com/other"))
}
