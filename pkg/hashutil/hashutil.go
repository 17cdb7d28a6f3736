package hashutil

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeText collapses every run of whitespace to a single space and
// trims the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContentHash derives the deterministic record id from question, context
// and source URL. The answer deliberately does not participate: the same
// question about the same passage is the same record regardless of how the
// model phrased the answer.
func ContentHash(question, context, sourceURL string) string {
	content := NormalizeText(question) + "|" + NormalizeText(context) + "|" + sourceURL
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// URLHash is the short lookup key for snapshots and cache entries.
func URLHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
