// Package fingerprint derives deterministic keys from todo text for duplicate
// detection. The fingerprint is a fast exact-match key; simhash and token
// overlap back the near-duplicate check.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// Light stop-word list: words dropped before hashing so that trivial phrasing
// differences ("send the report" vs "send report") collapse to one key.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "for": {}, "and": {},
	"or": {}, "in": {}, "on": {}, "at": {}, "by": {}, "with": {}, "is": {},
	"be": {}, "will": {}, "that": {}, "this": {},
}

// Tokens normalizes text into its fingerprint token sequence: case-folded,
// punctuation stripped, whitespace collapsed, stop words removed.
func Tokens(s string) []string {
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Fingerprint returns the dedupe key for a task description. Same token
// sequence always yields the same key.
func Fingerprint(s string) string {
	joined := strings.Join(Tokens(s), " ")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:16]
}

// Jaccard returns the token-overlap ratio between two token sets in [0,1].
// Empty-vs-empty is defined as 1 (identical), empty-vs-nonempty as 0.
func Jaccard(a, b []string) float64 {
	setA := map[string]struct{}{}
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := map[string]struct{}{}
	for _, t := range b {
		setB[t] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Simhash64 computes a 64-bit simhash over the fingerprint tokens, weighted
// by token length. Near-identical texts land within a small Hamming distance.
func Simhash64(s string) uint64 {
	toks := Tokens(s)
	if len(toks) == 0 {
		return 0
	}
	var vec [64]int64
	for _, tok := range toks {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		v := h.Sum64()
		w := int64(1 + len(tok)/4)
		for i := 0; i < 64; i++ {
			if (v>>uint(i))&1 == 1 {
				vec[i] += w
			} else {
				vec[i] -= w
			}
		}
	}
	var out uint64
	for i := 0; i < 64; i++ {
		if vec[i] >= 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// Hamming returns the number of differing bits between two simhashes.
func Hamming(a, b uint64) int { return bits.OnesCount64(a ^ b) }
