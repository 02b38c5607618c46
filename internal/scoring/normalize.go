package scoring

import (
	"sort"
	"strings"
	"unicode"
)

// Markers that annotation exports use for a missing cell. Any reference equal
// to one of these is coerced to the empty string before scoring, since the
// correct action for such a cell is to leave the field untouched.
var missingMarkers = map[string]bool{
	"nan":  true,
	"NaN":  true,
	"{}":   true,
	"'{}'": true,
}

// normalizeReferences returns a copy of refs with missing-value markers
// mapped to the empty string.
func normalizeReferences(refs []string) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		if missingMarkers[r] {
			out[i] = ""
			continue
		}
		out[i] = r
	}
	return out
}

// emptyPrediction reports whether a flattened prediction encodes "no value":
// the empty string or a string-encoded empty list.
func emptyPrediction(p string) bool {
	return p == "" || p == "[]" || p == "['']"
}

// NormalizeAnswer lowercases s, strips punctuation, and collapses whitespace.
// Adapted from the SQuAD v1.1 normalization, minus article removal.
func NormalizeAnswer(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ExactMatch is the binary metric used for choice fields: 1 when the
// normalized forms agree, 0 otherwise.
func ExactMatch(prediction, reference string) float64 {
	if NormalizeAnswer(prediction) == NormalizeAnswer(reference) {
		return 1.0
	}
	return 0.0
}

// sortOptionSet canonicalizes a pipe-delimited option set so that checkbox
// comparisons are order-insensitive.
func sortOptionSet(s string) string {
	if !strings.Contains(s, "|") {
		return s
	}
	parts := strings.Split(s, "|")
	sort.Strings(parts)
	return strings.Join(parts, "|")
}
