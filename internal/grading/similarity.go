package grading

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Similarity compares submitted code against a reference solution.
// Both strings are normalized (NFC, lower-cased, whitespace removed) and scored
// as (maxLen - editDistance) / maxLen. Two empty strings score 1.0.
func Similarity(submitted, reference string) float64 {
	a := normalizeCode(submitted)
	b := normalizeCode(reference)

	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshtein(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}

func normalizeCode(s string) []rune {
	s = cases.Lower(language.Und).String(norm.NFC.String(s))
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}

// levenshtein is the classic edit-distance table, kept to two rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j-1], prev[j], curr[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// lowerCode is the form keyword markers are matched against.
func lowerCode(code string) string {
	return strings.ToLower(code)
}
