package domain

import (
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters (spaces, tabs, newlines).
var whitespaceRegex = regexp.MustCompile(`\s+`)

// titlePunctRegex matches everything that is not a lowercase letter, digit,
// or whitespace. It runs after lowercasing, so it strips punctuation and
// symbols from titles.
var titlePunctRegex = regexp.MustCompile(`[^a-z0-9\s]+`)

// NormalizeTitle normalizes a paper title for fuzzy comparison:
// lowercase, punctuation stripped, whitespace collapsed to single spaces.
// Stored once per registry entry and recomputed for incoming papers.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = titlePunctRegex.ReplaceAllString(s, "")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TitleSimilarity computes the trigram Jaccard similarity between two titles.
// Both titles are normalized first. Identical normalized titles score exactly
// 1.0; if either normalizes to the empty string the score is 0.0. The measure
// is symmetric.
func TitleSimilarity(a, b string) float64 {
	na := NormalizeTitle(a)
	nb := NormalizeTitle(b)

	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	ta := trigramSet(na)
	tb := trigramSet(nb)

	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// trigramSet returns the set of length-3 substrings of s. Strings shorter
// than 3 characters produce a single-element set containing the whole string.
func trigramSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	if len(s) < 3 {
		set[s] = struct{}{}
		return set
	}
	for i := 0; i+3 <= len(s); i++ {
		set[s[i:i+3]] = struct{}{}
	}
	return set
}
