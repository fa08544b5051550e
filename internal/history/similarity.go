package history

import (
	"regexp"
	"strings"

	"github.com/scrypster/perspective/pkg/types"
)

// SimilarityThreshold is the Jaccard score at or above which a candidate is
// judged a near-duplicate of recent output.
const SimilarityThreshold = 0.7

var (
	markupPattern     = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// normalize strips markup, lowercases, and collapses whitespace.
func normalize(text string) string {
	text = markupPattern.ReplaceAllString(text, " ")
	text = strings.ToLower(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// tokenSet splits normalized text into its set of words.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalize(text)) {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard computes word-set similarity between two texts: intersection size
// over union size. Two empty texts are identical (1.0).
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// TooSimilar reports whether candidate is a near-duplicate of any entry in
// the history window.
func TooSimilar(candidate string, recent []types.HistoryEntry) bool {
	for _, e := range recent {
		if Jaccard(candidate, e.Text) >= SimilarityThreshold {
			return true
		}
	}
	return false
}
