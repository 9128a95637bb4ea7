// Package dedup implements the three duplicate-detection stages: identity,
// same-channel title similarity and cross-source paraphrase matching.
package dedup

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var titleFolder = cases.Fold()

// foldTitle case-folds a title for comparison.
func foldTitle(s string) string {
	return titleFolder.String(strings.TrimSpace(s))
}

// levenshtein computes the edit distance between two rune slices with two
// rolling rows.
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
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}

	if c < a {
		a = c
	}

	return a
}

// TitleSimilarity returns the normalized Levenshtein similarity of two titles
// in [0,1] after case folding. Two empty titles are not similar; a title is
// identical to itself.
func TitleSimilarity(a, b string) float64 {
	fa, fb := foldTitle(a), foldTitle(b)

	if fa == "" && fb == "" {
		return 0
	}

	ra, rb := []rune(fa), []rune(fb)

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}

	dist := levenshtein(ra, rb)

	return 1 - float64(dist)/float64(longest)
}

// TitlePrefixChars is the prefix length used to pre-filter title candidates.
const TitlePrefixChars = 50

// minOverlapRunes guards the truncated comparison: below this length a shared
// prefix says nothing about the titles being the same story.
const minOverlapRunes = 20

// UpdateAwareSimilarity scores two titles for stage B. It takes the better of
// the full-length normalized Levenshtein similarity and the similarity of the
// two titles truncated to their common length, so a re-publication that only
// appends a suffix ("… — Aktualisierung") still scores 1.0. The truncated
// comparison only counts when the overlap is long enough to be meaningful.
func UpdateAwareSimilarity(a, b string) float64 {
	full := TitleSimilarity(a, b)

	ra, rb := []rune(foldTitle(a)), []rune(foldTitle(b))

	overlap := len(ra)
	if len(rb) < overlap {
		overlap = len(rb)
	}

	if overlap < minOverlapRunes {
		return full
	}

	truncated := TitleSimilarity(string(ra[:overlap]), string(rb[:overlap]))
	if truncated > full {
		return truncated
	}

	return full
}

// TitlePrefix returns the comparison prefix of a title: first 50 runes,
// lowercased. Lowercasing happens after the cut so the prefix lines up with
// the store's lower(left(title, 50)) index expression.
func TitlePrefix(title string) string {
	title = strings.TrimSpace(title)

	if utf8.RuneCountInString(title) > TitlePrefixChars {
		title = string([]rune(title)[:TitlePrefixChars])
	}

	return strings.ToLower(title)
}
