package management

import (
	"sort"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// MaxSuggestions caps CloseMatches results.
	MaxSuggestions = 3
	// SuggestionCutoff is the minimum similarity for a suggestion.
	SuggestionCutoff = 0.6
)

// CloseMatches returns up to n possibilities whose similarity to word is at
// least cutoff, best first. Similarity is one minus the Levenshtein distance
// over the longer length.
func CloseMatches(word string, possibilities []string, n int, cutoff float64) []string {
	dmp := diffmatchpatch.New()
	type scored struct {
		name  string
		ratio float64
	}
	var matches []scored
	for _, p := range possibilities {
		if r := similarity(dmp, word, p); r >= cutoff {
			matches = append(matches, scored{name: p, ratio: r})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].ratio > matches[j].ratio })
	if len(matches) > n {
		matches = matches[:n]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

func similarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	dist := dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
	return 1 - float64(dist)/float64(longest)
}
