package management

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCloseMatches(t *testing.T) {
	names := []string{"check", "deploy", "greet", "migrate", "startproject"}

	tests := []struct {
		word string
		want []string
	}{
		{word: "greett", want: []string{"greet"}},
		{word: "chek", want: []string{"check"}},
		{word: "migrat", want: []string{"migrate"}},
		{word: "deploy", want: []string{"deploy"}},
		{word: "xyz", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			require.Equal(t, tt.want, CloseMatches(tt.word, names, MaxSuggestions, SuggestionCutoff))
		})
	}
}

func TestCloseMatches_Limit(t *testing.T) {
	got := CloseMatches("run", []string{"runs", "rune", "runt", "ruin"}, 2, 0.5)
	require.Len(t, got, 2)
}

func TestCloseMatches_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "word")
		names := rapid.SliceOf(rapid.StringMatching(`[a-z]{1,8}`)).Draw(t, "names")
		n := rapid.IntRange(1, 5).Draw(t, "n")

		got := CloseMatches(word, names, n, SuggestionCutoff)
		if len(got) > n {
			t.Fatalf("got %d matches, limit %d", len(got), n)
		}
		for _, name := range names {
			if name == word && (len(got) == 0 || got[0] != word) {
				t.Fatalf("exact match %q must rank first, got %v", word, got)
			}
		}
	})
}
