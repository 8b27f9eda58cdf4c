// Package merchant canonicalizes merchant names so that charges from the
// same service group together regardless of case or punctuation.
package merchant

import (
	"sort"
	"strings"
	"unicode"
)

// Normalize returns the grouping key for a merchant name: case-folded,
// punctuation and symbols removed, whitespace collapsed.
//
//	"NETFLIX.COM"   -> "netflixcom"
//	"Spotify  USA*" -> "spotify usa"
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			pendingSpace = true
		}
		// punctuation and symbols are dropped without splitting words
	}

	return b.String()
}

// Display picks the name to show for a group: the most frequent raw
// spelling, ties broken by lexical order so the choice is deterministic.
func Display(names []string) string {
	if len(names) == 0 {
		return ""
	}

	counts := make(map[string]int, len(names))
	for _, n := range names {
		counts[strings.TrimSpace(n)]++
	}

	candidates := make([]string, 0, len(counts))
	for n := range counts {
		candidates = append(candidates, n)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})

	return candidates[0]
}

// Same reports whether two raw names refer to the same merchant key.
func Same(a, b string) bool {
	ka := Normalize(a)
	return ka != "" && ka == Normalize(b)
}
