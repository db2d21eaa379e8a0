// Package suggest finds the closest known name to a mistyped one.
package suggest

import (
	"slices"
	"strings"
)

// Distance returns the Levenshtein edit distance between a and b, counted
// in runes.
func Distance(a, b string) int {
	s, t := []rune(a), []rune(b)
	if len(s) < len(t) {
		s, t = t, s
	}

	prev := make([]int, len(t)+1)
	cur := make([]int, len(t)+1)

	for j := range prev {
		prev[j] = j
	}

	for i, sr := range s {
		cur[0] = i + 1

		for j, tr := range t {
			cost := 1
			if sr == tr {
				cost = 0
			}

			cur[j+1] = min(prev[j+1]+1, cur[j]+1, prev[j]+cost)
		}

		prev, cur = cur, prev
	}

	return prev[len(t)]
}

// Closest returns the candidates nearest to name, case-insensitively, in
// candidate order. Candidates further than maxDistance edits are ignored;
// a maxDistance below zero allows a third of the name's length, at least 2.
func Closest(name string, candidates []string, maxDistance int) []string {
	if maxDistance < 0 {
		maxDistance = max(len([]rune(name))/3, 2)
	}

	best := maxDistance + 1

	var out []string

	lower := strings.ToLower(name)

	for _, c := range candidates {
		d := Distance(lower, strings.ToLower(c))

		switch {
		case d < best:
			best = d
			out = []string{c}
		case d == best && !slices.Contains(out, c):
			out = append(out, c)
		}
	}

	return out
}

// Hint formats the closest candidates as a "did you mean" clause, or
// returns "" when nothing is close.
func Hint(name string, candidates []string) string {
	closest := Closest(name, candidates, -1)
	if len(closest) == 0 {
		return ""
	}

	return "; did you mean " + strings.Join(closest, " or ") + "?"
}
