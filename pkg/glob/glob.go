// Package glob matches names against a set of shell-style patterns.
//
// Patterns follow path.Match, so '*' and '?' never match '/'. A pattern
// ending in "/..." also matches every name below what it matches, the way
// the go tool reads package patterns: "github.com/acme/..." matches
// "github.com/acme" and "github.com/acme/store/cart".
package glob

import (
	"path"
	"slices"
	"strings"
)

// treeSuffix marks a pattern that matches a name and everything below it.
const treeSuffix = "/..."

// Matcher tests names against a fixed set of glob patterns. A name matches
// when any valid pattern matches it.
type Matcher struct {
	patterns  []string
	discarded []string
}

// New builds a Matcher. Patterns that path.Match rejects are dropped
// individually and never match; the rest of the set is unaffected.
func New(patterns []string) *Matcher {
	m := &Matcher{
		patterns: make([]string, 0, len(patterns)),
	}

	for _, p := range patterns {
		if !Valid(p) {
			m.discarded = append(m.discarded, p)

			continue
		}

		m.patterns = append(m.patterns, p)
	}

	return m
}

// Valid reports whether pattern is well formed.
func Valid(pattern string) bool {
	_, err := path.Match(pattern, "")

	return err == nil
}

// Match reports whether name matches at least one pattern.
func (m *Matcher) Match(name string) bool {
	if m == nil {
		return false
	}

	for _, p := range m.patterns {
		if matchOne(p, name) {
			return true
		}
	}

	return false
}

func matchOne(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	if err == nil && matched {
		return true
	}

	root, tree := strings.CutSuffix(pattern, treeSuffix)
	if !tree {
		return false
	}

	// root itself, then each ancestor of name.
	for prefix := name; ; {
		matched, err = path.Match(root, prefix)
		if err == nil && matched {
			return true
		}

		i := strings.LastIndexByte(prefix, '/')
		if i < 0 {
			return false
		}

		prefix = prefix[:i]
	}
}

// Empty reports whether the matcher has no usable pattern.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

// Patterns returns the valid patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}

	return slices.Clone(m.patterns)
}

// Discarded returns the patterns that were dropped as malformed.
func (m *Matcher) Discarded() []string {
	if m == nil {
		return nil
	}

	return slices.Clone(m.discarded)
}
