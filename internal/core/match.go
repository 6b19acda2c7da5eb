package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchThreshold is the fraction of significant query words that must be
// found in the target for a word-overlap match.
const MatchThreshold = 0.7

// minWordLength is the length a query word must exceed to count.
const minWordLength = 2

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// NormalizeText folds case and diacritics and reduces punctuation to single
// spaces, so "¿Mecánica  Clásica?" becomes "mecanica clasica".
func NormalizeText(text string) string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := true // suppresses leading and repeated spaces
	for _, r := range folded {
		if isWordRune(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// isWordRune reports whether r belongs to the ASCII word class. Input is
// already lowercased.
func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

// Matches reports whether query fuzzily matches target. Both are normalized
// first. A substring hit always matches; otherwise at least MatchThreshold of
// the query words longer than two characters must overlap a target word in
// either direction.
func Matches(query, target string) bool {
	if query == "" || target == "" {
		return false
	}

	q := NormalizeText(query)
	t := NormalizeText(target)
	if t == "" {
		return false
	}
	if strings.Contains(t, q) {
		return true
	}

	var queryWords []string
	for _, w := range strings.Fields(q) {
		if len(w) > minWordLength {
			queryWords = append(queryWords, w)
		}
	}
	if len(queryWords) == 0 {
		return false
	}

	targetWords := strings.Fields(t)
	found := 0
	for _, qw := range queryWords {
		for _, tw := range targetWords {
			if strings.Contains(tw, qw) || strings.Contains(qw, tw) {
				found++
				break
			}
		}
	}

	return float64(found)/float64(len(queryWords)) >= MatchThreshold
}
