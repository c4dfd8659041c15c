package textutil

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Fold removes diacritics, "Pérez Muñoz" becomes "Perez Munoz".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseSpace trims s and collapses every run of whitespace (including
// non-breaking spaces) into a single space.
func CollapseSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeName lowercases, folds diacritics and replaces punctuation with
// spaces so two renderings of the same name compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(Fold(name))
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(' ')
	}
	return CollapseSpace(b.String())
}

// SortedTokens is NormalizeName with its tokens sorted, which makes
// "PEREZ, Juan" and "Juan Perez" identical.
func SortedTokens(name string) string {
	tokens := strings.Fields(NormalizeName(name))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ContainsWord reports whether any of words appears in name as a whole
// word (or whole phrase). words are expected to already be normalized.
func ContainsWord(name string, words []string) bool {
	padded := " " + NormalizeName(name) + " "
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// OnlyDigits strips every rune that is not an ASCII digit.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
