// Package textnorm folds free text for comparison: header names, payment
// references and search terms.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// Compact folds s and drops every rune that is not a letter or digit.
// "Pago-778 " and "pago 778" compact to the same key.
func Compact(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContainsAny reports whether the folded haystack contains any of the
// folded needles.
func ContainsAny(haystack string, needles ...string) bool {
	h := Fold(haystack)
	for _, n := range needles {
		if n != "" && strings.Contains(h, Fold(n)) {
			return true
		}
	}
	return false
}
