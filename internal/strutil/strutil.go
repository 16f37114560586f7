// Package strutil holds the text normalization shared by entity resolution
// and reporting. Both sides must agree on what makes two names equal, so
// the definition lives in one place.
package strutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases, trims, collapses inner whitespace and strips
// diacritics so that "João  Araújo" and "joao araujo" compare equal.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(diacriticStripper, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(s), " ")
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
