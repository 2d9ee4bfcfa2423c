package pipeline

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics strips diacritical marks from a string (e.g. "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel canonicalizes a label so the same person enrolled twice with
// different spellings lands on one class: diacritics folded, lowercased,
// inner whitespace collapsed to single spaces.
func NormalizeLabel(label string) string {
	label = removeDiacritics(label)
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.Join(strings.Fields(label), " ")
}
