package places

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, spells the Latin "w" as "sh" the way Uzbek posters do,
// and strips combining accents (so "й" folds to "и" and "ё" to "е").
func Fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "w", "sh")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

type trigramSet map[string]struct{}

// trigrams follows pg_trgm: every alphanumeric word is padded with two
// leading blanks and one trailing blank before it is cut into trigrams.
func trigrams(s string) trigramSet {
	out := trigramSet{}
	for _, word := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out[string(padded[i:i+3])] = struct{}{}
		}
	}
	return out
}

func (a trigramSet) similarity(b trigramSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for g := range a {
		if _, ok := b[g]; ok {
			common++
		}
	}
	union := len(a) + len(b) - common
	return float64(common) / float64(union)
}

// Similarity is the trigram similarity of two already folded strings.
func Similarity(a, b string) float64 {
	return trigrams(a).similarity(trigrams(b))
}

func distance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// tokenCount counts words separated by blanks or hyphens.
func tokenCount(s string) int {
	return len(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	}))
}
