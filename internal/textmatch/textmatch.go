// Package textmatch holds the string normalization and similarity helpers
// shared by duplicate detection, payee resolution and rule suggestion.
package textmatch

import (
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// unit-cost edits so the distance is bounded by the longer string length.
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Fold lowercases s, strips diacritics, trims it and collapses inner
// whitespace. "  Café   Rouge " -> "cafe rouge"
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// Tokens splits folded text into words. Dots, ampersands and apostrophes stay
// inside tokens so "anthropic.com" and "at&t" survive intact.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '&' || r == '\'')
	})
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Similarity returns 1 - editDistance/maxLen over the runes of a and b, in
// [0,1]. Callers are expected to Fold first. Empty input scores 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	d := levenshtein.DistanceForStrings(ra, rb, editOptions)
	sim := 1 - float64(d)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// WindowSimilarity compares base against the whole of text and against the
// leading run of text tokens as long as base, returning the better score.
// "starbuck" vs "starbucks store 123 seattle" scores on "starbucks".
func WindowSimilarity(text, base string) float64 {
	text, base = Fold(text), Fold(base)
	best := Similarity(text, base)

	baseTokens := strings.Fields(base)
	textTokens := strings.Fields(text)
	if n := len(baseTokens); n > 0 && len(textTokens) > n {
		if s := Similarity(strings.Join(textTokens[:n], " "), base); s > best {
			best = s
		}
	}
	return best
}
