package utils

import (
	"strings"
	"unicode"
)

// imageryTerms are the phrases treated as direct references to satellite
// imagery in article text.
var imageryTerms = []string{"satellite", "aerial imagery", "remote sensing"}

// MatchedImageryTerms returns the imagery phrases found in article text.
// Stored with the story as a weak positive training signal.
func MatchedImageryTerms(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, term := range imageryTerms {
		if strings.Contains(lower, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// Tokenize lowercases text and splits it into alphabetic word tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
