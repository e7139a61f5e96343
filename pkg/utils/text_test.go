package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchedImageryTerms(t *testing.T) {
	terms := MatchedImageryTerms("Remote sensing and SATELLITE data confirm the spill.")
	assert.Equal(t, []string{"satellite", "remote sensing"}, terms)
	assert.Nil(t, MatchedImageryTerms("no mention at all"))
	assert.Nil(t, MatchedImageryTerms(""))
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Flooding hits Jakarta; 20,000 evacuated!")
	assert.Equal(t, []string{"flooding", "hits", "jakarta", "20", "000", "evacuated"}, tokens)
}

func TestTokenize_Empty(t *testing.T) {
	assert.Empty(t, Tokenize("...!?"))
}
