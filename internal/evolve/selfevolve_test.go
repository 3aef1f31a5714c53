package evolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 1, o.NumVariants)
	assert.Equal(t, 1, o.EvolutionSteps)

	o = Options{NumVariants: 3, EvolutionSteps: 2}.withDefaults()
	assert.Equal(t, 3, o.NumVariants)
	assert.Equal(t, 2, o.EvolutionSteps)
}

func TestExtractRevisedTextFindsMarker(t *testing.T) {
	feedback := "CRITIQUE: too vague\nSCORE: 4\nREVISED_TEXT: a sharper version of the text"
	revised, ok := extractRevisedText(feedback)
	assert.True(t, ok)
	assert.Equal(t, "a sharper version of the text", revised)
}

func TestExtractRevisedTextMissingMarker(t *testing.T) {
	_, ok := extractRevisedText("no marker here")
	assert.False(t, ok)
}
