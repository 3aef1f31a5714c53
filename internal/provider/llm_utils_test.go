package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFenceRemovesJSONFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
}

func TestStripCodeFenceRemovesBareFence(t *testing.T) {
	assert.Equal(t, "plain text", StripCodeFence("```\nplain text\n```"))
}

func TestStripCodeFenceLeavesUnfencedTextUnchanged(t *testing.T) {
	assert.Equal(t, "no fence here", StripCodeFence("  no fence here  "))
}

func TestExtractCitationMarkersDedupesInFirstSeenOrder(t *testing.T) {
	text := "see [2] and [Source 5], also [2] again, then [1]."
	assert.Equal(t, []string{"2", "5", "1"}, ExtractCitationMarkers(text))
}

func TestExtractCitationMarkersNoneFound(t *testing.T) {
	assert.Nil(t, ExtractCitationMarkers("nothing to cite"))
}
