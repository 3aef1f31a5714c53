package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokodak/ttd-dr/internal/domain"
)

func section(words int, citations []string, content string) domain.GeneratedSection {
	return domain.GeneratedSection{
		Spec:          domain.SectionSpec{Title: "T", ChapterNumber: 1, SectionNumber: 1},
		Content:       content,
		WordCount:     words,
		CitationsUsed: citations,
	}
}

func TestValidateSectionPasses(t *testing.T) {
	v := New(Thresholds{})
	content := "This is a detailed paragraph. It has multiple sentences.\n\nAnd a second paragraph. [Source 1] [Source 2]"
	s := section(350, []string{"Source 1", "Source 2"}, content)
	result := v.ValidateSection(s, nil)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Issues)
}

func TestValidateSectionFailsDepth(t *testing.T) {
	v := New(Thresholds{})
	s := section(50, nil, "Too short. [Source 1]\n\nMore text.")
	result := v.ValidateSection(s, nil)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Issues)
}

func TestValidateSectionFailsCitations(t *testing.T) {
	v := New(Thresholds{})
	s := section(350, nil, "No citations here at all, just plain prose.\n\nSecond paragraph here.")
	result := v.ValidateSection(s, nil)
	assert.False(t, result.IsValid)
}

func TestValidateSectionFailsCoherenceOnPlaceholder(t *testing.T) {
	v := New(Thresholds{})
	s := section(350, []string{"Source 1"}, "[Content generation failed for this section. Error: boom]")
	result := v.ValidateSection(s, nil)
	assert.False(t, result.IsValid)
	assert.Equal(t, 0.0, result.CoherenceScore)
}

func TestValidateSectionFailsRedundancy(t *testing.T) {
	v := New(Thresholds{})
	content := "repeated identical words over and over again in this section body text"
	s := section(350, []string{"Source 1", "Source 2"}, content)
	prev := section(350, []string{"Source 1"}, content)
	result := v.ValidateSection(s, []domain.GeneratedSection{prev})
	assert.False(t, result.IsValid)
	assert.Greater(t, result.RedundancyScore, 0.70)
}

func TestShouldRegenerate(t *testing.T) {
	v := New(Thresholds{})
	invalid := domain.ValidationResult{IsValid: false, Issues: []string{"bad"}}
	should, guidance := v.ShouldRegenerate(invalid, 1, 2)
	assert.True(t, should)
	require.NotEmpty(t, guidance)

	should, _ = v.ShouldRegenerate(invalid, 2, 2)
	assert.False(t, should)

	valid := domain.ValidationResult{IsValid: true}
	should, _ = v.ShouldRegenerate(valid, 1, 2)
	assert.False(t, should)
}

func TestJaccard(t *testing.T) {
	a := wordSet("the quick brown fox")
	b := wordSet("the quick brown fox")
	assert.Equal(t, 1.0, jaccard(a, b))

	c := wordSet("completely different words entirely")
	assert.Equal(t, 0.0, jaccard(a, c))
}
