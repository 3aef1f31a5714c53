// Package quality scores generated sections against depth, citation
// density, redundancy, and coherence thresholds, and decides whether a
// section needs regeneration.
package quality

import (
	"fmt"
	"strings"

	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

var errorIndicators = []string{
	"generation failed",
	"error:",
	"[content generation failed",
	"not implemented",
	"placeholder",
}

// Thresholds configures the four quality metrics. Zero values fall back to
// the documented defaults (300/350 words, a minimum citation score of 1/150
// compared against CitationDensity's per-150-words value, 70% redundancy
// ceiling, 0.8 coherence floor).
type Thresholds struct {
	MinWordCount       int
	TargetWordCount    int
	MinCitationDensity float64
	MaxRedundancy      float64
	MinCoherence       float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.MinWordCount == 0 {
		t.MinWordCount = 300
	}
	if t.TargetWordCount == 0 {
		t.TargetWordCount = 350
	}
	if t.MinCitationDensity == 0 {
		t.MinCitationDensity = 1.0 / 150.0
	}
	if t.MaxRedundancy == 0 {
		t.MaxRedundancy = 0.70
	}
	if t.MinCoherence == 0 {
		t.MinCoherence = 0.8
	}
	return t
}

// Validator checks generated sections against Thresholds.
type Validator struct {
	thresholds Thresholds
}

// New creates a Validator with the given thresholds.
func New(thresholds Thresholds) *Validator {
	return &Validator{thresholds: thresholds.withDefaults()}
}

// ValidateSection scores section against all four quality metrics and
// against every section in previousSections for redundancy.
func (v *Validator) ValidateSection(section domain.GeneratedSection, previousSections []domain.GeneratedSection) domain.ValidationResult {
	var issues []string
	t := v.thresholds

	depthScore := float64(section.WordCount) / float64(t.TargetWordCount)
	if section.WordCount < t.MinWordCount {
		issues = append(issues, fmt.Sprintf("Insufficient depth: %d words (minimum: %d)", section.WordCount, t.MinWordCount))
	}

	citationScore := section.CitationDensity()
	if citationScore < t.MinCitationDensity {
		issues = append(issues, fmt.Sprintf(
			"Insufficient citations: %d citations for %d words (target: ≥%.1f)",
			len(section.CitationsUsed), section.WordCount, t.MinCitationDensity*float64(section.WordCount)))
	}

	redundancyScore := 0.0
	if len(previousSections) > 0 {
		redundancyScore = checkRedundancy(section, previousSections)
		if redundancyScore > t.MaxRedundancy {
			issues = append(issues, fmt.Sprintf(
				"High redundancy: %.0f%% similarity with previous sections (threshold: %.0f%%)",
				redundancyScore*100, t.MaxRedundancy*100))
		}
	}

	coherenceScore := checkCoherence(section.Content)
	if coherenceScore < t.MinCoherence {
		issues = append(issues, "Poor coherence: Section appears to be placeholder or error content")
	}

	result := domain.ValidationResult{
		IsValid:         len(issues) == 0,
		SectionID:       section.SectionID(),
		Issues:          issues,
		DepthScore:      depthScore,
		CitationScore:   citationScore,
		RedundancyScore: redundancyScore,
		CoherenceScore:  coherenceScore,
	}

	if result.IsValid {
		logger.Info(fmt.Sprintf("section %s passed validation", result.SectionID))
	} else {
		logger.Warn(fmt.Sprintf("section %s failed validation with %d issues", result.SectionID, len(issues)))
	}

	return result
}

// ShouldRegenerate reports whether another generation attempt should be
// made, and if so the guidance to steer it. Validation passes, or attempt
// having reached maxAttempts, both short-circuit to no regeneration.
func (v *Validator) ShouldRegenerate(result domain.ValidationResult, attempt, maxAttempts int) (bool, string) {
	return result.ShouldRegenerate(attempt, maxAttempts)
}

// checkRedundancy computes the Jaccard similarity between section's content
// and the most similar of previousSections, word-set based and
// case-insensitive.
func checkRedundancy(section domain.GeneratedSection, previousSections []domain.GeneratedSection) float64 {
	currentWords := wordSet(section.Content)

	maxOverlap := 0.0
	for _, prev := range previousSections {
		prevWords := wordSet(prev.Content)
		similarity := jaccard(currentWords, prevWords)
		if similarity > maxOverlap {
			maxOverlap = similarity
		}
	}
	return maxOverlap
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// checkCoherence returns 0.0 if content matches a known error/placeholder
// marker, 0.5 if it lacks minimal paragraph/sentence structure, else 1.0.
func checkCoherence(content string) float64 {
	lower := strings.ToLower(content)

	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return 0.0
		}
	}

	hasParagraphs := strings.Contains(content, "\n\n") || strings.Contains(content, "\n")
	hasSentences := strings.Contains(content, ". ") || strings.Contains(content, ".\n")

	if !(hasParagraphs && hasSentences) {
		return 0.5
	}
	return 1.0
}
