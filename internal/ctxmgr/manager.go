// Package ctxmgr builds the bounded context fed into each section
// generation prompt: a sliding window of recent sections in full detail,
// older sections compressed to summaries, plus cross-section key insights.
package ctxmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

const (
	tokensPerWord       = 1.3
	defaultMaxBudget    = 8000
	defaultSlidingWindow = 5
	maxInsights         = 10
	insightExtractionWordLimit = 3000
)

const compressionSystemPrompt = "You are a concise summarization expert. Output summaries only."

const compressionPromptTemplate = `Compress the following report section into a concise summary of ≤200 tokens (~150 words).

**Section:** %s (%s)
**Perspective:** %s
**Word Count:** %d words

**Full Content:**
%s

**Instructions:**
1. Extract 3-5 key insights or findings
2. Preserve critical facts, numbers, and citations
3. Remove verbose explanations and redundant content
4. Maintain technical accuracy
5. Target length: 150 words (≤200 tokens)

**Compressed Summary:**`

const keyInsightsSystemPrompt = "You are an insight extraction expert. Output numbered lists only."

const keyInsightsPromptTemplate = `Extract the top 10 most important insights from the following report sections.

**Report Sections:**
%s

**Instructions:**
1. Identify the 10 most critical findings, facts, or insights
2. Each insight should be 1-2 sentences
3. Prioritize unique, actionable, or high-impact information
4. Avoid redundancy between insights
5. Maintain factual accuracy

**Output Format:**
1. [First key insight]
2. [Second key insight]
...
10. [Tenth key insight]

**Top 10 Key Insights:**`

// Manager builds ContextSummary values for section generation.
type Manager struct {
	client       *provider.Client
	slidingWindow int
	maxBudget    int
}

// Config configures a Manager.
type Config struct {
	SlidingWindow int
	MaxBudget     int
}

// New creates a Manager backed by client.
func New(client *provider.Client, cfg Config) *Manager {
	window := cfg.SlidingWindow
	if window <= 0 {
		window = defaultSlidingWindow
	}
	budget := cfg.MaxBudget
	if budget <= 0 {
		budget = defaultMaxBudget
	}
	return &Manager{client: client, slidingWindow: window, maxBudget: budget}
}

// CompressSectionToSummary compresses a generated section to a ~150 word
// summary, falling back to a simple truncation if the compression call fails.
func (m *Manager) CompressSectionToSummary(ctx context.Context, section domain.GeneratedSection) string {
	prompt := fmt.Sprintf(compressionPromptTemplate,
		section.Spec.Title, section.SectionID(), section.Spec.Perspective, section.WordCount, section.Content)

	summary, err := m.client.Complete(ctx, prompt, provider.CompletionOptions{SystemPrompt: compressionSystemPrompt})
	if err != nil {
		logger.Warn(fmt.Sprintf("compression failed for %s: %v", section.SectionID(), err))
		return truncateWords(section.Content, 150) + "..."
	}
	return summary
}

// BuildGenerationContext assembles the bounded context for the next section:
// a sliding window of recent sections in full, older ones compressed, plus
// cross-section key insights and truncated research highlights.
func (m *Manager) BuildGenerationContext(ctx context.Context, generated []domain.GeneratedSection, researchHighlights string) domain.ContextSummary {
	if len(generated) == 0 {
		truncated := truncateChars(researchHighlights, 1000)
		return domain.ContextSummary{
			ResearchHighlights: truncated,
			TotalTokens:        estimateTokens(truncated),
		}
	}

	splitAt := len(generated) - m.slidingWindow
	if splitAt < 0 {
		splitAt = 0
	}
	older := generated[:splitAt]
	recent := generated[splitAt:]

	var previousSections []string
	for _, section := range older {
		summary := section.Summary
		if summary == "" {
			summary = m.CompressSectionToSummary(ctx, section)
		}
		previousSections = append(previousSections, fmt.Sprintf("[%s] %s: %s", section.SectionID(), section.Spec.Title, summary))
	}
	for _, section := range recent {
		previousSections = append(previousSections, fmt.Sprintf("[%s] %s (Full):\n%s", section.SectionID(), section.Spec.Title, section.Content))
	}

	keyInsights := m.extractKeyInsights(ctx, generated)
	truncatedHighlights := truncateChars(researchHighlights, 2000)

	totalTokens := 0
	for _, insight := range keyInsights {
		totalTokens += estimateTokens(insight)
	}
	for _, section := range previousSections {
		totalTokens += estimateTokens(section)
	}
	totalTokens += estimateTokens(truncatedHighlights)

	summary := domain.ContextSummary{
		KeyInsights:        keyInsights,
		PreviousSections:   previousSections,
		ResearchHighlights: truncatedHighlights,
		TotalTokens:        totalTokens,
	}

	if !summary.IsWithinBudget(m.maxBudget) {
		logger.Warn(fmt.Sprintf("context exceeds budget: %d > %d tokens", summary.TotalTokens, m.maxBudget))
	}

	return summary
}

func (m *Manager) extractKeyInsights(ctx context.Context, sections []domain.GeneratedSection) []string {
	if len(sections) == 0 {
		return nil
	}

	var parts []string
	for _, section := range sections {
		if section.Summary != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s: %s", section.SectionID(), section.Spec.Title, section.Summary))
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", section.SectionID(), section.Spec.Title, truncateWords(section.Content, 200)))
	}
	combined := strings.Join(parts, "\n\n")
	combined = truncateWordsWithEllipsis(combined, insightExtractionWordLimit)

	prompt := fmt.Sprintf(keyInsightsPromptTemplate, combined)
	response, err := m.client.Complete(ctx, prompt, provider.CompletionOptions{SystemPrompt: keyInsightsSystemPrompt})
	if err != nil {
		logger.Warn("failed to extract key insights: " + err.Error())
		return nil
	}

	var insights []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !startsWithDigitOrDash(line) {
			continue
		}
		insight := line
		if idx := strings.Index(line, "."); idx != -1 {
			insight = line[idx+1:]
		}
		insight = strings.TrimSpace(strings.TrimLeft(insight, "- "))
		if insight != "" {
			insights = append(insights, insight)
		}
		if len(insights) >= maxInsights {
			break
		}
	}
	return insights
}

// FormatContextForPrompt renders a ContextSummary into the prompt-ready
// string layout used by the section generator.
func FormatContextForPrompt(summary domain.ContextSummary) string {
	var parts []string

	if len(summary.KeyInsights) > 0 {
		parts = append(parts, "**Key Insights from Previous Sections:**")
		for i, insight := range summary.KeyInsights {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, insight))
		}
		parts = append(parts, "")
	}

	if len(summary.PreviousSections) > 0 {
		parts = append(parts, "**Previous Sections:**")
		for _, section := range summary.PreviousSections {
			parts = append(parts, section, "")
		}
	}

	if summary.ResearchHighlights != "" {
		parts = append(parts, "**Research Findings:**", summary.ResearchHighlights)
	}

	return strings.Join(parts, "\n")
}

func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * tokensPerWord)
}

func truncateChars(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}

func truncateWordsWithEllipsis(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "..."
}

func startsWithDigitOrDash(line string) bool {
	if line == "" {
		return false
	}
	c := line[0]
	return (c >= '0' && c <= '9') || c == '-'
}
