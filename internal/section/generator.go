// Package section generates individual report sections — including the
// executive summary and conclusion — with context-aware prompts and
// citation extraction.
package section

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kokodak/ttd-dr/internal/ctxmgr"
	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

const writerSystemPrompt = "You are a detailed research report writer. Write comprehensive, well-cited sections."
const execSummarySystemPrompt = "You are an executive summary writer. Provide clear, high-level syntheses."
const conclusionSystemPrompt = "You are a report conclusion writer. Synthesize findings and provide forward-looking analysis."

const sectionGenerationPrompt = `You are writing a specific section of a comprehensive research report.

**Current Section:** %s (Section %s)
**Chapter:** Chapter %d
**Perspective:** %s
**Target Length:** %d words

**Section Guidance:**
%s

**Context from Previous Work:**
%s

**Research Data Available:**
%s

**Instructions:**
1. Write a detailed, well-researched section of %d words
2. Build on insights from previous sections (avoid redundancy)
3. Use inline citations in format [Source N] for all factual claims
4. Provide specific details, data, and analysis
5. Maintain coherent narrative flow with previous sections
6. Stay within %d output tokens

**Write the section now:**`

const executiveSummaryPromptTemplate = `Write a comprehensive Executive Summary for the following research report.

**User Query:**
%s

**Report Structure:**
%s

**Research Data:**
%s

**Instructions:**
1. Provide high-level synthesis covering all major perspectives
2. Highlight 3-5 key findings across all chapters
3. Target length: 400 words
4. Include inline citations [Source N] for major claims
5. Set clear expectations for what the report covers

**Executive Summary:**`

const conclusionPromptTemplate = `Write a comprehensive Conclusion for the following research report.

**User Query:**
%s

**Report Sections Summary:**
%s

**Instructions:**
1. Synthesize findings from all previous sections
2. Provide forward-looking implications and recommendations
3. Discuss potential future developments or scenarios
4. Target length: 400 words
5. Include inline citations [Source N] where appropriate
6. End with clear takeaways

**Conclusion:**`

var citationPattern = regexp.MustCompile(`\[(?:Source\s+)?(\d+)\]`)

// Generator produces GeneratedSections from a SectionSpec and its context.
type Generator struct {
	client *provider.Client
}

// New creates a Generator backed by client.
func New(client *provider.Client) *Generator {
	return &Generator{client: client}
}

// GenerateSection writes one section, optionally steered by
// regenerationGuidance from a failed quality validation pass. On LLM
// failure it returns a labeled placeholder section rather than erroring, so
// the pipeline can continue assembling the rest of the report.
func (g *Generator) GenerateSection(ctx context.Context, spec domain.SectionSpec, contextSummary domain.ContextSummary, researchData, regenerationGuidance string) domain.GeneratedSection {
	start := time.Now()

	guidance := spec.Guidance
	if regenerationGuidance != "" {
		guidance = guidance + "\n\nREGENERATION GUIDANCE:\n" + regenerationGuidance
	}

	prompt := fmt.Sprintf(sectionGenerationPrompt,
		spec.Title, spec.FullID(), spec.ChapterNumber, spec.Perspective, spec.TargetWordCount,
		guidance, ctxmgr.FormatContextForPrompt(contextSummary), truncateChars(researchData, 3000),
		spec.TargetWordCount, spec.MaxOutputTokens)

	content, err := g.client.Complete(ctx, prompt, provider.CompletionOptions{SystemPrompt: writerSystemPrompt})
	if err != nil {
		logger.Error(fmt.Sprintf("failed to generate section %s: %v", spec.FullID(), err))
		return fallbackSection(spec, fmt.Sprintf(
			"# %s\n\n[Content generation failed for this section. Error: %v]\n\nThis section was intended to cover: %s",
			spec.Title, err, spec.Guidance), start)
	}

	return domain.GeneratedSection{
		Spec:                  spec,
		Content:               content,
		WordCount:             wordCount(content),
		CitationsUsed:         extractCitations(content),
		GenerationTimeSeconds: time.Since(start).Seconds(),
	}
}

// GenerateExecutiveSummary writes the report's executive summary section.
func (g *Generator) GenerateExecutiveSummary(ctx context.Context, structure domain.ReportStructure, query, researchData string) domain.GeneratedSection {
	start := time.Now()
	outline := formatReportOutline(structure)
	prompt := fmt.Sprintf(executiveSummaryPromptTemplate, query, outline, truncateChars(researchData, 3000))

	content, err := g.client.Complete(ctx, prompt, provider.CompletionOptions{SystemPrompt: execSummarySystemPrompt})
	if err != nil {
		logger.Error("failed to generate executive summary: " + err.Error())
		return fallbackSection(structure.ExecutiveSummary,
			fmt.Sprintf("# Executive Summary\n\n[Executive summary generation failed. Error: %v]", err), start)
	}

	return domain.GeneratedSection{
		Spec:                  structure.ExecutiveSummary,
		Content:               content,
		WordCount:             wordCount(content),
		CitationsUsed:         extractCitations(content),
		GenerationTimeSeconds: time.Since(start).Seconds(),
	}
}

// GenerateConclusion writes the report's closing synthesis section.
func (g *Generator) GenerateConclusion(ctx context.Context, structure domain.ReportStructure, sections []domain.GeneratedSection, query string) domain.GeneratedSection {
	start := time.Now()
	summary := buildSectionsSummary(sections)
	prompt := fmt.Sprintf(conclusionPromptTemplate, query, summary)

	content, err := g.client.Complete(ctx, prompt, provider.CompletionOptions{SystemPrompt: conclusionSystemPrompt})
	if err != nil {
		logger.Error("failed to generate conclusion: " + err.Error())
		return fallbackSection(structure.Conclusion,
			fmt.Sprintf("# Conclusion\n\n[Conclusion generation failed. Error: %v]", err), start)
	}

	return domain.GeneratedSection{
		Spec:                  structure.Conclusion,
		Content:               content,
		WordCount:             wordCount(content),
		CitationsUsed:         extractCitations(content),
		GenerationTimeSeconds: time.Since(start).Seconds(),
	}
}

func fallbackSection(spec domain.SectionSpec, content string, start time.Time) domain.GeneratedSection {
	return domain.GeneratedSection{
		Spec:                  spec,
		Content:               content,
		WordCount:             wordCount(content),
		GenerationTimeSeconds: time.Since(start).Seconds(),
	}
}

func extractCitations(content string) []string {
	matches := citationPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		seen["Source "+m[1]] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, _ := strconv.Atoi(strings.TrimPrefix(out[i], "Source "))
		nj, _ := strconv.Atoi(strings.TrimPrefix(out[j], "Source "))
		return ni < nj
	})
	return out
}

func formatReportOutline(structure domain.ReportStructure) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total Sections: %d\n", structure.TotalSections())
	for _, chapter := range structure.Chapters {
		fmt.Fprintf(&sb, "\nChapter %d: %s (%s)\n", chapter.ChapterNumber, chapter.Title, chapter.Perspective)
		for _, s := range chapter.Sections {
			fmt.Fprintf(&sb, "  - Section %s: %s\n", s.FullID(), s.Title)
		}
	}
	return sb.String()
}

func buildSectionsSummary(sections []domain.GeneratedSection) string {
	summaries := make([]string, 0, len(sections))
	for _, s := range sections {
		text := s.Summary
		if text == "" {
			text = firstWords(s.Content, 100)
		}
		summaries = append(summaries, fmt.Sprintf("[%s] %s:\n%s", s.SectionID(), s.Spec.Title, text))
	}
	return strings.Join(summaries, "\n\n")
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}

func truncateChars(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}
