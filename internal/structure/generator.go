// Package structure generates a multi-chapter report outline from the
// research plan and accumulated findings, assigning one analytical
// perspective per chapter.
package structure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

// StandardPerspectives are the six analytical lenses chapters are drawn from.
var StandardPerspectives = []string{
	"Financial/Economic",
	"Technical/Operational",
	"Regulatory/Legal",
	"Strategic/Competitive",
	"Risk/Challenge",
	"Market/Industry",
}

const structuringSystemPrompt = "You are a research report structuring expert. Output valid JSON only."

const structureGenerationPrompt = `You are a research report structuring expert. Your task is to analyze a user query and create a comprehensive report structure with multiple analytical perspectives.

**User Query:**
%s

**Research Plan:**
%s

**Research Summary:**
%s

Based on the query complexity and research scope, create a structured report outline that:

1. **Executive Summary**: High-level synthesis (1 section, ~400 words)

2. **Main Chapters** (4-6 chapters):
   - Each chapter should address ONE major analytical perspective
   - Relevant perspectives: Financial/Economic, Technical/Operational, Regulatory/Legal, Strategic/Competitive, Risk/Challenge, Market/Industry
   - Choose 4-6 most relevant perspectives based on query focus

3. **Chapter Sections** (3-5 sections per chapter):
   - Each section should drill into a specific aspect within the chapter's perspective
   - Target: 300-500 words per section for detailed analysis
   - Provide clear guidance on what each section should cover

4. **Conclusion**: Forward-looking synthesis and implications (1 section, ~400 words)

**Guidelines:**
- Simple queries (single aspect): 2-3 chapters
- Moderate queries (2-3 aspects): 4-5 chapters
- Complex queries (4+ aspects): 5-7 chapters
- Each section must add unique value (no redundancy)
- Sections should build logically within chapters
- Total report target: 2,500-4,000 words

**Output Format (JSON):**
{
  "executive_summary": {
    "title": "Executive Summary",
    "guidance": "High-level synthesis covering all key perspectives and findings"
  },
  "chapters": [
    {
      "title": "Chapter Title",
      "perspective": "Primary Perspective (e.g., Financial/Economic)",
      "sections": [
        {
          "title": "Section Title",
          "guidance": "Specific focus and key points to cover",
          "target_word_count": 350
        }
      ]
    }
  ],
  "conclusion": {
    "title": "Conclusion and Implications",
    "guidance": "Forward-looking synthesis, recommendations, future outlook"
  }
}

Generate the report structure now.`

type outlineJSON struct {
	ExecutiveSummary struct {
		Title    string `json:"title"`
		Guidance string `json:"guidance"`
	} `json:"executive_summary"`
	Chapters []struct {
		Title       string `json:"title"`
		Perspective string `json:"perspective"`
		Sections    []struct {
			Title           string `json:"title"`
			Guidance        string `json:"guidance"`
			TargetWordCount int    `json:"target_word_count"`
		} `json:"sections"`
	} `json:"chapters"`
	Conclusion struct {
		Title    string `json:"title"`
		Guidance string `json:"guidance"`
	} `json:"conclusion"`
}

// Generator produces ReportStructures from research context.
type Generator struct {
	client *provider.Client
}

// New creates a Generator backed by client.
func New(client *provider.Client) *Generator {
	return &Generator{client: client}
}

// GenerateChapterOutline asks the model for a JSON chapter outline and
// builds a domain.ReportStructure from it, falling back to a fixed
// three-chapter default structure only when the response cannot be parsed
// as JSON. A provider failure on the call itself propagates.
func (g *Generator) GenerateChapterOutline(ctx context.Context, query, plan, researchSummary string) (domain.ReportStructure, error) {
	prompt := fmt.Sprintf(structureGenerationPrompt, query, plan, researchSummary)

	response, err := g.client.Complete(ctx, prompt, provider.CompletionOptions{SystemPrompt: structuringSystemPrompt})
	if err != nil {
		return domain.ReportStructure{}, fmt.Errorf("structure generation call: %w", err)
	}

	var outline outlineJSON
	if err := json.Unmarshal([]byte(provider.StripCodeFence(response)), &outline); err != nil {
		logger.Warn("failed to parse structure generation response, using default structure: " + err.Error())
		return DefaultStructure(), nil
	}

	return buildReportStructure(outline), nil
}

func buildReportStructure(outline outlineJSON) domain.ReportStructure {
	executiveSummary := domain.SectionSpec{
		Title:           outline.ExecutiveSummary.Title,
		ChapterNumber:   0,
		SectionNumber:   1,
		Perspective:     "Executive Summary",
		Guidance:        outline.ExecutiveSummary.Guidance,
		TargetWordCount: 400,
	}

	chapters := make([]domain.Chapter, 0, len(outline.Chapters))
	for chIdx, ch := range outline.Chapters {
		chapterNumber := chIdx + 1
		sections := make([]domain.SectionSpec, 0, len(ch.Sections))
		for secIdx, sec := range ch.Sections {
			wordCount := sec.TargetWordCount
			if wordCount == 0 {
				wordCount = 350
			}
			sections = append(sections, domain.SectionSpec{
				Title:           sec.Title,
				ChapterNumber:   chapterNumber,
				SectionNumber:   secIdx + 1,
				Perspective:     ch.Perspective,
				Guidance:        sec.Guidance,
				TargetWordCount: wordCount,
				MaxOutputTokens: 2048,
			})
		}
		chapters = append(chapters, domain.Chapter{
			ChapterNumber: chapterNumber,
			Title:         ch.Title,
			Perspective:   ch.Perspective,
			Sections:      sections,
		})
	}

	conclusion := domain.SectionSpec{
		Title:           outline.Conclusion.Title,
		ChapterNumber:   len(chapters) + 1,
		SectionNumber:   1,
		Perspective:     "Conclusion",
		Guidance:        outline.Conclusion.Guidance,
		TargetWordCount: 400,
	}

	estimatedWords := 400 + 400
	for _, c := range chapters {
		estimatedWords += c.TotalTargetWords()
	}

	return domain.ReportStructure{
		ExecutiveSummary:   executiveSummary,
		Chapters:           chapters,
		Conclusion:         conclusion,
		EstimatedWordCount: estimatedWords,
	}
}

// DefaultStructure is the fixed three-chapter fallback used when structure
// generation fails to produce parseable JSON.
func DefaultStructure() domain.ReportStructure {
	executiveSummary := domain.SectionSpec{
		Title:           "Executive Summary",
		ChapterNumber:   0,
		SectionNumber:   1,
		Perspective:     "Executive Summary",
		Guidance:        "Provide high-level synthesis of key findings",
		TargetWordCount: 400,
	}

	chapters := []domain.Chapter{
		{
			ChapterNumber: 1,
			Title:         "Background and Context",
			Perspective:   "General Analysis",
			Sections: []domain.SectionSpec{
				{Title: "Overview", ChapterNumber: 1, SectionNumber: 1, Perspective: "General Analysis", Guidance: "Provide context and background", TargetWordCount: 350, MaxOutputTokens: 2048},
				{Title: "Key Details", ChapterNumber: 1, SectionNumber: 2, Perspective: "General Analysis", Guidance: "Present essential facts and details", TargetWordCount: 350, MaxOutputTokens: 2048},
			},
		},
		{
			ChapterNumber: 2,
			Title:         "Analysis and Implications",
			Perspective:   "Strategic Analysis",
			Sections: []domain.SectionSpec{
				{Title: "Primary Analysis", ChapterNumber: 2, SectionNumber: 1, Perspective: "Strategic Analysis", Guidance: "Analyze main implications", TargetWordCount: 350, MaxOutputTokens: 2048},
				{Title: "Secondary Considerations", ChapterNumber: 2, SectionNumber: 2, Perspective: "Strategic Analysis", Guidance: "Explore additional factors", TargetWordCount: 350, MaxOutputTokens: 2048},
			},
		},
		{
			ChapterNumber: 3,
			Title:         "Future Outlook",
			Perspective:   "Forward-Looking",
			Sections: []domain.SectionSpec{
				{Title: "Expected Developments", ChapterNumber: 3, SectionNumber: 1, Perspective: "Forward-Looking", Guidance: "Discuss future trajectories", TargetWordCount: 350, MaxOutputTokens: 2048},
				{Title: "Potential Scenarios", ChapterNumber: 3, SectionNumber: 2, Perspective: "Forward-Looking", Guidance: "Consider alternative outcomes", TargetWordCount: 350, MaxOutputTokens: 2048},
			},
		},
	}

	conclusion := domain.SectionSpec{
		Title:           "Conclusion",
		ChapterNumber:   4,
		SectionNumber:   1,
		Perspective:     "Conclusion",
		Guidance:        "Synthesize findings and provide recommendations",
		TargetWordCount: 400,
	}

	estimatedWords := 400 + 400
	for _, c := range chapters {
		estimatedWords += c.TotalTargetWords()
	}

	return domain.ReportStructure{
		ExecutiveSummary:   executiveSummary,
		Chapters:           chapters,
		Conclusion:         conclusion,
		EstimatedWordCount: estimatedWords,
	}
}
