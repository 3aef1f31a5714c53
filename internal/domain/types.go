// Package domain holds the shared data model for the research pipeline:
// report structure, generated sections, context summaries, and validation
// results. These types are owned exclusively by the pipeline instance that
// creates them; nothing here is shared across concurrent requests.
package domain

import (
	"fmt"
	"strings"
)

// HistoryEntry is a narrative breadcrumb or a Q&A record appended to a
// ResearchState as the iterative loop progresses.
type HistoryEntry struct {
	Description string
	Query       string
	Answer      string
}

// HasQA reports whether this entry carries a completed question/answer pair.
func (h HistoryEntry) HasQA() bool {
	return h.Query != "" && h.Answer != ""
}

// ResearchState is the mutable state of one in-flight research request. It
// is created at entry and discarded after the final event; never shared
// between pipelines.
type ResearchState struct {
	Query         string
	Plan          string
	Draft         string
	History       []HistoryEntry
	Citations     []string
	IntermediateLog []string
}

// AppendLog appends a human-readable breadcrumb to the intermediate log.
func (s *ResearchState) AppendLog(description string) {
	s.IntermediateLog = append(s.IntermediateLog, description)
}

// AppendQA records a completed query/answer round and accumulates citations.
func (s *ResearchState) AppendQA(description, query, answer string, citations []string) {
	s.History = append(s.History, HistoryEntry{Description: description, Query: query, Answer: answer})
	s.Citations = append(s.Citations, citations...)
	s.AppendLog(description)
}

// QAHistory returns only the entries that carry a completed query/answer pair.
func (s *ResearchState) QAHistory() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(s.History))
	for _, h := range s.History {
		if h.HasQA() {
			out = append(out, h)
		}
	}
	return out
}

// SectionSpec describes one section of the report to be generated. The
// executive summary uses chapter 0; the conclusion uses chapter = numChapters+1.
type SectionSpec struct {
	Title           string
	ChapterNumber   int
	SectionNumber   int
	Perspective     string
	Guidance        string
	TargetWordCount int
	MaxOutputTokens int
}

// FullID returns the "<chapter>.<section>" identifier used throughout the report.
func (s SectionSpec) FullID() string {
	return fmt.Sprintf("%d.%d", s.ChapterNumber, s.SectionNumber)
}

// DefaultSectionSpec fills in the spec.md §3 defaults (targetWordCount=350, maxOutputTokens=2048).
func DefaultSectionSpec(title string, chapter, section int, perspective, guidance string) SectionSpec {
	return SectionSpec{
		Title:           title,
		ChapterNumber:   chapter,
		SectionNumber:   section,
		Perspective:     perspective,
		Guidance:        guidance,
		TargetWordCount: 350,
		MaxOutputTokens: 2048,
	}
}

// Chapter groups ordered sections under one perspective. The section count
// is not enforced here: the structure prompt asks for 3-5 sections, while
// structure.DefaultStructure uses 2 per chapter.
type Chapter struct {
	ChapterNumber int
	Title         string
	Perspective   string
	Sections      []SectionSpec
}

// TotalTargetWords sums the target word counts of every section in the chapter.
func (c Chapter) TotalTargetWords() int {
	total := 0
	for _, s := range c.Sections {
		total += s.TargetWordCount
	}
	return total
}

// ReportStructure is the immutable multi-chapter outline produced after the
// iterative research loop and consumed by section generation.
type ReportStructure struct {
	ExecutiveSummary  SectionSpec
	Chapters          []Chapter
	Conclusion        SectionSpec
	EstimatedWordCount int
}

// TotalSections returns 2 (executive summary + conclusion) plus the sum of
// every chapter's section count.
func (r ReportStructure) TotalSections() int {
	total := 2
	for _, c := range r.Chapters {
		total += len(c.Sections)
	}
	return total
}

// AllSections returns every SectionSpec in report order: executive summary,
// then each chapter's sections in order, then the conclusion.
func (r ReportStructure) AllSections() []SectionSpec {
	out := make([]SectionSpec, 0, r.TotalSections())
	out = append(out, r.ExecutiveSummary)
	for _, c := range r.Chapters {
		out = append(out, c.Sections...)
	}
	out = append(out, r.Conclusion)
	return out
}

// GeneratedSection is the output of section generation: content plus
// extracted metadata used by the validator and the assembler.
type GeneratedSection struct {
	Spec                 SectionSpec
	Content              string
	WordCount            int
	CitationsUsed        []string
	GenerationTimeSeconds float64
	Summary              string
}

// SectionID returns the owning SectionSpec's full id.
func (g GeneratedSection) SectionID() string {
	return g.Spec.FullID()
}

// CitationDensity is (len(citationsUsed) / wordCount) * 150, or 0 when wordCount is 0.
func (g GeneratedSection) CitationDensity() float64 {
	if g.WordCount == 0 {
		return 0
	}
	return (float64(len(g.CitationsUsed)) / float64(g.WordCount)) * 150
}

// ContextSummary is the compressed context fed into the next section's prompt.
type ContextSummary struct {
	KeyInsights        []string
	PreviousSections   []string
	ResearchHighlights string
	TotalTokens        int
}

// IsWithinBudget reports whether TotalTokens is within the given budget (default 8000).
func (c ContextSummary) IsWithinBudget(budget int) bool {
	if budget <= 0 {
		budget = 8000
	}
	return c.TotalTokens <= budget
}

// ValidationResult is the outcome of running the quality validator against
// a freshly generated section.
type ValidationResult struct {
	IsValid         bool
	SectionID       string
	Issues          []string
	DepthScore      float64
	CitationScore   float64
	RedundancyScore float64
	CoherenceScore  float64
}

// ShouldRegenerate decides whether another generation attempt should be made.
func (v ValidationResult) ShouldRegenerate(attempt, maxAttempts int) (bool, string) {
	if attempt >= maxAttempts || v.IsValid {
		return false, ""
	}
	return true, v.RegenerationGuidance()
}

// RegenerationGuidance renders the literal guidance line plus bullet-prefixed issues.
func (v ValidationResult) RegenerationGuidance() string {
	var sb strings.Builder
	sb.WriteString("Address the following issues in regeneration:")
	for _, issue := range v.Issues {
		sb.WriteString("\n- ")
		sb.WriteString(issue)
	}
	return sb.String()
}

// ProgressEvent is the wire shape described in spec.md §6, produced by the
// pipeline and consumed by the Streaming Conductor.
type ProgressEvent struct {
	IntermediateSteps *string
	FinalReport       *string
	IsIntermediate    bool
	Citations         []string
	Complete          bool
	Error             string
}
