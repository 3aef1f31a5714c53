package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryEntryHasQA(t *testing.T) {
	assert.True(t, HistoryEntry{Query: "q", Answer: "a"}.HasQA())
	assert.False(t, HistoryEntry{Query: "q"}.HasQA())
	assert.False(t, HistoryEntry{Answer: "a"}.HasQA())
	assert.False(t, HistoryEntry{}.HasQA())
}

func TestResearchStateAppendQATracksHistoryCitationsAndLog(t *testing.T) {
	s := &ResearchState{Query: "topic"}
	s.AppendQA("searched for X", "what is X", "X is this", []string{"Source 1", "Source 2"})

	assert.Equal(t, []string{"Source 1", "Source 2"}, s.Citations)
	assert.Equal(t, []string{"searched for X"}, s.IntermediateLog)
	assert.Len(t, s.QAHistory(), 1)
	assert.Equal(t, "what is X", s.QAHistory()[0].Query)
}

func TestResearchStateQAHistoryFiltersIncompleteEntries(t *testing.T) {
	s := &ResearchState{}
	s.AppendLog("just a note")
	s.AppendQA("a completed round", "q", "a", nil)
	assert.Len(t, s.History, 2)
	assert.Len(t, s.QAHistory(), 1)
}

func TestSectionSpecFullID(t *testing.T) {
	assert.Equal(t, "2.3", SectionSpec{ChapterNumber: 2, SectionNumber: 3}.FullID())
}

func TestDefaultSectionSpecAppliesDefaults(t *testing.T) {
	s := DefaultSectionSpec("Title", 1, 2, "skeptic", "guidance")
	assert.Equal(t, 350, s.TargetWordCount)
	assert.Equal(t, 2048, s.MaxOutputTokens)
	assert.Equal(t, "1.2", s.FullID())
}

func TestChapterTotalTargetWords(t *testing.T) {
	c := Chapter{Sections: []SectionSpec{{TargetWordCount: 300}, {TargetWordCount: 400}}}
	assert.Equal(t, 700, c.TotalTargetWords())
}

func TestReportStructureTotalAndAllSections(t *testing.T) {
	r := ReportStructure{
		ExecutiveSummary: SectionSpec{Title: "Exec"},
		Chapters: []Chapter{
			{Sections: []SectionSpec{{Title: "A"}, {Title: "B"}}},
			{Sections: []SectionSpec{{Title: "C"}}},
		},
		Conclusion: SectionSpec{Title: "Conclusion"},
	}

	assert.Equal(t, 5, r.TotalSections())
	all := r.AllSections()
	assert.Len(t, all, 5)
	assert.Equal(t, "Exec", all[0].Title)
	assert.Equal(t, "A", all[1].Title)
	assert.Equal(t, "B", all[2].Title)
	assert.Equal(t, "C", all[3].Title)
	assert.Equal(t, "Conclusion", all[4].Title)
}

func TestGeneratedSectionSectionIDAndCitationDensity(t *testing.T) {
	g := GeneratedSection{Spec: SectionSpec{ChapterNumber: 1, SectionNumber: 1}, WordCount: 300, CitationsUsed: []string{"Source 1", "Source 2"}}
	assert.Equal(t, "1.1", g.SectionID())
	assert.InDelta(t, 1.0, g.CitationDensity(), 0.0001)

	assert.Equal(t, 0.0, GeneratedSection{WordCount: 0}.CitationDensity())
}

func TestContextSummaryIsWithinBudget(t *testing.T) {
	assert.True(t, ContextSummary{TotalTokens: 100}.IsWithinBudget(200))
	assert.False(t, ContextSummary{TotalTokens: 9000}.IsWithinBudget(8000))
	assert.True(t, ContextSummary{TotalTokens: 8000}.IsWithinBudget(0), "zero budget falls back to 8000 default")
	assert.False(t, ContextSummary{TotalTokens: 8001}.IsWithinBudget(-1), "negative budget falls back to 8000 default")
}

func TestValidationResultShouldRegenerate(t *testing.T) {
	invalid := ValidationResult{IsValid: false, Issues: []string{"Insufficient depth"}}
	should, guidance := invalid.ShouldRegenerate(0, 2)
	assert.True(t, should)
	assert.Contains(t, guidance, "Insufficient depth")

	should, guidance = invalid.ShouldRegenerate(2, 2)
	assert.False(t, should)
	assert.Empty(t, guidance)

	valid := ValidationResult{IsValid: true}
	should, _ = valid.ShouldRegenerate(0, 2)
	assert.False(t, should)
}

func TestValidationResultRegenerationGuidanceListsIssues(t *testing.T) {
	v := ValidationResult{Issues: []string{"Insufficient depth", "High redundancy"}}
	guidance := v.RegenerationGuidance()
	assert.Contains(t, guidance, "Address the following issues in regeneration:")
	assert.Contains(t, guidance, "- Insufficient depth")
	assert.Contains(t, guidance, "- High redundancy")
}
