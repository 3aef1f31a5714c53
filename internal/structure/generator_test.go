package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStructureHasThreeChaptersAndConclusionAfter(t *testing.T) {
	s := DefaultStructure()

	assert.Len(t, s.Chapters, 3)
	assert.Equal(t, "Executive Summary", s.ExecutiveSummary.Title)
	assert.Equal(t, 4, s.Conclusion.ChapterNumber)
	assert.Equal(t, 2100+400+400, s.EstimatedWordCount)
	assert.Equal(t, 8, s.TotalSections())
}

func TestBuildReportStructureFillsDefaultWordCountAndNumbering(t *testing.T) {
	var outline outlineJSON
	outline.ExecutiveSummary.Title = "Exec"
	outline.ExecutiveSummary.Guidance = "synthesize"
	outline.Conclusion.Title = "Wrap Up"
	outline.Conclusion.Guidance = "close out"
	outline.Chapters = []struct {
		Title       string `json:"title"`
		Perspective string `json:"perspective"`
		Sections    []struct {
			Title           string `json:"title"`
			Guidance        string `json:"guidance"`
			TargetWordCount int    `json:"target_word_count"`
		} `json:"sections"`
	}{
		{
			Title:       "Chapter One",
			Perspective: "Financial/Economic",
			Sections: []struct {
				Title           string `json:"title"`
				Guidance        string `json:"guidance"`
				TargetWordCount int    `json:"target_word_count"`
			}{
				{Title: "Section A", Guidance: "cover A", TargetWordCount: 0},
				{Title: "Section B", Guidance: "cover B", TargetWordCount: 500},
			},
		},
	}

	got := buildReportStructure(outline)

	assert.Equal(t, "Exec", got.ExecutiveSummary.Title)
	assert.Equal(t, 0, got.ExecutiveSummary.ChapterNumber)
	assert.Len(t, got.Chapters, 1)
	assert.Equal(t, 1, got.Chapters[0].ChapterNumber)
	assert.Equal(t, "Financial/Economic", got.Chapters[0].Perspective)
	assert.Equal(t, 350, got.Chapters[0].Sections[0].TargetWordCount)
	assert.Equal(t, 500, got.Chapters[0].Sections[1].TargetWordCount)
	assert.Equal(t, 1, got.Chapters[0].Sections[0].SectionNumber)
	assert.Equal(t, 2, got.Chapters[0].Sections[1].SectionNumber)
	assert.Equal(t, 2, got.Conclusion.ChapterNumber)
	assert.Equal(t, 400+400+350+500, got.EstimatedWordCount)
}

func TestStandardPerspectivesHasSixEntries(t *testing.T) {
	assert.Len(t, StandardPerspectives, 6)
}
