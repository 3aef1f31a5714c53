// Package report assembles generated sections into the final markdown
// report: executive summary, chapters, conclusion, a chapter-grouped
// citations appendix, and a metadata footer.
package report

import (
	"fmt"
	"strings"

	"github.com/kokodak/ttd-dr/internal/domain"
)

// AssembleFinalReport concatenates every part of the structured report in
// order: executive summary, chapters with their sections, conclusion,
// citations grouped by chapter, and a metadata footer.
func AssembleFinalReport(structure domain.ReportStructure, sections []domain.GeneratedSection) string {
	sectionByID := make(map[string]domain.GeneratedSection, len(sections))
	for _, s := range sections {
		sectionByID[s.SectionID()] = s
	}

	var sb strings.Builder

	if exec, ok := sectionByID[structure.ExecutiveSummary.FullID()]; ok {
		sb.WriteString("# Executive Summary\n")
		sb.WriteString(exec.Content)
		sb.WriteString("\n\n---\n")
	}

	for _, chapter := range structure.Chapters {
		fmt.Fprintf(&sb, "\n# Chapter %d: %s\n", chapter.ChapterNumber, chapter.Title)
		fmt.Fprintf(&sb, "*Perspective: %s*\n", chapter.Perspective)

		for _, spec := range chapter.Sections {
			if s, ok := sectionByID[spec.FullID()]; ok {
				fmt.Fprintf(&sb, "\n## %s %s\n", s.SectionID(), s.Spec.Title)
				sb.WriteString(s.Content)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n---\n")
	}

	if concl, ok := sectionByID[structure.Conclusion.FullID()]; ok {
		sb.WriteString("\n# Conclusion\n")
		sb.WriteString(concl.Content)
		sb.WriteString("\n\n---\n")
	}

	sb.WriteString(OrganizeCitationsByChapter(structure, sections))
	sb.WriteString(GenerateMetadata(structure, sections))

	return sb.String()
}

// OrganizeCitationsByChapter groups every section's citations under its
// owning chapter heading, deduplicating within each chapter; a citation
// used in several chapters is listed under each of them.
func OrganizeCitationsByChapter(structure domain.ReportStructure, sections []domain.GeneratedSection) string {
	var allCitations []string
	for _, s := range sections {
		allCitations = append(allCitations, s.CitationsUsed...)
	}
	if len(dedupe(allCitations)) == 0 {
		return "\n# Citations\n\nNo citations available for this report.\n"
	}

	citationsByChapter := make(map[int][]string)
	for _, s := range sections {
		if len(s.CitationsUsed) > 0 {
			citationsByChapter[s.Spec.ChapterNumber] = append(citationsByChapter[s.Spec.ChapterNumber], s.CitationsUsed...)
		}
	}

	chapterNums := make([]int, 0, len(citationsByChapter))
	for n := range citationsByChapter {
		chapterNums = append(chapterNums, n)
	}
	sortInts(chapterNums)

	var sb strings.Builder
	sb.WriteString("\n# Citations\n")

	for _, chapterNum := range chapterNums {
		switch {
		case chapterNum == 0:
			sb.WriteString("\n## Executive Summary\n")
		case chapterNum == len(structure.Chapters)+1:
			sb.WriteString("\n## Conclusion\n")
		default:
			chapter := structure.Chapters[chapterNum-1]
			fmt.Fprintf(&sb, "\n## Chapter %d: %s\n", chapterNum, chapter.Title)
		}

		for _, citation := range dedupe(citationsByChapter[chapterNum]) {
			fmt.Fprintf(&sb, "- [%s]\n", citation)
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

// GenerateMetadata renders the report's closing statistics footer.
func GenerateMetadata(structure domain.ReportStructure, sections []domain.GeneratedSection) string {
	totalWords := 0
	totalCitations := 0
	totalTime := 0.0
	for _, s := range sections {
		totalWords += s.WordCount
		totalCitations += len(s.CitationsUsed)
		totalTime += s.GenerationTimeSeconds
	}
	totalSections := len(sections)

	avgWordsPerSection := 0.0
	if totalSections > 0 {
		avgWordsPerSection = float64(totalWords) / float64(totalSections)
	}
	citationDensity := 0.0
	if totalWords > 0 {
		citationDensity = (float64(totalCitations) / float64(totalWords)) * 150
	}

	return fmt.Sprintf(`

---

## Report Metadata

**Generated Report Statistics:**
- **Total Word Count:** %d words
- **Total Sections:** %d sections (%d chapters)
- **Total Citations:** %d sources
- **Average Section Length:** %.0f words
- **Citation Density:** %.2f citations per 150 words
- **Total Generation Time:** %.1f seconds (%.1f minutes)

**Report Structure:**
- Executive Summary: 1 section
- Main Chapters: %d chapters
- Conclusion: 1 section

*Generated by the structured deep research report system*
`, totalWords, totalSections, len(structure.Chapters), totalCitations, avgWordsPerSection, citationDensity,
		totalTime, totalTime/60, len(structure.Chapters))
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func sortInts(nums []int) {
	for i := 1; i < len(nums); i++ {
		for j := i; j > 0 && nums[j] < nums[j-1]; j-- {
			nums[j], nums[j-1] = nums[j-1], nums[j]
		}
	}
}
