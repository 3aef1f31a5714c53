package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokodak/ttd-dr/internal/ctxmgr"
	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/internal/quality"
)

type fakeSectionGenerator struct {
	contents  []string
	callCount int
	citations []string
}

func (f *fakeSectionGenerator) GenerateSection(ctx context.Context, spec domain.SectionSpec, contextSummary domain.ContextSummary, researchData, regenerationGuidance string) domain.GeneratedSection {
	idx := f.callCount
	if idx > len(f.contents)-1 {
		idx = len(f.contents) - 1
	}
	content := f.contents[idx]
	f.callCount++
	return domain.GeneratedSection{
		Spec:          spec,
		Content:       content,
		WordCount:     len([]rune(content)) / 5,
		CitationsUsed: f.citations,
	}
}

func (f *fakeSectionGenerator) GenerateExecutiveSummary(ctx context.Context, structure domain.ReportStructure, query, researchData string) domain.GeneratedSection {
	return domain.GeneratedSection{Spec: structure.ExecutiveSummary, Content: "exec", WordCount: 400}
}

func (f *fakeSectionGenerator) GenerateConclusion(ctx context.Context, structure domain.ReportStructure, sections []domain.GeneratedSection, query string) domain.GeneratedSection {
	return domain.GeneratedSection{Spec: structure.Conclusion, Content: "conclusion", WordCount: 400}
}

func newTestPipeline(t *testing.T, sectionGen sectionGenerator, events *[]domain.ProgressEvent) *Pipeline {
	t.Helper()
	ctxMgr := ctxmgr.New(nil, ctxmgr.Config{})
	validator := quality.New(quality.Thresholds{MinWordCount: 10, TargetWordCount: 20, MinCitationDensity: 0})

	return &Pipeline{
		ctx:     ctxMgr,
		section: sectionGen,
		quality: validator,
		opts:    Options{MaxIterations: 1},
		emit: func(e domain.ProgressEvent) {
			*events = append(*events, e)
		},
	}
}

func TestGenerateSearchQueryFirstIterationUsesRawQuery(t *testing.T) {
	var events []domain.ProgressEvent
	p := newTestPipeline(t, &fakeSectionGenerator{}, &events)

	got := p.generateSearchQuery(context.Background(), "what is the outlook", 0, 1)
	assert.Equal(t, "what is the outlook", got)
}

func TestPerformIterativeSearchSkipsBlankQuery(t *testing.T) {
	var events []domain.ProgressEvent
	p := newTestPipeline(t, &fakeSectionGenerator{}, &events)
	p.opts.MaxIterations = 1

	p.performIterativeSearchAndSynthesis(context.Background(), "   ", 1)
	require.Len(t, p.state.History, 0)
}

func TestGenerateSectionWithValidationPassesFirstTry(t *testing.T) {
	var events []domain.ProgressEvent
	content := "This is a detailed opening paragraph with several sentences. It references [Source 1] for support.\n\nThis is a second paragraph that continues the analysis. It adds further detail and context."
	gen := &fakeSectionGenerator{contents: []string{content}, citations: []string{"Source 1"}}
	p := newTestPipeline(t, gen, &events)

	spec := domain.SectionSpec{Title: "T", ChapterNumber: 1, SectionNumber: 1, TargetWordCount: 20}
	section := p.generateSectionWithValidation(context.Background(), spec, "research data", "Section 1/1")

	assert.Equal(t, 1, gen.callCount)
	assert.NotEmpty(t, section.Content)
}

func TestGenerateSectionWithValidationRegeneratesOnFailure(t *testing.T) {
	var events []domain.ProgressEvent
	gen := &fakeSectionGenerator{
		contents: []string{
			"too short",
			"This is a fuller paragraph with real sentences and supporting detail. It cites [Source 1] directly.\n\nA second paragraph rounds out the analysis with further context and specifics.",
		},
		citations: []string{"Source 1"},
	}
	p := newTestPipeline(t, gen, &events)

	spec := domain.SectionSpec{Title: "T", ChapterNumber: 1, SectionNumber: 1, TargetWordCount: 20}
	section := p.generateSectionWithValidation(context.Background(), spec, "research data", "Section 1/1")

	assert.Equal(t, 2, gen.callCount)
	assert.NotEmpty(t, section.Content)

	var sawRegenEvent bool
	for _, e := range events {
		if e.IntermediateSteps != nil && strings.Contains(*e.IntermediateSteps, "Regenerating") {
			sawRegenEvent = true
		}
	}
	assert.True(t, sawRegenEvent)
}

func TestSendUpdateJoinsLogWithSeparator(t *testing.T) {
	var events []domain.ProgressEvent
	p := newTestPipeline(t, &fakeSectionGenerator{}, &events)

	p.sendUpdate("first")
	p.sendUpdate("second")

	require.Len(t, events, 2)
	require.NotNil(t, events[1].IntermediateSteps)
	assert.Equal(t, "first|||---|||second", *events[1].IntermediateSteps)
}

func TestRegenerationReasonClassifiesFirstIssue(t *testing.T) {
	assert.Equal(t, "", regenerationReason(domain.ValidationResult{IsValid: true}))
	assert.Equal(t, "depth", regenerationReason(domain.ValidationResult{Issues: []string{"Insufficient depth: 10 words (minimum: 300)"}}))
	assert.Equal(t, "citations", regenerationReason(domain.ValidationResult{Issues: []string{"Insufficient citations: 0 citations for 400 words (target: ≥2.0)"}}))
	assert.Equal(t, "redundancy", regenerationReason(domain.ValidationResult{Issues: []string{"High redundancy: 90% similarity with previous sections (threshold: 70%)"}}))
	assert.Equal(t, "coherence", regenerationReason(domain.ValidationResult{Issues: []string{"Poor coherence: Section appears to be placeholder or error content"}}))
}

func TestPrepareResearchDataFormatsQAPairs(t *testing.T) {
	var events []domain.ProgressEvent
	p := newTestPipeline(t, &fakeSectionGenerator{}, &events)
	p.state.AppendQA("desc", "q1", "a1", nil)

	data := p.prepareResearchData()
	assert.Contains(t, data, "**Research Query:** q1")
	assert.Contains(t, data, "**Findings:** a1")
}
