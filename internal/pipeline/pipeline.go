// Package pipeline implements the iterative draft-then-denoise research
// loop: a plan and a noisy initial draft are refined by repeated rounds of
// query formulation, grounded retrieval, and revision, after which the
// accumulated findings are rendered either as a single-pass report or as a
// fully structured, chapter-by-chapter one.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kokodak/ttd-dr/internal/ctxmgr"
	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/internal/evolve"
	"github.com/kokodak/ttd-dr/internal/metrics"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/internal/quality"
	"github.com/kokodak/ttd-dr/internal/report"
	"github.com/kokodak/ttd-dr/internal/retriever"
	"github.com/kokodak/ttd-dr/internal/stream"
	"github.com/kokodak/ttd-dr/internal/structure"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

const planSystemPrompt = "You are a strategic research planner."

const planPrompt = `
Based on the user's query, create a structured research plan.
This plan should outline the key areas, questions, and topics to investigate to provide a comprehensive answer.
The plan will serve as a scaffold for the entire research process.
Break it down into a list of concise points.

User Query: "%s"
`

const initialDraftPrompt = `
Based on your internal knowledge and the user's query, write a preliminary, high-level draft report.
This draft will be refined later with retrieved information. It serves as a starting point and a "noisy" skeleton.

User Query: "%s"
`

const searchQueryGenPrompt = `
You are a researcher in an iterative process. Your goal is to formulate the next best search query to gather information to refine an evolving research report.

**User's Original Query:**
%s

**Overall Research Plan:**
%s

**Current Draft Report (State to be improved):**
%s

**History of Previous Searches (Queries and Answers):**
%s

Based on all the above information, what is the single most important search query to execute right now?
The query should be concise, targeted, and aimed at filling gaps or verifying information in the current draft.
Do not ask a question that has already been answered in the history.
Output only the search query, with no preamble.
`

const draftRevisionPrompt = `
You are refining a research report. You have a previous version of the draft and new information from a recent search.
Your task is to integrate the new information into the draft to "denoise" it, making it more accurate, detailed, and comprehensive.
You can add new sections, expand existing points, or correct inaccuracies.

**User's Original Query:**
%s

**Previous Draft Report:**
---
%s
---

**Newly Synthesized Information (from query: "%s"):**
---
%s
---

Produce the new, revised draft report.
`

const finalReportPrompt = `
You are a research assistant tasked with writing a final, comprehensive report.
All the necessary research, including planning, iterative searching, and information synthesis, has been completed.
Use all the provided information to construct a well-structured, coherent, and detailed final report that directly addresses the user's original query.

**User's Original Query:**
%s

**Initial Research Plan:**
%s

**Final Revised Draft (Skeleton for the report):**
%s

**Full History of Questions and Synthesized Answers:**
%s

**Citations:**
%s

Now, write the final, polished report. Start with a "Final Answer:" short paragraph summarizing the key findings, followed by detailed sections below and citations where relevant.
`

// maxRegenerationAttempts bounds the total number of generation attempts
// per section, the first generation included, when quality validation fails.
const maxRegenerationAttempts = 2

// Options configures one Pipeline run.
type Options struct {
	MaxIterations     int
	EnableStructured  bool
	SelfEvolve        evolve.Options
	ContextBudget     ctxmgr.Config
	QualityThresholds quality.Thresholds
}

// Emit is called with every progress event the pipeline produces, in
// order, including the final completing event. Callers drive SSE/websocket
// delivery or direct return value collection from this single hook.
type Emit func(domain.ProgressEvent)

// Pipeline runs one research request end to end: plan, initial draft,
// iterative grounded search-and-revise, then structured (or legacy
// single-pass) report generation.
type Pipeline struct {
	client    *provider.Client
	retriever *retriever.Retriever
	structure *structure.Generator
	ctx       *ctxmgr.Manager
	section   sectionGenerator
	quality   *quality.Validator

	opts     Options
	emit     Emit
	state    domain.ResearchState
	recorder *stream.RunReport
	metrics  *metrics.Metrics

	reportStructure   *domain.ReportStructure
	generatedSections []domain.GeneratedSection
}

// SetRecorder attaches a RunReport that records stage timings and section
// quality metrics as Run executes. Optional; a nil recorder (the default)
// disables this bookkeeping entirely.
func (p *Pipeline) SetRecorder(r *stream.RunReport) {
	p.recorder = r
}

// SetMetrics attaches a Metrics instance that records stage timings and
// section regeneration counts as Prometheus observations. Optional; a nil
// Metrics (the default) disables this instrumentation entirely.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// timedStage pairs a recorder's stage handle with an independent start
// time so duration can be reported to Metrics as well, regardless of
// whether a recorder is attached.
type timedStage struct {
	handle stream.StageHandle
	name   string
	start  time.Time
}

func (p *Pipeline) beginStage(name string) timedStage {
	return timedStage{handle: p.recorder.BeginStage(name), name: name, start: time.Now()}
}

func (p *Pipeline) endStage(ts timedStage, err error) {
	p.recorder.EndStage(ts.handle, err)
	p.metrics.RecordStage(ts.name, time.Since(ts.start))
}

// sectionGenerator is the subset of section.Generator the pipeline needs;
// declared as an interface here so tests can substitute a fake writer.
type sectionGenerator interface {
	GenerateSection(ctx context.Context, spec domain.SectionSpec, contextSummary domain.ContextSummary, researchData, regenerationGuidance string) domain.GeneratedSection
	GenerateExecutiveSummary(ctx context.Context, structure domain.ReportStructure, query, researchData string) domain.GeneratedSection
	GenerateConclusion(ctx context.Context, structure domain.ReportStructure, sections []domain.GeneratedSection, query string) domain.GeneratedSection
}

// New builds a Pipeline. emit receives every ProgressEvent produced during
// Run; it must not block for long, since the research loop calls it
// synchronously between LLM calls.
func New(client *provider.Client, retr *retriever.Retriever, structGen *structure.Generator, ctxMgr *ctxmgr.Manager, sectionGen sectionGenerator, validator *quality.Validator, opts Options, emit Emit) *Pipeline {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 1
	}
	return &Pipeline{
		client:    client,
		retriever: retr,
		structure: structGen,
		ctx:       ctxMgr,
		section:   sectionGen,
		quality:   validator,
		opts:      opts,
		emit:      emit,
	}
}

// sendUpdate appends description (if present) to the intermediate log and
// emits a ProgressEvent carrying the full "|||---|||"-joined log so far.
func (p *Pipeline) sendUpdate(description string, opts ...func(*domain.ProgressEvent)) {
	if description != "" {
		p.state.AppendLog(description)
	}

	stepsText := strings.Join(p.state.IntermediateLog, "|||---|||")
	event := domain.ProgressEvent{IsIntermediate: true}
	if stepsText != "" {
		s := stepsText
		event.IntermediateSteps = &s
	}
	for _, opt := range opts {
		opt(&event)
	}
	if p.emit != nil {
		p.emit(event)
	}
}

func withFinalReport(chunk string) func(*domain.ProgressEvent) {
	return func(e *domain.ProgressEvent) { e.FinalReport = &chunk }
}

func withCitations(citations []string) func(*domain.ProgressEvent) {
	return func(e *domain.ProgressEvent) {
		if len(citations) > 0 {
			e.Citations = citations
		}
	}
}

func withComplete() func(*domain.ProgressEvent) {
	return func(e *domain.ProgressEvent) { e.Complete = true; e.IsIntermediate = false }
}

func notIntermediate() func(*domain.ProgressEvent) {
	return func(e *domain.ProgressEvent) { e.IsIntermediate = false }
}

func withError(err error) func(*domain.ProgressEvent) {
	return func(e *domain.ProgressEvent) { e.Error = err.Error() }
}

// abort emits the single terminal event a fatal phase error produces: no
// final report, Error set, Complete true. Callers return immediately after.
func (p *Pipeline) abort(err error) {
	logger.Error("pipeline aborted: " + err.Error())
	p.sendUpdate("", notIntermediate(), withComplete(), withError(err))
}

// generateResearchPlan produces the research plan through self-evolution.
func (p *Pipeline) generateResearchPlan(ctx context.Context, query string) error {
	p.sendUpdate("Generating initial research plan...")

	stage := p.beginStage("plan")
	plan, _, err := evolve.Run(ctx, p.client, fmt.Sprintf(planPrompt, query), planSystemPrompt, p.opts.SelfEvolve)
	p.endStage(stage, err)
	if err != nil {
		return fmt.Errorf("plan generation: %w", err)
	}

	p.state.Plan = plan
	planDesc := "**Research Plan Generated:**\n" + p.state.Plan
	p.state.AppendLog(planDesc)
	p.sendUpdate(planDesc)
	return nil
}

// generateInitialDraft writes the noisy skeleton draft from internal
// knowledge only, before any retrieval happens.
func (p *Pipeline) generateInitialDraft(ctx context.Context, query string) error {
	p.sendUpdate("Generating initial draft from internal knowledge...")

	stage := p.beginStage("initial_draft")
	draft, err := p.client.Complete(ctx, fmt.Sprintf(initialDraftPrompt, query), provider.CompletionOptions{})
	p.endStage(stage, err)
	if err != nil {
		return fmt.Errorf("initial draft generation: %w", err)
	}

	p.state.Draft = draft
	draftDesc := "**Initial Draft Created:**\n" + truncateChars(p.state.Draft, 200) + "..."
	p.state.AppendLog(draftDesc)
	p.sendUpdate(draftDesc)
	return nil
}

// generateSearchQuery formulates the next search query. The first iteration
// always uses the raw user query verbatim to avoid biasing the search off
// an unrefined initial draft; later iterations ask the model to target gaps
// in the draft given the full question/answer history so far.
func (p *Pipeline) generateSearchQuery(ctx context.Context, query string, iteration, maxIterations int) string {
	p.sendUpdate(fmt.Sprintf("**Iteration %d/%d:** Generating next search query...", iteration+1, maxIterations))

	if iteration == 0 {
		p.sendUpdate(fmt.Sprintf("**Searching for (direct query):** `%s`", query))
		return query
	}

	var historyLines []string
	for _, h := range p.state.QAHistory() {
		historyLines = append(historyLines, fmt.Sprintf("Q: %s\nA: %s", h.Query, h.Answer))
	}

	prompt := fmt.Sprintf(searchQueryGenPrompt, query, p.state.Plan, p.state.Draft, strings.Join(historyLines, "\n"))
	searchQuery, err := p.client.Complete(ctx, prompt, provider.CompletionOptions{})
	if err != nil {
		logger.Warn("search query generation failed: " + err.Error())
		return ""
	}
	searchQuery = strings.TrimSpace(searchQuery)
	p.sendUpdate(fmt.Sprintf("**Searching for (generated query):** `%s`", searchQuery))
	return searchQuery
}

// retrieveAndSynthesize retrieves and synthesizes an answer for
// searchQuery, recording citations and the Q&A pair in the research state.
func (p *Pipeline) retrieveAndSynthesize(ctx context.Context, searchQuery string) string {
	p.sendUpdate("Searching web and synthesizing answer with grounded generation...")

	result := p.retriever.Retrieve(ctx, searchQuery)
	if len(result.Citations) > 0 {
		p.sendUpdate(
			fmt.Sprintf("**Grounded generation complete:** %d sources used. Synthesizing answer...", len(result.Citations)),
			withCitations(result.Citations))
	}

	desc := fmt.Sprintf("**Synthesized Answer for `%s`:**\n%s", searchQuery, result.Answer)
	p.state.AppendQA(desc, searchQuery, result.Answer, result.Citations)
	p.sendUpdate(desc)
	return result.Answer
}

// reviseDraftWithNewInfo denoises the current draft by integrating newly
// synthesized information from searchQuery.
func (p *Pipeline) reviseDraftWithNewInfo(ctx context.Context, query, searchQuery, synthesizedAnswer string, iteration int) error {
	p.sendUpdate("Revising draft with new information...")

	prompt := fmt.Sprintf(draftRevisionPrompt, query, p.state.Draft, searchQuery, synthesizedAnswer)
	revised, err := p.client.Complete(ctx, prompt, provider.CompletionOptions{})
	if err != nil {
		return fmt.Errorf("draft revision: %w", err)
	}

	p.state.Draft = revised
	revisedDesc := fmt.Sprintf("**Revised Draft %d:**\n%s...", iteration+1, truncateChars(p.state.Draft, 200))
	p.state.AppendLog(revisedDesc)
	p.sendUpdate(revisedDesc)
	return nil
}

// performIterativeSearchAndSynthesis runs the draft-then-denoise loop for
// up to maxIterations rounds, stopping immediately on the first revision
// failure.
func (p *Pipeline) performIterativeSearchAndSynthesis(ctx context.Context, query string, maxIterations int) error {
	for i := 0; i < maxIterations; i++ {
		stage := p.beginStage(fmt.Sprintf("search_iteration_%d", i+1))

		searchQuery := p.generateSearchQuery(ctx, query, i, maxIterations)
		if strings.TrimSpace(searchQuery) == "" {
			logger.Warn("no valid search query generated, skipping iteration")
			p.endStage(stage, nil)
			continue
		}
		answer := p.retrieveAndSynthesize(ctx, searchQuery)
		err := p.reviseDraftWithNewInfo(ctx, query, searchQuery, answer, i)
		p.endStage(stage, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// generateFinalReport is the legacy single-pass report generator, used
// when structured generation is disabled or has no outline to work from.
func (p *Pipeline) generateFinalReport(ctx context.Context, query string) error {
	p.sendUpdate("All research steps complete. Generating final report...")

	var historyLines []string
	for _, h := range p.state.QAHistory() {
		historyLines = append(historyLines, fmt.Sprintf("**Question:** %s\n**Answer:** %s", h.Query, h.Answer))
	}

	prompt := fmt.Sprintf(finalReportPrompt, query, p.state.Plan, p.state.Draft,
		strings.Join(historyLines, "\n\n"), strings.Join(p.state.Citations, "\n"))

	stage := p.beginStage("final_report")
	content, err := p.client.Complete(ctx, prompt, provider.CompletionOptions{})
	p.endStage(stage, err)
	if err != nil {
		return fmt.Errorf("final report generation: %w", err)
	}

	p.sendUpdate("Final report generated.", notIntermediate(), withFinalReport(content), withCitations(p.state.Citations), withComplete())
	return nil
}

// generateReportStructure produces the chapter outline used by structured
// report generation, from the plan and accumulated Q&A history.
func (p *Pipeline) generateReportStructure(ctx context.Context, query string) error {
	if !p.opts.EnableStructured {
		return nil
	}
	p.sendUpdate("Generating comprehensive report structure...")

	var summaryLines []string
	for _, h := range p.state.QAHistory() {
		summaryLines = append(summaryLines, fmt.Sprintf("Q: %s\nA: %s...", h.Query, truncateChars(h.Answer, 200)))
	}

	stage := p.beginStage("structure")
	outline, err := p.structure.GenerateChapterOutline(ctx, query, p.state.Plan, strings.Join(summaryLines, "\n"))
	p.endStage(stage, err)
	if err != nil {
		return fmt.Errorf("report structure generation: %w", err)
	}
	p.reportStructure = &outline

	desc := fmt.Sprintf("**Report Structure Generated:**\n- %d total sections\n- %d chapters\n- ~%d target words",
		outline.TotalSections(), len(outline.Chapters), outline.EstimatedWordCount)
	p.sendUpdate(desc)
	return nil
}

// prepareResearchData flattens the Q&A history into the research findings
// block consumed by section generation prompts.
func (p *Pipeline) prepareResearchData() string {
	var parts []string
	for _, h := range p.state.QAHistory() {
		parts = append(parts, fmt.Sprintf("**Research Query:** %s\n**Findings:** %s\n", h.Query, h.Answer))
	}
	return strings.Join(parts, "\n")
}

// generateSectionWithValidation generates section_spec's section, running
// it through quality validation and regenerating (up to
// maxRegenerationAttempts) if it fails.
func (p *Pipeline) generateSectionWithValidation(ctx context.Context, spec domain.SectionSpec, researchData, progress string) domain.GeneratedSection {
	attempt := 1
	regenerationGuidance := ""
	var generated domain.GeneratedSection

	for attempt <= maxRegenerationAttempts {
		genContext := p.ctx.BuildGenerationContext(ctx, p.generatedSections, researchData)

		if attempt > 1 {
			p.sendUpdate(fmt.Sprintf("%s: Regenerating (attempt %d/%d)...", progress, attempt, maxRegenerationAttempts))
		}

		generated = p.section.GenerateSection(ctx, spec, genContext, researchData, regenerationGuidance)

		validation := p.quality.ValidateSection(generated, p.generatedSections)
		shouldRegen, guidance := p.quality.ShouldRegenerate(validation, attempt, maxRegenerationAttempts)

		if !shouldRegen {
			if !validation.IsValid {
				p.sendUpdate(fmt.Sprintf("Quality issues detected but proceeding for %s (max attempts reached)", progress))
			}
			p.recorder.AddSectionMetric(generated, validation, attempt)
			p.metrics.RecordSectionOutcome(attempt, attempt > 1, regenerationReason(validation))
			return generated
		}

		regenerationGuidance = guidance
		attempt++
	}

	return generated
}

// generateStructuredReport writes the executive summary, every chapter
// section (with validation and regeneration), and the conclusion, then
// assembles them into the final report. Falls back to the legacy
// single-pass generator if structured generation is disabled or no outline
// was produced.
func (p *Pipeline) generateStructuredReport(ctx context.Context, query string) error {
	if !p.opts.EnableStructured || p.reportStructure == nil {
		return p.generateFinalReport(ctx, query)
	}

	p.sendUpdate("Starting structured report generation...")
	researchData := p.prepareResearchData()

	execSummary := p.section.GenerateExecutiveSummary(ctx, *p.reportStructure, query, researchData)
	p.generatedSections = append(p.generatedSections, execSummary)
	p.sendUpdate(fmt.Sprintf("Executive Summary generated (%d words)", execSummary.WordCount))

	totalMainSections := 0
	for _, ch := range p.reportStructure.Chapters {
		totalMainSections += len(ch.Sections)
	}
	currentSection := 0

	for _, chapter := range p.reportStructure.Chapters {
		p.sendUpdate(fmt.Sprintf("Starting Chapter %d: %s", chapter.ChapterNumber, chapter.Title))

		for _, spec := range chapter.Sections {
			currentSection++
			progress := fmt.Sprintf("Section %d/%d", currentSection, totalMainSections)

			section := p.generateSectionWithValidation(ctx, spec, researchData, progress)
			section.Summary = p.ctx.CompressSectionToSummary(ctx, section)
			p.generatedSections = append(p.generatedSections, section)

			p.sendUpdate(fmt.Sprintf("Completed %s: %s (%d words, %d citations)",
				progress, section.Spec.Title, section.WordCount, len(section.CitationsUsed)))
		}
	}

	conclusion := p.section.GenerateConclusion(ctx, *p.reportStructure, p.generatedSections, query)
	p.generatedSections = append(p.generatedSections, conclusion)
	p.sendUpdate(fmt.Sprintf("Conclusion generated (%d words)", conclusion.WordCount))

	p.sendUpdate("Assembling final report...")
	assembleStage := p.beginStage("assemble")
	finalReport := report.AssembleFinalReport(*p.reportStructure, p.generatedSections)
	p.endStage(assembleStage, nil)

	p.sendUpdate("Structured report generation complete.",
		notIntermediate(), withFinalReport(finalReport), withCitations(p.state.Citations), withComplete())
	return nil
}

// Run executes the full pipeline for query: plan, initial draft, iterative
// search-and-revise, then report generation (structured or legacy). A fatal
// error from any phase aborts the run immediately with a single terminal
// event carrying Error; no later phase runs.
func (p *Pipeline) Run(ctx context.Context, query string) {
	if err := p.generateResearchPlan(ctx, query); err != nil {
		p.abort(err)
		return
	}
	if err := p.generateInitialDraft(ctx, query); err != nil {
		p.abort(err)
		return
	}
	if err := p.performIterativeSearchAndSynthesis(ctx, query, p.opts.MaxIterations); err != nil {
		p.abort(err)
		return
	}

	if p.opts.EnableStructured {
		if err := p.generateReportStructure(ctx, query); err != nil {
			p.abort(err)
			return
		}
		if err := p.generateStructuredReport(ctx, query); err != nil {
			p.abort(err)
			return
		}
	} else {
		if err := p.generateFinalReport(ctx, query); err != nil {
			p.abort(err)
			return
		}
	}
}

func truncateChars(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}

// regenerationReason classifies the first validation issue into a
// low-cardinality label suitable for a metrics dimension.
func regenerationReason(v domain.ValidationResult) string {
	if v.IsValid || len(v.Issues) == 0 {
		return ""
	}
	switch {
	case strings.HasPrefix(v.Issues[0], "Insufficient depth"):
		return "depth"
	case strings.HasPrefix(v.Issues[0], "Insufficient citations"):
		return "citations"
	case strings.HasPrefix(v.Issues[0], "High redundancy"):
		return "redundancy"
	case strings.HasPrefix(v.Issues[0], "Poor coherence"):
		return "coherence"
	default:
		return "other"
	}
}
