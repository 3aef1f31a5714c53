package stream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokodak/ttd-dr/internal/domain"
)

func TestBeginEndStageRecordsDurationAndStatus(t *testing.T) {
	r := NewRunReport("what happened")
	h := r.BeginStage("plan")
	r.EndStage(h, nil)

	require.Len(t, r.Stages, 1)
	assert.Equal(t, "plan", r.Stages[0].Name)
	assert.Equal(t, "ok", r.Stages[0].Status)
	assert.GreaterOrEqual(t, r.Stages[0].DurationMS, int64(0))
	assert.Empty(t, r.Stages[0].Error)
}

func TestEndStageRecordsErrorStatus(t *testing.T) {
	r := NewRunReport("q")
	h := r.BeginStage("draft")
	r.EndStage(h, assert.AnError)

	require.Len(t, r.Stages, 1)
	assert.Equal(t, "error", r.Stages[0].Status)
	assert.Equal(t, assert.AnError.Error(), r.Stages[0].Error)
}

func TestEndStageOnNilReportOrEmptyHandleIsNoop(t *testing.T) {
	var r *RunReport
	assert.NotPanics(t, func() { r.EndStage(StageHandle{}, nil) })

	r = NewRunReport("q")
	r.EndStage(StageHandle{}, nil)
	assert.Empty(t, r.Stages)
}

func TestAddSignalDropsIncompleteSignals(t *testing.T) {
	r := NewRunReport("q")
	r.AddSignal("", "plan", "warning", "message")
	r.AddSignal("code", "", "warning", "message")
	r.AddSignal("code", "plan", "", "message")
	r.AddSignal("code", "plan", "warning", "")
	assert.Empty(t, r.Signals)

	r.AddSignal(" code ", " plan ", " WARNING ", " message ")
	require.Len(t, r.Signals, 1)
	assert.Equal(t, "code", r.Signals[0].Code)
	assert.Equal(t, "plan", r.Signals[0].Stage)
	assert.Equal(t, "warning", r.Signals[0].Severity)
	assert.Equal(t, "message", r.Signals[0].Message)
}

func TestAddSectionMetricRaisesSignalWhenInvalid(t *testing.T) {
	r := NewRunReport("q")
	spec := domain.DefaultSectionSpec("Intro", 1, 1, "skeptic", "cover basics")
	section := domain.GeneratedSection{Spec: spec, WordCount: 100, CitationsUsed: []string{"Source 1"}}
	validation := domain.ValidationResult{IsValid: false, Issues: []string{"Insufficient depth: 100 words (minimum: 300)"}}

	r.AddSectionMetric(section, validation, 3)

	require.Len(t, r.Sections, 1)
	assert.Equal(t, "1.1", r.Sections[0].SectionID)
	assert.Equal(t, 3, r.Sections[0].Attempts)
	assert.False(t, r.Sections[0].Valid)
	require.Len(t, r.Signals, 1)
	assert.Equal(t, "quality.unresolved", r.Signals[0].Code)
	assert.Equal(t, "1.1", r.Signals[0].Stage)
}

func TestFinalizeComputesSummaryAndSortsSignalsBySeverity(t *testing.T) {
	r := NewRunReport("q")
	h1 := r.BeginStage("plan")
	r.EndStage(h1, nil)
	h2 := r.BeginStage("draft")
	r.EndStage(h2, assert.AnError)

	r.AddSignal("a", "z-stage", "info", "low priority")
	r.AddSignal("b", "a-stage", "critical", "urgent")
	r.AddSignal("c", "b-stage", "warning", "heads up")

	spec := domain.DefaultSectionSpec("Intro", 1, 1, "skeptic", "cover basics")
	r.AddSectionMetric(domain.GeneratedSection{Spec: spec, WordCount: 120}, domain.ValidationResult{IsValid: true}, 1)

	r.Finalize()

	assert.NotEmpty(t, r.GeneratedAt)
	assert.Equal(t, "b", r.Signals[0].Code)
	assert.Equal(t, "c", r.Signals[1].Code)
	assert.Equal(t, "a", r.Signals[2].Code)

	assert.Equal(t, 2, r.Summary.StageCount)
	assert.Equal(t, 1, r.Summary.FailedStages)
	assert.Equal(t, 1, r.Summary.SectionCount)
	assert.Equal(t, 0, r.Summary.InvalidSections)
	assert.Equal(t, 120, r.Summary.TotalWords)
	assert.Equal(t, 1, r.Summary.SignalsBySeverity["critical"])
	assert.Equal(t, 1, r.Summary.SignalsBySeverity["warning"])
	assert.Equal(t, 1, r.Summary.SignalsBySeverity["info"])
}

func TestSaveWritesJSONAndCreatesParentDirs(t *testing.T) {
	r := NewRunReport("q")
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "report.json")

	err := r.Save(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"query": "q"`)
}

func TestSaveOnNilReportIsNoop(t *testing.T) {
	var r *RunReport
	assert.NoError(t, r.Save("/tmp/should-not-be-written.json"))
}

func TestSignalPriorityOrdering(t *testing.T) {
	assert.Equal(t, 3, signalPriority("critical"))
	assert.Equal(t, 2, signalPriority("warning"))
	assert.Equal(t, 1, signalPriority("info"))
	assert.Equal(t, 1, signalPriority("unknown"))
}
