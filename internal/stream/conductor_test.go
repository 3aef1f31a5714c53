package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokodak/ttd-dr/internal/domain"
)

type fakeRunner struct {
	events []domain.ProgressEvent
	emit   func(domain.ProgressEvent)
}

func (f *fakeRunner) Run(ctx context.Context, query string) {
	for _, e := range f.events {
		f.emit(e)
	}
}

func factoryWith(events []domain.ProgressEvent) PipelineFactory {
	return func(emit func(domain.ProgressEvent)) Runner {
		return &fakeRunner{events: events, emit: emit}
	}
}

func TestConductStreamsEventsInOrderAndCloses(t *testing.T) {
	step1 := "step one"
	final := "final report text"
	events := []domain.ProgressEvent{
		{IntermediateSteps: &step1, IsIntermediate: true},
		{FinalReport: &final, Complete: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch := Conduct(ctx, factoryWith(events), "query")

	var received []domain.ProgressEvent
	for e := range ch {
		received = append(received, e)
	}

	require.Len(t, received, 2)
	assert.Equal(t, "step one", *received[0].IntermediateSteps)
	assert.True(t, received[1].Complete)
}

func TestRunStaticReturnsOnlyFinalReport(t *testing.T) {
	step1 := "noise"
	final := "the report"
	events := []domain.ProgressEvent{
		{IntermediateSteps: &step1},
		{FinalReport: &final, Complete: true},
	}

	got, err := RunStatic(context.Background(), factoryWith(events), "query")
	require.NoError(t, err)
	assert.Equal(t, "the report", got)
}

func TestRunStaticReturnsErrorOnTerminalFailure(t *testing.T) {
	events := []domain.ProgressEvent{
		{Complete: true, Error: "gemini API LLM completion failed: 400 Bad Request"},
	}

	got, err := RunStatic(context.Background(), factoryWith(events), "query")
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Contains(t, err.Error(), "400")
}
