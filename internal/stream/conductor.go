// Package stream bridges the research pipeline's synchronous progress
// callback onto a channel-based conductor an HTTP handler can range over,
// and provides a static run that discards intermediate events and returns
// only the final report.
package stream

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

// Runner is the subset of pipeline.Pipeline the conductor drives. Declared
// as an interface so the HTTP layer never imports the pipeline package
// directly and tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, query string)
}

// PipelineFactory builds a fresh Runner wired to emit, one per request. The
// pipeline carries per-request mutable state, so a new instance is required
// for every call to Conduct or RunStatic.
type PipelineFactory func(emit func(domain.ProgressEvent)) Runner

// EventJSON is the wire shape of one SSE "data:" payload, matching the
// field names the research loop's progress updates are keyed by.
type EventJSON struct {
	IntermediateSteps *string  `json:"intermediate_steps"`
	FinalReport       *string  `json:"final_report"`
	IsIntermediate    bool     `json:"is_intermediate"`
	Complete          bool     `json:"complete"`
	Citations         []string `json:"citations,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// ToJSON renders a ProgressEvent into its wire shape.
func ToJSON(e domain.ProgressEvent) EventJSON {
	return EventJSON{
		IntermediateSteps: e.IntermediateSteps,
		FinalReport:       e.FinalReport,
		IsIntermediate:    e.IsIntermediate,
		Complete:          e.Complete,
		Citations:         e.Citations,
		Error:             e.Error,
	}
}

// Conduct runs a pipeline for query in the background and streams its
// progress events on the returned channel. The channel is closed once a
// Complete event has been delivered or the pipeline panics/the context is
// cancelled. Callers must drain the channel to completion or until ctx is
// done to avoid leaking the background goroutine.
func Conduct(ctx context.Context, factory PipelineFactory, query string) <-chan domain.ProgressEvent {
	events := make(chan domain.ProgressEvent)

	emit := func(e domain.ProgressEvent) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("research pipeline panicked")
				select {
				case events <- domain.ProgressEvent{Error: "internal pipeline failure", Complete: true}:
				case <-ctx.Done():
				}
			}
		}()

		runner := factory(emit)
		runner.Run(ctx, query)
	}()

	return events
}

// RunStatic runs a pipeline to completion and returns its final report,
// discarding every intermediate event. Mirrors the static evaluation entry
// point's synchronous contract: if the terminal event carries an Error, it
// is returned as a non-nil error and the report string is empty.
func RunStatic(ctx context.Context, factory PipelineFactory, query string) (string, error) {
	var (
		finalReport string
		runErr      error
	)

	emit := func(e domain.ProgressEvent) {
		if e.Complete {
			if e.Error != "" {
				runErr = errors.New(e.Error)
			} else if e.FinalReport != nil {
				finalReport = *e.FinalReport
			}
		}
		if data, err := json.Marshal(ToJSON(e)); err == nil {
			logger.Debug("static pipeline update: " + string(data))
		}
	}

	runner := factory(emit)
	runner.Run(ctx, query)
	return finalReport, runErr
}
