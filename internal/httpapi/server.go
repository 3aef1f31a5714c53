// Package httpapi exposes the research pipeline over HTTP: a health probe,
// a synchronous evaluation endpoint, and a streaming SSE endpoint, mirroring
// the three routes the original service exposed.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kokodak/ttd-dr/internal/ctxmgr"
	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/internal/metrics"
	"github.com/kokodak/ttd-dr/internal/pipeline"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/internal/quality"
	"github.com/kokodak/ttd-dr/internal/retriever"
	"github.com/kokodak/ttd-dr/internal/section"
	"github.com/kokodak/ttd-dr/internal/stream"
	"github.com/kokodak/ttd-dr/internal/structure"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

// Deps holds the long-lived, request-independent collaborators a Pipeline
// is assembled from. One Deps is built at startup and shared by every
// request; each request gets its own *pipeline.Pipeline since research
// state is not safe to share across concurrent runs.
type Deps struct {
	Client          *provider.Client
	Retriever       *retriever.Retriever
	Structure       *structure.Generator
	Context         *ctxmgr.Manager
	Section         *section.Generator
	Quality         *quality.Validator
	PipelineOptions pipeline.Options
	RecordRuns      bool

	Metrics    *metrics.Metrics
	MetricsReg *prometheus.Registry
}

// evaluateRequest is the /evaluate request body.
type evaluateRequest struct {
	Query string `json:"query"`
	IID   string `json:"iid"`
}

// evaluateResponse is the /evaluate response body.
type evaluateResponse struct {
	QueryID           string `json:"query_id"`
	GeneratedResponse string `json:"generated_response"`
}

// runRequest is the /run request body.
type runRequest struct {
	Question string `json:"question"`
}

// NewRouter builds the chi router exposing health, evaluate, and run.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/health", handleHealth)
	r.Post("/evaluate", handleEvaluate(deps))
	r.Post("/run", handleRun(deps))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsReg))
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvaluate runs the pipeline to completion and returns only the final
// report, matching the synchronous evaluation contract.
func handleEvaluate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}

		factory := deps.pipelineFactory(req.IID)
		report, err := stream.RunStatic(r.Context(), factory, req.Query)
		if err != nil {
			deps.Metrics.RecordRun("error")
			logger.Error("evaluate failed: " + err.Error())
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		deps.Metrics.RecordRun("evaluate")

		writeJSON(w, http.StatusOK, evaluateResponse{
			QueryID:           req.IID,
			GeneratedResponse: report,
		})
	}
}

// handleRun streams research progress over SSE until the pipeline emits a
// completing event.
func handleRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Question == "" {
			http.Error(w, "question is required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		factory := deps.pipelineFactory(uuid.NewString())
		events := stream.Conduct(r.Context(), factory, req.Question)

		for event := range events {
			data, err := json.Marshal(stream.ToJSON(event))
			if err != nil {
				logger.Error("failed to marshal progress event")
				continue
			}
			sendEvent(w, flusher, data)
			if event.Complete {
				outcome := "ok"
				if event.Error != "" {
					outcome = "error"
				}
				deps.Metrics.RecordRun(outcome)
				distinct := make(map[string]struct{}, len(event.Citations))
				for _, c := range event.Citations {
					distinct[c] = struct{}{}
				}
				deps.Metrics.RecordCitations(len(distinct))
				return
			}
		}
	}
}

// sendEvent writes one SSE "data:" frame and flushes it immediately.
func sendEvent(w http.ResponseWriter, f http.Flusher, data []byte) {
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	f.Flush()
}

// pipelineFactory builds a stream.PipelineFactory closing over deps and a
// per-request run id, assembling a fresh *pipeline.Pipeline for every call
// since research state must not be shared across concurrent requests.
func (deps Deps) pipelineFactory(runID string) stream.PipelineFactory {
	return func(emit func(domain.ProgressEvent)) stream.Runner {
		p := pipeline.New(
			deps.Client,
			deps.Retriever,
			deps.Structure,
			deps.Context,
			deps.Section,
			deps.Quality,
			deps.PipelineOptions,
			pipeline.Emit(emit),
		)
		if deps.RecordRuns {
			p.SetRecorder(stream.NewRunReport(runID))
		}
		if deps.Metrics != nil {
			p.SetMetrics(deps.Metrics)
		}
		return p
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

