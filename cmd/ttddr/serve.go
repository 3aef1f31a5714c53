package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kokodak/ttd-dr/internal/config"
	"github.com/kokodak/ttd-dr/internal/ctxmgr"
	"github.com/kokodak/ttd-dr/internal/evolve"
	"github.com/kokodak/ttd-dr/internal/httpapi"
	"github.com/kokodak/ttd-dr/internal/metrics"
	"github.com/kokodak/ttd-dr/internal/pipeline"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/internal/quality"
	"github.com/kokodak/ttd-dr/internal/retriever"
	"github.com/kokodak/ttd-dr/internal/section"
	"github.com/kokodak/ttd-dr/internal/structure"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server exposing /health, /evaluate, and /run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
			return err
		}

		ctx := context.Background()
		client, err := provider.New(ctx, provider.Config{
			APIKey:      cfg.Provider.APIKey,
			Model:       cfg.Provider.Model,
			MaxRetries:  cfg.Provider.MaxRetries,
			RetryDelays: cfg.Provider.RetryDelays,
		})
		if err != nil {
			return err
		}

		retr := retriever.New(client, retriever.Config{
			LegacyMode: cfg.Retrieval.LegacyMode,
			SearchTopK: cfg.Research.SearchTopK,
			RerankTopK: cfg.Research.RerankTopK,
		})
		structGen := structure.New(client)
		ctxMgr := ctxmgr.New(client, ctxmgr.Config{
			SlidingWindow: cfg.ContextBudget.SlidingWindow,
			MaxBudget:     cfg.ContextBudget.MaxTokens,
		})
		sectionGen := section.New(client)
		validator := quality.New(quality.Thresholds{
			MinWordCount:       cfg.Quality.MinWordCount,
			TargetWordCount:    cfg.Quality.TargetWordCount,
			MinCitationDensity: cfg.Quality.MinCitationDensity,
			MaxRedundancy:      cfg.Quality.MaxRedundancy,
			MinCoherence:       cfg.Quality.MinCoherence,
		})

		reg := prometheus.NewRegistry()
		metricsCollectors := metrics.New(reg)

		deps := httpapi.Deps{
			Client:    client,
			Retriever: retr,
			Structure: structGen,
			Context:   ctxMgr,
			Section:   sectionGen,
			Quality:   validator,
			PipelineOptions: pipeline.Options{
				MaxIterations:    cfg.Research.MaxIterations,
				EnableStructured: true,
				SelfEvolve: evolve.Options{
					NumVariants:    cfg.SelfEvolve.NumVariants,
					EvolutionSteps: cfg.SelfEvolve.EvolutionSteps,
				},
				ContextBudget: ctxmgr.Config{
					SlidingWindow: cfg.ContextBudget.SlidingWindow,
					MaxBudget:     cfg.ContextBudget.MaxTokens,
				},
				QualityThresholds: quality.Thresholds{
					MinWordCount:       cfg.Quality.MinWordCount,
					TargetWordCount:    cfg.Quality.TargetWordCount,
					MinCitationDensity: cfg.Quality.MinCitationDensity,
					MaxRedundancy:      cfg.Quality.MaxRedundancy,
					MinCoherence:       cfg.Quality.MinCoherence,
				},
			},
			RecordRuns: true,
			Metrics:    metricsCollectors,
			MetricsReg: reg,
		}

		router := httpapi.NewRouter(deps)

		srv := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		}

		log.Printf("ttddr serving on %s", cfg.Server.Addr)
		return srv.ListenAndServe()
	},
}
