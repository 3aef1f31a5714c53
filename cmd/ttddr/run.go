package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kokodak/ttd-dr/internal/config"
	"github.com/kokodak/ttd-dr/internal/ctxmgr"
	"github.com/kokodak/ttd-dr/internal/domain"
	"github.com/kokodak/ttd-dr/internal/evolve"
	"github.com/kokodak/ttd-dr/internal/pipeline"
	"github.com/kokodak/ttd-dr/internal/provider"
	"github.com/kokodak/ttd-dr/internal/quality"
	"github.com/kokodak/ttd-dr/internal/retriever"
	"github.com/kokodak/ttd-dr/internal/section"
	"github.com/kokodak/ttd-dr/internal/stream"
	"github.com/kokodak/ttd-dr/internal/structure"
	"github.com/kokodak/ttd-dr/pkg/logger"
)

var (
	structuredOutput bool
	savePath         string
)

var runCmd = &cobra.Command{
	Use:   "run [question]",
	Short: "Run one research query from the command line and print the final report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]

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

		opts := pipeline.Options{
			MaxIterations:    cfg.Research.MaxIterations,
			EnableStructured: structuredOutput,
			SelfEvolve: evolve.Options{
				NumVariants:    cfg.SelfEvolve.NumVariants,
				EvolutionSteps: cfg.SelfEvolve.EvolutionSteps,
			},
		}

		recorder := stream.NewRunReport(question)

		factory := func(emit func(domain.ProgressEvent)) stream.Runner {
			p := pipeline.New(client, retr, structGen, ctxMgr, sectionGen, validator, opts, pipeline.Emit(emit))
			p.SetRecorder(recorder)
			return p
		}

		var finalReport string
		events := stream.Conduct(ctx, factory, question)
		for event := range events {
			if event.IntermediateSteps != nil {
				fmt.Println(*event.IntermediateSteps)
			}
			if event.Complete && event.FinalReport != nil {
				finalReport = *event.FinalReport
			}
			if event.Error != "" {
				fmt.Println("error:", event.Error)
			}
		}

		fmt.Println("\n--- Final Report ---")
		fmt.Println(finalReport)

		if savePath != "" {
			if err := recorder.Save(savePath); err != nil {
				return err
			}
			data, _ := json.MarshalIndent(recorder.Summary, "", "  ")
			fmt.Printf("\nrun report saved to %s\n%s\n", savePath, data)
		}

		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&structuredOutput, "structured", true, "Generate a full chapter-by-chapter report instead of a single-pass one")
	runCmd.Flags().StringVar(&savePath, "save-report", "", "Path to save the run's stage/section observability report as JSON")
}
