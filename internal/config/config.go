// Package config loads the service configuration from a YAML file,
// optionally overlaid with a local .env file, then overridden field-by-field
// by TTDDR_*-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider struct {
		APIKey      string    `yaml:"api_key"`
		Model       string    `yaml:"model"`
		TimeoutSecs int       `yaml:"timeout_seconds"`
		MaxRetries  int       `yaml:"max_retries"`
		RetryDelays []float64 `yaml:"retry_delays"`
	} `yaml:"provider"`

	Research struct {
		MaxIterations int  `yaml:"max_iterations"`
		GroundedMode  bool `yaml:"grounded_mode"`
		SearchTopK    int  `yaml:"search_top_k"`
		RerankTopK    int  `yaml:"rerank_top_k"`
	} `yaml:"research"`

	SelfEvolve struct {
		NumVariants    int `yaml:"num_variants"`
		EvolutionSteps int `yaml:"evolution_steps"`
	} `yaml:"self_evolve"`

	Structure struct {
		MinChapters int `yaml:"min_chapters"`
		MaxChapters int `yaml:"max_chapters"`
		MinSections int `yaml:"min_sections"`
		MaxSections int `yaml:"max_sections"`
	} `yaml:"structure"`

	ContextBudget struct {
		MaxTokens           int `yaml:"max_tokens"`
		SlidingWindow       int `yaml:"sliding_window"`
		SummaryTargetTokens int `yaml:"summary_target_tokens"`
	} `yaml:"context_budget"`

	Quality struct {
		MinWordCount            int     `yaml:"min_word_count"`
		TargetWordCount         int     `yaml:"target_word_count"`
		MinCitationDensity      float64 `yaml:"min_citation_density"`
		MaxRedundancy           float64 `yaml:"max_redundancy"`
		MinCoherence            float64 `yaml:"min_coherence"`
		MaxRegenerationAttempts int     `yaml:"max_regeneration_attempts"`
	} `yaml:"quality"`

	Retrieval struct {
		LegacyMode bool `yaml:"legacy_mode"`
	} `yaml:"retrieval"`

	Server struct {
		Addr              string `yaml:"addr"`
		ReadTimeoutSecs   int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSecs  int    `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns a Config populated with the documented defaults (the
// thresholds/constants the Python original hardcodes, per spec.md §9's
// "expose as configuration" decision).
func Default() *Config {
	var cfg Config
	cfg.Provider.Model = "gemini-flash-latest"
	cfg.Provider.TimeoutSecs = 120
	cfg.Provider.MaxRetries = 3
	cfg.Provider.RetryDelays = []float64{1.0, 2.0, 4.0}

	cfg.Research.MaxIterations = 1
	cfg.Research.GroundedMode = true
	cfg.Research.SearchTopK = 50
	cfg.Research.RerankTopK = 20

	cfg.SelfEvolve.NumVariants = 1
	cfg.SelfEvolve.EvolutionSteps = 1

	cfg.Structure.MinChapters = 2
	cfg.Structure.MaxChapters = 7
	cfg.Structure.MinSections = 3
	cfg.Structure.MaxSections = 5

	cfg.ContextBudget.MaxTokens = 8000
	cfg.ContextBudget.SlidingWindow = 5
	cfg.ContextBudget.SummaryTargetTokens = 200

	cfg.Quality.MinWordCount = 300
	cfg.Quality.TargetWordCount = 350
	cfg.Quality.MinCitationDensity = 1.0 / 150.0
	cfg.Quality.MaxRedundancy = 0.70
	cfg.Quality.MinCoherence = 0.8
	cfg.Quality.MaxRegenerationAttempts = 2

	cfg.Server.Addr = ":8080"
	cfg.Server.ReadTimeoutSecs = 30
	cfg.Server.WriteTimeoutSecs = 0 // unbounded: SSE streams

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return &cfg
}

// LoadConfig loads defaults, overlays a YAML file at path (if it exists),
// then applies TTDDR_*-prefixed environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if present.
	_ = godotenv.Load()

	cfg := Default()

	// 2. Overlay YAML config, if the file exists.
	if path != "" {
		if file, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// 3. Override with environment variables.
	if v := os.Getenv("TTDDR_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("TTDDR_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("TTDDR_PROVIDER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Provider.TimeoutSecs = n
		}
	}
	if v := os.Getenv("TTDDR_PROVIDER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Provider.MaxRetries = n
		}
	}
	if v := os.Getenv("TTDDR_RESEARCH_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Research.MaxIterations = n
		}
	}
	if v := os.Getenv("TTDDR_RESEARCH_GROUNDED_MODE"); v != "" {
		cfg.Research.GroundedMode = parseBool(v)
	}
	if v := os.Getenv("TTDDR_RESEARCH_SEARCH_TOP_K"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Research.SearchTopK = n
		}
	}
	if v := os.Getenv("TTDDR_RESEARCH_RERANK_TOP_K"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Research.RerankTopK = n
		}
	}
	if v := os.Getenv("TTDDR_SELF_EVOLVE_NUM_VARIANTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SelfEvolve.NumVariants = n
		}
	}
	if v := os.Getenv("TTDDR_SELF_EVOLVE_EVOLUTION_STEPS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SelfEvolve.EvolutionSteps = n
		}
	}
	if v := os.Getenv("TTDDR_QUALITY_MIN_WORD_COUNT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Quality.MinWordCount = n
		}
	}
	if v := os.Getenv("TTDDR_QUALITY_TARGET_WORD_COUNT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Quality.TargetWordCount = n
		}
	}
	if v := os.Getenv("TTDDR_QUALITY_MIN_CITATION_DENSITY"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Quality.MinCitationDensity = f
		}
	}
	if v := os.Getenv("TTDDR_QUALITY_MAX_REDUNDANCY"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Quality.MaxRedundancy = f
		}
	}
	if v := os.Getenv("TTDDR_QUALITY_MIN_COHERENCE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Quality.MinCoherence = f
		}
	}
	if v := os.Getenv("TTDDR_RETRIEVAL_LEGACY_MODE"); v != "" {
		cfg.Retrieval.LegacyMode = parseBool(v)
	}
	if v := os.Getenv("TTDDR_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TTDDR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TTDDR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("provider API key is required: set TTDDR_PROVIDER_API_KEY or provider.api_key in config")
	}

	return cfg, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
