package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPopulatesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "gemini-flash-latest", cfg.Provider.Model)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)
	assert.Equal(t, []float64{1.0, 2.0, 4.0}, cfg.Provider.RetryDelays)
	assert.Equal(t, 1, cfg.Research.MaxIterations)
	assert.True(t, cfg.Research.GroundedMode)
	assert.Equal(t, 300, cfg.Quality.MinWordCount)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	clearTTDDREnv(t)
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "provider API key is required")
}

func TestLoadConfigOverlaysYAMLThenEnv(t *testing.T) {
	clearTTDDREnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "provider:\n  api_key: from-yaml\n  model: gemini-pro\nresearch:\n  max_iterations: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Provider.APIKey)
	assert.Equal(t, "gemini-pro", cfg.Provider.Model)
	assert.Equal(t, 3, cfg.Research.MaxIterations)

	t.Setenv("TTDDR_PROVIDER_API_KEY", "from-env")
	t.Setenv("TTDDR_RESEARCH_MAX_ITERATIONS", "7")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Provider.APIKey, "env overrides yaml")
	assert.Equal(t, 7, cfg.Research.MaxIterations, "env overrides yaml")
	assert.Equal(t, "gemini-pro", cfg.Provider.Model, "yaml value survives when no env override exists")
}

func TestLoadConfigIgnoresMissingFile(t *testing.T) {
	clearTTDDREnv(t)
	t.Setenv("TTDDR_PROVIDER_API_KEY", "from-env")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Provider.APIKey)
	assert.Equal(t, "gemini-flash-latest", cfg.Provider.Model)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"0", "false", "no", "off", ""} {
		assert.False(t, parseBool(v), v)
	}
}

func clearTTDDREnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] != '=' {
				continue
			}
			key := e[:i]
			if len(key) >= 6 && key[:6] == "TTDDR_" {
				original, ok := os.LookupEnv(key)
				os.Unsetenv(key)
				if ok {
					t.Cleanup(func() { os.Setenv(key, original) })
				}
			}
			break
		}
	}
}
