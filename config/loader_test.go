package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "specflow.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specflow.yaml")
	content := `
llm:
  model: gpt-4o-mini
  temperature: 0.7
  timeout: 30s
pipeline:
  input_folder: /data/in
  output_folder: /data/out
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "/data/in", cfg.Pipeline.InputFolder)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, "specflow.db", cfg.Database.Path)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/specflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPECFLOW_LLM_API_KEY", "sk-env")
	t.Setenv("SPECFLOW_LLM_TEMPERATURE", "0.5")
	t.Setenv("SPECFLOW_LLM_TIMEOUT", "45s")
	t.Setenv("SPECFLOW_DATABASE_PATH", ":memory:")
	t.Setenv("SPECFLOW_METRICS_ENABLED", "false")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.InDelta(t, 0.5, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "specflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: from-file\n"), 0o644))
	t.Setenv("SPECFLOW_LLM_MODEL", "from-env")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
}

func TestLoad_ValidationFails(t *testing.T) {
	t.Setenv("SPECFLOW_LOG_LEVEL", "loud")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoad_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.LLM.APIKey == "" {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("SPECFLOW_LLM_REQUESTS_PER_MINUTE", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPECFLOW_LLM_REQUESTS_PER_MINUTE")
}
