// Package config loads application configuration with the precedence
// defaults, then YAML file, then environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("specflow.yaml").
//	    Load()
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	// LLM configures the chat-completion client used by the extract step.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Pipeline configures the default text-extraction pipeline.
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Database configures the audit-trail store.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log configures logging output.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures the metrics collector.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// LLMConfig configures the LLM client.
type LLMConfig struct {
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	Model             string        `yaml:"model" env:"MODEL"`
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Temperature       float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// PipelineConfig configures the default pipeline's folders and manifest.
type PipelineConfig struct {
	Manifest     string `yaml:"manifest" env:"MANIFEST"`
	InputFolder  string `yaml:"input_folder" env:"INPUT_FOLDER"`
	OutputFolder string `yaml:"output_folder" env:"OUTPUT_FOLDER"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" keeps it ephemeral.
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:             "gpt-4o",
			BaseURL:           "https://api.openai.com",
			Temperature:       0.2,
			Timeout:           120 * time.Second,
			RequestsPerMinute: 60,
		},
		Pipeline: PipelineConfig{
			Manifest:     "workflows/text_extraction.yaml",
			InputFolder:  "input",
			OutputFolder: "output",
		},
		Database: DatabaseConfig{
			Path: "specflow.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "specflow",
		},
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature out of range: %v", c.LLM.Temperature)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}
