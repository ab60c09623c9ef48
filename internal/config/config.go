// Package config loads the service configuration from a YAML file with
// sensible defaults for local development. Secrets never live in the file:
// API keys are read from the environment via the configured variable names.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/elvinasadov/agroflow/internal/resilience"
	"github.com/elvinasadov/agroflow/internal/store"
)

// Config is the root configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Store  store.Config `yaml:"store" mapstructure:"store"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Tools  ToolsConfig  `yaml:"tools" mapstructure:"tools"`
	FarmDB FarmDBConfig `yaml:"farm_db" mapstructure:"farm_db"`

	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// ModelConfig selects and tunes the language-model provider.
type ModelConfig struct {
	// Provider is "anthropic", "openai" or "mock".
	Provider string `yaml:"provider" mapstructure:"provider"`
	Name     string `yaml:"name" mapstructure:"name"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`

	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// APIKey resolves the provider key from the environment.
func (m ModelConfig) APIKey() string {
	return os.Getenv(m.APIKeyEnv)
}

// ToolsConfig configures the external rules/tools service.
type ToolsConfig struct {
	BaseURL    string                 `yaml:"base_url" mapstructure:"base_url"`
	Retry      resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
	StaleAfter time.Duration          `yaml:"health_stale_after" mapstructure:"health_stale_after"`
}

// FarmDBConfig points at the read-only farm database queried by the
// NL-to-SQL pipeline.
type FarmDBConfig struct {
	Path string `yaml:"path" mapstructure:"path"`

	// Schema is a plain-text description of the queryable tables, injected
	// into the query-generation prompt.
	Schema string `yaml:"schema" mapstructure:"schema"`
}

// Default returns the local-development configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Store: store.DefaultConfig(),
		Model: ModelConfig{
			Provider:    "anthropic",
			Name:        "claude-sonnet-4-20250514",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			Temperature: 0.3,
			MaxTokens:   2048,
		},
		Tools: ToolsConfig{
			Retry:      resilience.DefaultRetryConfig(),
			StaleAfter: 60 * time.Second,
		},
		FarmDB: FarmDBConfig{
			Path: "farms.db",
			Schema: "farms(id INTEGER, name TEXT, region TEXT, area_hectares REAL, crop TEXT)\n" +
				"fields(id INTEGER, farm_id INTEGER, soil_type TEXT, irrigated INTEGER)\n" +
				"harvests(id INTEGER, field_id INTEGER, year INTEGER, yield_tons REAL)",
		},
		LogLevel: "info",
	}
}

// Load reads the file at path over the defaults. A missing path returns the
// defaults untouched, so a bare binary runs without any file at all.
//
// YAML is first parsed into a generic map, then decoded with mapstructure so
// duration fields accept human-readable strings ("5s", "1m") and unknown
// keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}
