// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the planweave configuration.
type Config struct {
	LLM     LLMConfig     `toml:"llm"`     // Plan/code generation model settings
	Sandbox SandboxConfig `toml:"sandbox"` // Generated-code execution settings
	Limits  LimitsConfig  `toml:"limits"`  // Retry and regeneration budgets
	Ledger  LedgerConfig  `toml:"ledger"`  // Run ledger persistence
	Events  EventsConfig  `toml:"events"`  // Optional lifecycle event publishing
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	APIKeyEnv  string `toml:"api_key_env"`
	MaxTokens  int    `toml:"max_tokens"`
	MaxRetries int    `toml:"max_retries"` // transient-error retries per call, 0 uses the adapter default
}

// SandboxConfig contains execution sandbox settings.
type SandboxConfig struct {
	Interpreter    string `toml:"interpreter"`     // interpreter binary, default "python3"
	Strategy       string `toml:"strategy"`        // "session" or "process"
	TimeoutSeconds int    `toml:"timeout_seconds"` // per-attempt wall clock limit
	Workdir        string `toml:"workdir"`         // run working directory; artifacts land under <workdir>/outputs
}

// LimitsConfig bounds the synthesis and planning retry loops.
type LimitsConfig struct {
	MaxIterations   int `toml:"max_iterations"`   // per-task synthesis attempts
	RepeatThreshold int `toml:"repeat_threshold"` // identical error kinds before giving up
	PlanAttempts    int `toml:"plan_attempts"`    // plan regeneration budget
}

// LedgerConfig contains run ledger storage settings.
type LedgerConfig struct {
	Dir string `toml:"dir"`
}

// EventsConfig configures optional NATS publishing of task lifecycle events.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // empty disables publishing
	Subject string `toml:"subject"`  // subject prefix, default "planweave.events"
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Sandbox: SandboxConfig{
			Interpreter:    "python3",
			Strategy:       "session",
			TimeoutSeconds: 30,
			Workdir:        ".",
		},
		Limits: LimitsConfig{
			MaxIterations:   4,
			RepeatThreshold: 2,
			PlanAttempts:    3,
		},
		Ledger: LedgerConfig{
			Dir: ".planweave/runs",
		},
		Events: EventsConfig{
			Subject: "planweave.events",
		},
	}
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from planweave.toml in the current directory,
// falling back to defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, "planweave.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai", "openai-compat":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
