// Package config handles agenttree configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/hierarchy"
)

// DefaultSearchPaths returns the config file search order.
// Then: ./agenttree.yaml, ~/.config/agenttree/config.yaml, /etc/agenttree/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"agenttree.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agenttree", "config.yaml"))
	}

	paths = append(paths, "/etc/agenttree/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all agenttree configuration.
type Config struct {
	Root       RootConfig       `yaml:"root"`
	Policy     PolicyConfig     `yaml:"policy"`
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
	Backend    BackendConfig    `yaml:"backend"`
	Assertions AssertionsConfig `yaml:"assertions"`
}

// RootConfig describes the supervising root agent.
type RootConfig struct {
	Name        string                `yaml:"name"`
	Budget      int64                 `yaml:"budget"`
	Mode        core.Mode             `yaml:"mode"`
	Commitments []core.CommitmentSpec `yaml:"commitments"`
}

// PolicyConfig tunes the orchestrator.
type PolicyConfig struct {
	SendCost          int64         `yaml:"send_cost"`
	SendRetries       int           `yaml:"send_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	MaxVerifyRounds   int           `yaml:"max_verify_rounds"`
	VerifyConcurrency int           `yaml:"verify_concurrency"`
	MaxTurns          int           `yaml:"max_turns"`
	HistoryLimit      int           `yaml:"history_limit"`
	WakeInterval      time.Duration `yaml:"wake_interval"`
	WakePrompt        string        `yaml:"wake_prompt"`
	CutBaitAfter      time.Duration `yaml:"cut_bait_after"`
	EscalateFailures  bool          `yaml:"escalate_failures"`
}

// LoggingConfig selects level and format ("json" or "text").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the persistence driver ("memory" or "sqlite").
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// BackendConfig selects the LLM provider ("mock", "anthropic" or "openai").
type BackendConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int64   `yaml:"max_tokens"`
	System        string  `yaml:"system"`
	Stream        bool    `yaml:"stream"`
	TokensPerUnit int64   `yaml:"tokens_per_unit"`
}

// AssertionsConfig configures the shell assertion runner.
type AssertionsConfig struct {
	Dir            string        `yaml:"dir"`
	Env            []string      `yaml:"env"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// Load reads configuration from a YAML file. Environment variables are
// expanded and unset fields keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Root: RootConfig{
			Name:   "root",
			Budget: 1000,
			Mode:   core.ModeInteractive,
		},
		Policy: PolicyConfig{
			SendCost:          1,
			SendRetries:       2,
			RetryBackoff:      500 * time.Millisecond,
			MaxVerifyRounds:   3,
			VerifyConcurrency: 4,
			MaxTurns:          32,
			HistoryLimit:      50,
			WakePrompt:        "Wake up and continue your task.",
			EscalateFailures:  true,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Store:   StoreConfig{Driver: "memory"},
		Backend: BackendConfig{Provider: "mock", Temperature: 0.7, MaxTokens: 4096},
		Assertions: AssertionsConfig{
			MaxOutputBytes: 16 * 1024,
			DefaultTimeout: 2 * time.Minute,
		},
	}
}

// Validate checks the configuration for values the library would reject
// later with less context.
func (c *Config) Validate() error {
	var errs []error

	if err := hierarchy.ValidateName(c.Root.Name); err != nil {
		errs = append(errs, fmt.Errorf("root.name: %w", err))
	}
	if c.Root.Budget < 0 {
		errs = append(errs, fmt.Errorf("root.budget: %w: %d", core.ErrInvalidBudget, c.Root.Budget))
	}
	switch c.Root.Mode {
	case "", core.ModeInteractive, core.ModeAutonomous:
	default:
		errs = append(errs, fmt.Errorf("root.mode: unknown mode %q", c.Root.Mode))
	}

	if c.Policy.SendCost < 0 {
		errs = append(errs, fmt.Errorf("policy.send_cost must not be negative"))
	}
	if c.Policy.SendRetries < 0 {
		errs = append(errs, fmt.Errorf("policy.send_retries must not be negative"))
	}
	if c.Policy.MaxVerifyRounds < 0 {
		errs = append(errs, fmt.Errorf("policy.max_verify_rounds must not be negative"))
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	switch c.Store.Driver {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	switch c.Backend.Provider {
	case "", "mock", "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("backend.provider: unknown provider %q", c.Backend.Provider))
	}

	return errors.Join(errs...)
}
