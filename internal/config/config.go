// Package config handles VOTSai configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/votsai/config.yaml, /etc/votsai/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "votsai", "config.yaml"))
	}

	paths = append(paths, "/etc/votsai/config.yaml")
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

// Config holds all VOTSai configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Backends  BackendsConfig  `yaml:"backends"`
	Memory    MemoryConfig    `yaml:"memory"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Orchestra OrchestraConfig `yaml:"orchestrator"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// BackendsConfig defines the answer-generation backends.
type BackendsConfig struct {
	// Default is the backend used when routing falls through every rule.
	Default string `yaml:"default"`

	Local      LocalBackendConfig `yaml:"local"`
	Perplexity APIBackendConfig   `yaml:"perplexity"`
	DeepSeek   APIBackendConfig   `yaml:"deepseek"`
}

// LocalBackendConfig defines the on-device Ollama backend.
type LocalBackendConfig struct {
	BaseURL string `yaml:"base_url"` // Default: http://localhost:11434
	Model   string `yaml:"model"`
}

// APIBackendConfig defines a remote OpenAI-compatible backend.
type APIBackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	// Keys never live in the config file itself.
	APIKeyEnv string `yaml:"api_key_env"`
}

// MemoryConfig defines the two-tier memory store settings.
type MemoryConfig struct {
	// ShortTermMax is the short-term buffer capacity.
	ShortTermMax int `yaml:"short_term_max"`
	// RelevantLimit caps how many long-term records context assembly pulls.
	RelevantLimit int `yaml:"relevant_limit"`
	// PersistRetries bounds eviction persistence retry attempts.
	PersistRetries int `yaml:"persist_retries"`
}

// RateLimitConfig defines sliding-window admission thresholds.
type RateLimitConfig struct {
	RequestsPerMinute  int `yaml:"requests_per_minute"`
	RequestsPerHour    int `yaml:"requests_per_hour"`
	RequestsPerDay     int `yaml:"requests_per_day"`
	InputTokensPerDay  int `yaml:"input_tokens_per_day"`
	OutputTokensPerDay int `yaml:"output_tokens_per_day"`
}

// OrchestraConfig defines per-request orchestration settings.
type OrchestraConfig struct {
	// DefaultTimeoutSec is the backend answer timeout in seconds.
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
	// WebFetchTimeoutSec time-boxes external content fetching,
	// independently of the answer timeout.
	WebFetchTimeoutSec int `yaml:"web_fetch_timeout_sec"`
	// MaxConcurrent bounds in-flight requests (semaphore admission gate).
	MaxConcurrent int `yaml:"max_concurrent"`
	// ContextBudgetTokens caps assembled memory context size.
	ContextBudgetTokens int `yaml:"context_budget_tokens"`
}

// DefaultTimeout returns the answer timeout as a duration.
func (o OrchestraConfig) DefaultTimeout() time.Duration {
	return time.Duration(o.DefaultTimeoutSec) * time.Second
}

// WebFetchTimeout returns the web-fetch timeout as a duration.
func (o OrchestraConfig) WebFetchTimeout() time.Duration {
	return time.Duration(o.WebFetchTimeoutSec) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8080},
		DataDir: ".",
		Backends: BackendsConfig{
			Default: "local",
			Local: LocalBackendConfig{
				BaseURL: "http://localhost:11434",
				Model:   "deepseek-r1:7b",
			},
			Perplexity: APIBackendConfig{
				BaseURL:   "https://api.perplexity.ai",
				Model:     "sonar-pro",
				APIKeyEnv: "PERPLEXITY_API_KEY",
			},
			DeepSeek: APIBackendConfig{
				BaseURL:   "https://api.deepseek.com",
				Model:     "deepseek-chat",
				APIKeyEnv: "DEEPSEEK_API_KEY",
			},
		},
		Memory: MemoryConfig{
			ShortTermMax:   15,
			RelevantLimit:  3,
			PersistRetries: 3,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute:  20,
			RequestsPerHour:    300,
			RequestsPerDay:     1000,
			InputTokensPerDay:  200_000,
			OutputTokensPerDay: 50_000,
		},
		Orchestra: OrchestraConfig{
			DefaultTimeoutSec:   60,
			WebFetchTimeoutSec:  15,
			MaxConcurrent:       8,
			ContextBudgetTokens: 2048,
		},
	}
}
