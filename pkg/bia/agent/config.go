// Package agent – config.go defines the configuration tree for the BIA
// agent. Values come from config.yaml with ${VAR} expansion from the
// environment (.env loaded via godotenv).
package agent

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/slimquality/bia/pkg/bia/memory"
)

// Config holds all agent configuration.
type Config struct {
	// API configures the LLM provider endpoint.
	API APIConfig `yaml:"api"`

	// Database configures the central SQLite database paths.
	Database DatabaseConfig `yaml:"database"`

	// Embeddings configures the embedding provider for the memory store.
	Embeddings memory.EmbeddingConfig `yaml:"embeddings"`

	// Session configures conversation history retention.
	Session SessionConfig `yaml:"session"`

	// Learning configures the behavior learning loop.
	Learning LearningConfig `yaml:"learning"`

	// Vault is the path to the encrypted credential vault.
	Vault string `yaml:"vault"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the OpenAI-compatible LLM endpoint.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	// TimeoutSeconds bounds each completion call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DatabaseConfig holds the SQLite file paths.
type DatabaseConfig struct {
	// Path is the central database (tenants, catalog, sessions, patterns).
	Path string `yaml:"path"`
	// MemoryPath is the memory database (chunks, knowledge, FTS index).
	MemoryPath string `yaml:"memory_path"`
}

// SessionConfig configures conversation history.
type SessionConfig struct {
	TTLHours int `yaml:"ttl_hours"`
	Window   int `yaml:"window"`
}

// LearningConfig configures pattern extraction and auto-approval.
type LearningConfig struct {
	Enabled bool `yaml:"enabled"`
	// ApproveThreshold is the minimum confidence for auto-promotion.
	ApproveThreshold float64 `yaml:"approve_threshold"`
	// Schedule is the cron spec for the approval supervisor.
	Schedule string `yaml:"schedule"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			TimeoutSeconds: 60,
		},
		Database: DatabaseConfig{
			Path:       "./data/bia.db",
			MemoryPath: "./data/memory.db",
		},
		Embeddings: memory.DefaultEmbeddingConfig(),
		Session: SessionConfig{
			TTLHours: 24,
			Window:   20,
		},
		Learning: LearningConfig{
			Enabled:          true,
			ApproveThreshold: memory.DefaultApproveThreshold,
			Schedule:         "@every 10m",
		},
		Vault: ".bia.vault",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SessionTTL returns the session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// APITimeout returns the per-call LLM timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// envVarPattern matches ${VAR_NAME} references in config values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig reads and parses a YAML configuration file.
// Loads .env first (never overwriting existing env vars) and expands
// ${VAR} references before parsing. Missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	// godotenv.Load does NOT overwrite existing env vars.
	_ = godotenv.Load(".env")

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"bia.yaml",
		"bia.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
