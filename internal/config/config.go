// Package config provides YAML-based configuration loading for Coinchat.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field empty.
const (
	DefaultMinLength      = 2
	DefaultMaxLength      = 1000
	DefaultRevealRate     = 50.0
	DefaultWelcomeMessage = "Hi! Can I help you?"
	DefaultAIName         = "AI"
	DefaultModel          = "gpt-4o-mini"
	DefaultAPIKeyEnv      = "OPENAI_API_KEY"
	DefaultTimeoutSec     = 30
	DefaultServerPort     = 8090
	DefaultMySQLPort      = 3306
)

// Config is the top-level Coinchat configuration, loaded from coinchat.yaml.
type Config struct {
	UserID       string             `yaml:"user_id"`
	Storage      StorageConfig      `yaml:"storage"`
	Billing      BillingConfig      `yaml:"billing"`
	Messages     MessagesConfig     `yaml:"messages"`
	AI           AIConfig           `yaml:"ai"`
	Presentation PresentationConfig `yaml:"presentation"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// StorageConfig selects the database backing the key-value store and the
// wallet ledger.
type StorageConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// BillingConfig defines the per-message price.
type BillingConfig struct {
	Currency       string `yaml:"currency"`
	CostPerMessage int64  `yaml:"cost_per_message"`
}

// MessagesConfig bounds the length of user-authored messages, in runes.
type MessagesConfig struct {
	MinLength int `yaml:"min_length"`
	MaxLength int `yaml:"max_length"`
}

// AIConfig configures the remote completion service.
type AIConfig struct {
	Name           string `yaml:"name"`
	WelcomeMessage string `yaml:"welcome_message"`
	Provider       string `yaml:"provider"` // "openai" (default) or "mock"
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	SystemPrompt   string `yaml:"system_prompt"`
}

// Timeout returns the per-request timeout as a duration.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

// APIKey reads the API key from the configured environment variable.
func (a AIConfig) APIKey() string {
	return os.Getenv(a.APIKeyEnv)
}

// PresentationConfig holds presentation timing parameters.
type PresentationConfig struct {
	RevealRate float64 `yaml:"reveal_rate"` // runes per second
}

// ServerConfig holds settings for the local HTTP/SSE API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"` // empty logs to stderr
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = defaultSQLitePath()
	}
	if c.Storage.Driver == "mysql" {
		if c.Storage.Host == "" {
			c.Storage.Host = "127.0.0.1"
		}
		if c.Storage.Port == 0 {
			c.Storage.Port = DefaultMySQLPort
		}
		if c.Storage.User == "" {
			c.Storage.User = "root"
		}
		if c.Storage.Database == "" {
			c.Storage.Database = "coinchat"
		}
	}
	if c.Messages.MinLength == 0 {
		c.Messages.MinLength = DefaultMinLength
	}
	if c.Messages.MaxLength == 0 {
		c.Messages.MaxLength = DefaultMaxLength
	}
	if c.AI.Name == "" {
		c.AI.Name = DefaultAIName
	}
	if c.AI.WelcomeMessage == "" {
		c.AI.WelcomeMessage = DefaultWelcomeMessage
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "openai"
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultModel
	}
	if c.AI.APIKeyEnv == "" {
		c.AI.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.AI.TimeoutSec == 0 {
		c.AI.TimeoutSec = DefaultTimeoutSec
	}
	if c.Presentation.RevealRate == 0 {
		c.Presentation.RevealRate = DefaultRevealRate
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.UserID == "" {
		errs = append(errs, "user_id is required")
	}
	switch c.Storage.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q is not supported (sqlite, mysql)", c.Storage.Driver))
	}
	if c.Billing.Currency == "" {
		errs = append(errs, "billing.currency is required")
	}
	if c.Billing.CostPerMessage < 0 {
		errs = append(errs, "billing.cost_per_message must not be negative")
	}
	if c.Messages.MinLength < 1 {
		errs = append(errs, "messages.min_length must be at least 1")
	}
	if c.Messages.MaxLength < c.Messages.MinLength {
		errs = append(errs, "messages.max_length must be >= messages.min_length")
	}
	switch c.AI.Provider {
	case "openai", "mock":
	default:
		errs = append(errs, fmt.Sprintf("ai.provider %q is not supported (openai, mock)", c.AI.Provider))
	}
	if c.AI.TimeoutSec < 0 {
		errs = append(errs, "ai.timeout_sec must not be negative")
	}
	if c.Presentation.RevealRate < 0 {
		errs = append(errs, "presentation.reveal_rate must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not supported", c.Logging.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// defaultSQLitePath places the database under the user's home directory,
// falling back to the working directory.
func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "coinchat.db"
	}
	return filepath.Join(home, ".coinchat", "coinchat.db")
}
