package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
user_id: alice

storage:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: chat
  database: coinchat_alice

billing:
  currency: CO
  cost_per_message: 5

messages:
  min_length: 3
  max_length: 500

ai:
  name: Sage
  welcome_message: "Hello, I'm a support bot, can I help you?"
  provider: openai
  base_url: https://llm.internal/v1
  model: gpt-4o
  api_key_env: SAGE_KEY
  timeout_sec: 12
  system_prompt: "Be brief."

presentation:
  reveal_rate: 80

server:
  port: 9000

logging:
  level: debug
  development: true
`

const minimalYAML = `
user_id: bob
billing:
  currency: CO
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.UserID != "alice" {
		t.Errorf("UserID = %q, want %q", cfg.UserID, "alice")
	}
	if cfg.Storage.Driver != "mysql" {
		t.Errorf("Storage.Driver = %q, want mysql", cfg.Storage.Driver)
	}
	if cfg.Storage.Host != "10.0.0.5" || cfg.Storage.Port != 3307 {
		t.Errorf("Storage host/port = %s:%d, want 10.0.0.5:3307", cfg.Storage.Host, cfg.Storage.Port)
	}
	if cfg.Storage.User != "chat" {
		t.Errorf("Storage.User = %q, want chat", cfg.Storage.User)
	}
	if cfg.Storage.Database != "coinchat_alice" {
		t.Errorf("Storage.Database = %q, want coinchat_alice", cfg.Storage.Database)
	}
	if cfg.Billing.Currency != "CO" || cfg.Billing.CostPerMessage != 5 {
		t.Errorf("Billing = %+v, want CO/5", cfg.Billing)
	}
	if cfg.Messages.MinLength != 3 || cfg.Messages.MaxLength != 500 {
		t.Errorf("Messages = %+v, want 3..500", cfg.Messages)
	}
	if cfg.AI.Name != "Sage" {
		t.Errorf("AI.Name = %q, want Sage", cfg.AI.Name)
	}
	if cfg.AI.BaseURL != "https://llm.internal/v1" {
		t.Errorf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Errorf("AI.Model = %q, want gpt-4o", cfg.AI.Model)
	}
	if cfg.AI.APIKeyEnv != "SAGE_KEY" {
		t.Errorf("AI.APIKeyEnv = %q, want SAGE_KEY", cfg.AI.APIKeyEnv)
	}
	if cfg.AI.Timeout() != 12*time.Second {
		t.Errorf("AI.Timeout() = %v, want 12s", cfg.AI.Timeout())
	}
	if cfg.AI.SystemPrompt != "Be brief." {
		t.Errorf("AI.SystemPrompt = %q", cfg.AI.SystemPrompt)
	}
	if cfg.Presentation.RevealRate != 80 {
		t.Errorf("Presentation.RevealRate = %v, want 80", cfg.Presentation.RevealRate)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Development {
		t.Errorf("Logging = %+v, want debug/development", cfg.Logging)
	}
}

func TestParse_MinimalConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite (default)", cfg.Storage.Driver)
	}
	if !strings.HasSuffix(cfg.Storage.Path, "coinchat.db") {
		t.Errorf("Storage.Path = %q, want to end with coinchat.db", cfg.Storage.Path)
	}
	if cfg.Billing.CostPerMessage != 0 {
		t.Errorf("Billing.CostPerMessage = %d, want 0", cfg.Billing.CostPerMessage)
	}
	if cfg.Messages.MinLength != DefaultMinLength {
		t.Errorf("Messages.MinLength = %d, want %d", cfg.Messages.MinLength, DefaultMinLength)
	}
	if cfg.Messages.MaxLength != DefaultMaxLength {
		t.Errorf("Messages.MaxLength = %d, want %d", cfg.Messages.MaxLength, DefaultMaxLength)
	}
	if cfg.AI.Name != DefaultAIName {
		t.Errorf("AI.Name = %q, want %q", cfg.AI.Name, DefaultAIName)
	}
	if cfg.AI.WelcomeMessage != DefaultWelcomeMessage {
		t.Errorf("AI.WelcomeMessage = %q, want %q", cfg.AI.WelcomeMessage, DefaultWelcomeMessage)
	}
	if cfg.AI.Provider != "openai" {
		t.Errorf("AI.Provider = %q, want openai", cfg.AI.Provider)
	}
	if cfg.AI.APIKeyEnv != DefaultAPIKeyEnv {
		t.Errorf("AI.APIKeyEnv = %q, want %q", cfg.AI.APIKeyEnv, DefaultAPIKeyEnv)
	}
	if cfg.AI.TimeoutSec != DefaultTimeoutSec {
		t.Errorf("AI.TimeoutSec = %d, want %d", cfg.AI.TimeoutSec, DefaultTimeoutSec)
	}
	if cfg.Presentation.RevealRate != DefaultRevealRate {
		t.Errorf("Presentation.RevealRate = %v, want %v", cfg.Presentation.RevealRate, DefaultRevealRate)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
user_id: carol
storage:
  driver: mysql
billing:
  currency: CO
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.Host != "127.0.0.1" {
		t.Errorf("Storage.Host = %q, want 127.0.0.1", cfg.Storage.Host)
	}
	if cfg.Storage.Port != DefaultMySQLPort {
		t.Errorf("Storage.Port = %d, want %d", cfg.Storage.Port, DefaultMySQLPort)
	}
	if cfg.Storage.User != "root" {
		t.Errorf("Storage.User = %q, want root", cfg.Storage.User)
	}
	if cfg.Storage.Database != "coinchat" {
		t.Errorf("Storage.Database = %q, want coinchat", cfg.Storage.Database)
	}
	if cfg.Storage.Path != "" {
		t.Errorf("Storage.Path = %q, want empty for mysql", cfg.Storage.Path)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing user",
			yaml:    "billing:\n  currency: CO\n",
			wantErr: "user_id is required",
		},
		{
			name:    "missing currency",
			yaml:    "user_id: a\n",
			wantErr: "billing.currency is required",
		},
		{
			name:    "negative cost",
			yaml:    "user_id: a\nbilling:\n  currency: CO\n  cost_per_message: -1\n",
			wantErr: "cost_per_message must not be negative",
		},
		{
			name:    "inverted bounds",
			yaml:    "user_id: a\nbilling:\n  currency: CO\nmessages:\n  min_length: 10\n  max_length: 5\n",
			wantErr: "max_length must be >= messages.min_length",
		},
		{
			name:    "unknown driver",
			yaml:    "user_id: a\nbilling:\n  currency: CO\nstorage:\n  driver: postgres\n",
			wantErr: `storage.driver "postgres" is not supported`,
		},
		{
			name:    "unknown provider",
			yaml:    "user_id: a\nbilling:\n  currency: CO\nai:\n  provider: claude\n",
			wantErr: `ai.provider "claude" is not supported`,
		},
		{
			name:    "unknown log level",
			yaml:    "user_id: a\nbilling:\n  currency: CO\nlogging:\n  level: trace\n",
			wantErr: `logging.level "trace" is not supported`,
		},
		{
			name:    "negative reveal rate",
			yaml:    "user_id: a\nbilling:\n  currency: CO\npresentation:\n  reveal_rate: -2\n",
			wantErr: "reveal_rate must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_MultipleErrorsReported(t *testing.T) {
	_, err := Parse([]byte("storage:\n  driver: nope\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"user_id is required", "billing.currency is required", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to contain %q", err.Error(), want)
		}
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("user_id: [unterminated"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coinchat.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UserID != "bob" {
		t.Errorf("UserID = %q, want bob", cfg.UserID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/coinchat.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestAIConfig_APIKey(t *testing.T) {
	t.Setenv("COINCHAT_TEST_KEY", "sk-test")
	a := AIConfig{APIKeyEnv: "COINCHAT_TEST_KEY"}
	if got := a.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q, want sk-test", got)
	}
}
