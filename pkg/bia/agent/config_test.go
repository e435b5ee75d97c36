package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nao-existe.yaml"))
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.API.Model != "gpt-4o-mini" {
			t.Errorf("model = %q, want gpt-4o-mini", cfg.API.Model)
		}
		if !cfg.Learning.Enabled {
			t.Error("learning should default to enabled")
		}
		if cfg.Learning.ApproveThreshold != 0.85 {
			t.Errorf("threshold = %v, want 0.85", cfg.Learning.ApproveThreshold)
		}
		if cfg.SessionTTL() != 24*time.Hour {
			t.Errorf("session TTL = %v, want 24h", cfg.SessionTTL())
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `api:
  model: gpt-4o
  timeout_seconds: 30
session:
  ttl_hours: 48
  window: 10
learning:
  enabled: false
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.API.Model != "gpt-4o" {
			t.Errorf("model = %q, want gpt-4o", cfg.API.Model)
		}
		if cfg.APITimeout() != 30*time.Second {
			t.Errorf("timeout = %v, want 30s", cfg.APITimeout())
		}
		if cfg.SessionTTL() != 48*time.Hour {
			t.Errorf("TTL = %v, want 48h", cfg.SessionTTL())
		}
		if cfg.Learning.Enabled {
			t.Error("learning should be disabled")
		}
		// Untouched sections keep their defaults.
		if cfg.Database.Path != "./data/bia.db" {
			t.Errorf("database path = %q, want default", cfg.Database.Path)
		}
	})

	t.Run("expands env references", func(t *testing.T) {
		t.Setenv("TEST_BIA_KEY", "sk-expandida")
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `api:
  api_key: ${TEST_BIA_KEY}
  base_url: ${TEST_BIA_MISSING_URL}
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.API.APIKey != "sk-expandida" {
			t.Errorf("api_key = %q, want sk-expandida", cfg.API.APIKey)
		}
		// Unset variables stay literal so the problem is visible.
		if cfg.API.BaseURL != "${TEST_BIA_MISSING_URL}" {
			t.Errorf("base_url = %q, want literal reference", cfg.API.BaseURL)
		}
	})
}
