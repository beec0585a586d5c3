package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Orchestration.CorrelationCapacity != 20 {
		t.Errorf("got capacity %d, want 20", cfg.Orchestration.CorrelationCapacity)
	}
	if cfg.OracleTimeout() != 20*time.Second {
		t.Errorf("got timeout %s, want 20s", cfg.OracleTimeout())
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("got port %d, want 8080", cfg.Server.Port)
	}
}

func TestParseSubstitutesEnv(t *testing.T) {
	t.Setenv("AOS_TEST_KEY", "sk-from-env")
	raw := `{
		"providers": [{"id": "main", "type": "openai", "api_key": "${AOS_TEST_KEY}"}],
		"database": {"redis": {"url": "${AOS_TEST_MISSING:redis://localhost:6379}"}}
	}`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers[0].APIKey != "sk-from-env" {
		t.Errorf("got api key %q", cfg.Providers[0].APIKey)
	}
	if cfg.Database.Redis.URL != "redis://localhost:6379" {
		t.Errorf("got redis url %q", cfg.Database.Redis.URL)
	}
}

func TestValidateRejectsUnknownBinding(t *testing.T) {
	raw := `{
		"providers": [{"id": "main", "type": "openai"}],
		"oracle": {"bindings": {"classify": "ghost"}}
	}`
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error %q should name the missing provider", err)
	}
}

func TestValidateRejectsDuplicateProviders(t *testing.T) {
	raw := `{"providers": [{"id": "a"}, {"id": "a"}]}`
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected duplicate provider error")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aos.json")
	if err := os.WriteFile(path, []byte(`{"admins": ["U1"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsAdmin("U1") || cfg.IsAdmin("U2") {
		t.Errorf("admin check wrong: %v", cfg.Admins)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
