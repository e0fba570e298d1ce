package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Port)
	}
	if cfg.Interval() != 300*time.Second {
		t.Errorf("interval = %s, want 5m", cfg.Interval())
	}
	if cfg.FetchConcurrency != 5 {
		t.Errorf("concurrency = %d, want 5", cfg.FetchConcurrency)
	}
	if cfg.TTL() != 30*time.Second {
		t.Errorf("ttl = %s, want 30s", cfg.TTL())
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
port: "9090"
database_url: postgres://localhost/folio
refresh_interval: 2m
fetch_concurrency: 10
cache_ttl: 45s
admin_token: sesame
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %s, want 9090", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://localhost/folio" {
		t.Errorf("database_url = %s", cfg.DatabaseURL)
	}
	if cfg.Interval() != 2*time.Minute {
		t.Errorf("interval = %s, want 2m", cfg.Interval())
	}
	if cfg.FetchConcurrency != 10 {
		t.Errorf("concurrency = %d, want 10", cfg.FetchConcurrency)
	}
	if cfg.TTL() != 45*time.Second {
		t.Errorf("ttl = %s, want 45s", cfg.TTL())
	}
	if cfg.AdminToken != "sesame" {
		t.Errorf("admin_token = %s", cfg.AdminToken)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: \"9090\"\nrefresh_interval: 2m\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	t.Setenv("PORT", "7070")
	t.Setenv("REFRESH_INTERVAL", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Errorf("env should win: port = %s, want 7070", cfg.Port)
	}
	if cfg.Interval() != 90*time.Second {
		t.Errorf("env should win: interval = %s, want 90s", cfg.Interval())
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("FETCH_CONCURRENCY", "0")
	if _, err := Load(""); err == nil {
		t.Error("expected error for zero concurrency")
	}

	t.Setenv("FETCH_CONCURRENCY", "5")
	t.Setenv("REFRESH_INTERVAL", "10ms")
	if _, err := Load(""); err == nil {
		t.Error("expected error for sub-second interval")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
