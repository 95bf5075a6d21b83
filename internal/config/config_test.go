package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "lld-core.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LLD_WORKER_ENABLED", "")
	t.Setenv("LLD_POLL_INTERVAL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.HTTPAddr != ":8081" || !cfg.Worker.Enabled || cfg.Worker.PollInterval != 400*time.Millisecond {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	p := writeConfig(t, `
http_addr: ":9000"
log_level: debug
database_url: postgres://lld@db/lld
worker:
  enabled: false
  poll_interval: 2s
  max_runtime: 1m
`)
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("LLD_MAX_RUNTIME", "")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Fatalf("expected env to override http_addr, got %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" || cfg.DatabaseURL != "postgres://lld@db/lld" {
		t.Fatalf("unexpected file values %+v", cfg)
	}
	if cfg.Worker.Enabled || cfg.Worker.PollInterval != 2*time.Second || cfg.Worker.MaxRuntime != time.Minute {
		t.Fatalf("unexpected worker config %+v", cfg.Worker)
	}
}

func TestLoad_UnknownKey(t *testing.T) {
	p := writeConfig(t, "http_adr: \":9000\"\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"LLD_POLL_INTERVAL":  "1s",
		"LLD_WORKER_ENABLED": "false",
		"DATABASE_URL":       " postgres://x ",
	}))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Worker.PollInterval != time.Second || cfg.Worker.Enabled || cfg.DatabaseURL != "postgres://x" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	tests := []struct {
		key, value string
	}{
		{"LLD_POLL_INTERVAL", "soon"},
		{"LLD_MAX_RUNTIME", "10"},
		{"LLD_WORKER_ENABLED", "maybe"},
	}
	for _, tt := range tests {
		cfg := Default()
		err := cfg.applyEnv(envMap(map[string]string{tt.key: tt.value}))
		if err == nil || !strings.Contains(err.Error(), tt.key) {
			t.Fatalf("%s=%q: expected error naming the variable, got %v", tt.key, tt.value, err)
		}
	}
}
