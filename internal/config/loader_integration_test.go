package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Integration tests that exercise the full LoadFrom pipeline:
// defaults < YAML < environment variables.

func TestLoadFrom_FullHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
stream:
  write_timeout: 2s
logging:
  level: "debug"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SSEPUSH_PORT", "7070")
	t.Setenv("SSEPUSH_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML: got port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env should override YAML: got level %q, want warn", cfg.Logging.Level)
	}
	if cfg.Stream.WriteTimeout != 2*time.Second {
		t.Errorf("YAML should override defaults: got write timeout %v, want 2s", cfg.Stream.WriteTimeout)
	}
	if cfg.Stream.Retry != 5*time.Second {
		t.Errorf("defaults should survive: got retry %v, want 5s", cfg.Stream.Retry)
	}
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port, got %q", cfg.Server.Port)
	}
}

func TestLoadFrom_InvalidAfterOverlay(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte("push:\n  max_parallel: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(yamlPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "push.max_parallel") {
		t.Errorf("expected max_parallel in error, got %v", err)
	}
}

func TestLoad_ConfigEnvPath(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "alt.yaml")
	if err := os.WriteFile(yamlPath, []byte("server:\n  port: \"6060\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SSEPUSH_CONFIG", yamlPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected port from SSEPUSH_CONFIG file, got %q", cfg.Server.Port)
	}
}

// A file setting every section must decode under strict key checking.
func TestLoadFrom_EverySection(t *testing.T) {
	yamlPath := filepath.Join(t.TempDir(), "full.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "8081"
  cors_origin: "https://app.example.com, https://admin.example.com"
  read_header_timeout: 5s
  shutdown_timeout: 20s
stream:
  retry: 2s
  write_timeout: 3s
  heartbeat: 15s
  handshake_message: "hello"
push:
  max_parallel: 16
  max_body_bytes: 4096
nats:
  url: "nats://nats:4222"
  kv_bucket: "push_dedupe"
  breaker_failures: 3
  breaker_timeout: 1m
cache:
  l1_max_size_mb: 32
  idempotency_ttl: 1h
rate:
  requests_per_second: 5
  burst: 20
  cleanup_interval: 1m
  max_idle_time: 2m
logging:
  level: "warn"
  service: "push-eu"
  async: true
otel:
  enabled: true
  endpoint: "otel-collector:4317"
  service_name: "push-eu"
  insecure: false
`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.NATS.KVBucket != "push_dedupe" || cfg.NATS.BreakerFailures != 3 || cfg.NATS.BreakerTimeout != time.Minute {
		t.Errorf("unexpected nats section: %+v", cfg.NATS)
	}
	if cfg.Stream.HandshakeMessage != "hello" || cfg.Stream.Heartbeat != 15*time.Second {
		t.Errorf("unexpected stream section: %+v", cfg.Stream)
	}
	if !cfg.Logging.Async || !cfg.OTEL.Enabled || cfg.OTEL.Insecure {
		t.Errorf("unexpected logging/otel sections: %+v %+v", cfg.Logging, cfg.OTEL)
	}
	if cfg.Cache.IdempotencyTTL != time.Hour || cfg.Rate.Burst != 20 {
		t.Errorf("unexpected cache/rate sections: %+v %+v", cfg.Cache, cfg.Rate)
	}
}
