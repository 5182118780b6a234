package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DataDir == "" {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if cfg.AttitudeMode != "balanced" {
		t.Fatalf("expected balanced attitude mode, got %q", cfg.AttitudeMode)
	}
	if cfg.Providers.Primary != "openai" || len(cfg.Providers.Fallbacks) != 2 {
		t.Fatalf("unexpected provider defaults: %+v", cfg.Providers)
	}
	if cfg.Retry.InitialDelay() != time.Second || cfg.Retry.MaxDelay() != 60*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Breaker.RecoveryTimeout() != 60*time.Second {
		t.Fatalf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
	if cfg.Redis.Addr != "" || cfg.Postgres.DSN != "" {
		t.Fatalf("cache and history must be disabled by default: %+v", cfg)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Port != Default().Port {
		t.Fatalf("expected default port, got %d", cfg.Port)
	}
}

func TestLoadEmptyFileReturnsDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AttitudeMode != "balanced" {
		t.Fatalf("expected defaults from empty file, got %+v", cfg)
	}
}

func TestLoadReadsAndNormalizes(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"port: 9090",
		"data_dir: testdata",
		"attitude_mode: Argumentative",
		"providers:",
		"  primary: ollama",
		"  fallbacks: [Ollama, openai, '', openai]",
		"task:",
		"  default_timeout_seconds: 30",
		"retry:",
		"  max_attempts: 5",
		"breaker:",
		"  failure_threshold: 2",
		"redis:",
		"  addr: localhost:6379",
	}, "\n"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DataDir != "testdata" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.AttitudeMode != "argumentative" {
		t.Fatalf("attitude mode not lowercased: %q", cfg.AttitudeMode)
	}
	// The primary and duplicates are dropped from the fallback list.
	if len(cfg.Providers.Fallbacks) != 1 || cfg.Providers.Fallbacks[0] != "openai" {
		t.Fatalf("fallbacks not normalized: %v", cfg.Providers.Fallbacks)
	}
	if cfg.Task.DefaultTimeout() != 30*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Task.DefaultTimeout())
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Breaker.FailureThreshold != 2 {
		t.Fatalf("unexpected resilience config: %+v %+v", cfg.Retry, cfg.Breaker)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL() != 3600*time.Second {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
}

func TestLoadRejectsInvalidAttitudeMode(t *testing.T) {
	path := writeConfig(t, "attitude_mode: sarcastic\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "attitude_mode") {
		t.Fatalf("expected attitude_mode error, got %v", err)
	}
}

func TestLoadRejectsInvalidRetryAttempts(t *testing.T) {
	path := writeConfig(t, "retry:\n  max_attempts: 0\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "max_attempts") {
		t.Fatalf("expected max_attempts error, got %v", err)
	}
}

func TestLoadRejectsInvalidFailureThreshold(t *testing.T) {
	path := writeConfig(t, "breaker:\n  failure_threshold: -1\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "failure_threshold") {
		t.Fatalf("expected failure_threshold error, got %v", err)
	}
}

func TestLoadRejectsNegativeTimeout(t *testing.T) {
	path := writeConfig(t, "task:\n  default_timeout_seconds: -5\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "default_timeout_seconds") {
		t.Fatalf("expected default_timeout_seconds error, got %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "port: [not a number\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}

func TestZeroTimeoutMeansNoTimeout(t *testing.T) {
	path := writeConfig(t, "task:\n  default_timeout_seconds: 0\nretry:\n  max_attempts: 1\nbreaker:\n  failure_threshold: 1\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Task.DefaultTimeout() != 0 {
		t.Fatalf("expected zero timeout, got %s", cfg.Task.DefaultTimeout())
	}
}
