// Package config loads runtime configuration from YAML with defaults and
// normalization. API keys are deliberately absent here; they come from the
// environment so they never land in a config file on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort                = 8080
	defaultDataDir             = "data"
	defaultAttitudeMode        = "balanced"
	defaultTaskTimeoutSeconds  = 120
	defaultMaxAttempts         = 3
	defaultInitialDelayMs      = 1000
	defaultMaxDelayMs          = 60000
	defaultExponentialBase     = 2.0
	defaultFailureThreshold    = 5
	defaultRecoverySeconds     = 60
	defaultCacheTTLSeconds     = 3600
	defaultOllamaEndpoint      = "http://localhost:11434"
	defaultOllamaModel         = "llama2"
	defaultShutdownGraceSecond = 10
)

type Config struct {
	Port            int    `yaml:"port"`
	DataDir         string `yaml:"data_dir"`
	AutoSaveResults bool   `yaml:"auto_save_results"`
	AttitudeMode    string `yaml:"attitude_mode"`

	Providers ProvidersConfig `yaml:"providers"`
	Task      TaskConfig      `yaml:"task"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
}

type ProvidersConfig struct {
	Primary        string   `yaml:"primary"`
	Fallbacks      []string `yaml:"fallbacks"`
	OpenAIModel    string   `yaml:"openai_model"`
	AnthropicModel string   `yaml:"anthropic_model"`
	OllamaEndpoint string   `yaml:"ollama_endpoint"`
	OllamaModel    string   `yaml:"ollama_model"`
}

type TaskConfig struct {
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
	ShutdownGraceSeconds  int `yaml:"shutdown_grace_seconds"`
}

func (t TaskConfig) DefaultTimeout() time.Duration {
	return time.Duration(t.DefaultTimeoutSeconds) * time.Second
}

func (t TaskConfig) ShutdownGrace() time.Duration {
	return time.Duration(t.ShutdownGraceSeconds) * time.Second
}

type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	InitialDelayMs  int     `yaml:"initial_delay_ms"`
	MaxDelayMs      int     `yaml:"max_delay_ms"`
	ExponentialBase float64 `yaml:"exponential_base"`
}

func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

type BreakerConfig struct {
	FailureThreshold       int `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds int `yaml:"recovery_timeout_seconds"`
}

func (b BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(b.RecoveryTimeoutSeconds) * time.Second
}

// RedisConfig enables the analysis cache when Addr is set.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// PostgresConfig enables the analysis history when DSN is set.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:            defaultPort,
		DataDir:         defaultDataDir,
		AutoSaveResults: true,
		AttitudeMode:    defaultAttitudeMode,
		Providers: ProvidersConfig{
			Primary:        "openai",
			Fallbacks:      []string{"anthropic", "ollama"},
			OllamaEndpoint: defaultOllamaEndpoint,
			OllamaModel:    defaultOllamaModel,
		},
		Task: TaskConfig{
			DefaultTimeoutSeconds: defaultTaskTimeoutSeconds,
			ShutdownGraceSeconds:  defaultShutdownGraceSecond,
		},
		Retry: RetryConfig{
			MaxAttempts:     defaultMaxAttempts,
			InitialDelayMs:  defaultInitialDelayMs,
			MaxDelayMs:      defaultMaxDelayMs,
			ExponentialBase: defaultExponentialBase,
		},
		Breaker: BreakerConfig{
			FailureThreshold:       defaultFailureThreshold,
			RecoveryTimeoutSeconds: defaultRecoverySeconds,
		},
		Redis: RedisConfig{
			TTLSeconds: defaultCacheTTLSeconds,
		},
	}
}

// Load reads YAML config from path. A missing or empty file yields defaults
// with no error; a malformed or invalid file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	c.AttitudeMode = strings.ToLower(strings.TrimSpace(c.AttitudeMode))
	switch c.AttitudeMode {
	case "":
		c.AttitudeMode = defaultAttitudeMode
	case "argumentative", "balanced", "helpful":
	default:
		return fmt.Errorf("invalid attitude_mode: %q", c.AttitudeMode)
	}

	c.Providers.Primary = strings.TrimSpace(c.Providers.Primary)
	if c.Providers.Primary == "" {
		c.Providers.Primary = "openai"
	}
	c.Providers.Fallbacks = normalizeNames(c.Providers.Fallbacks, c.Providers.Primary)
	if c.Providers.OllamaEndpoint == "" {
		c.Providers.OllamaEndpoint = defaultOllamaEndpoint
	}
	if c.Providers.OllamaModel == "" {
		c.Providers.OllamaModel = defaultOllamaModel
	}

	if c.Task.DefaultTimeoutSeconds < 0 {
		return fmt.Errorf("invalid default_timeout_seconds: %d", c.Task.DefaultTimeoutSeconds)
	}
	if c.Task.ShutdownGraceSeconds <= 0 {
		c.Task.ShutdownGraceSeconds = defaultShutdownGraceSecond
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("invalid max_attempts: %d (must be >= 1)", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialDelayMs <= 0 {
		c.Retry.InitialDelayMs = defaultInitialDelayMs
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = defaultMaxDelayMs
	}
	if c.Retry.ExponentialBase <= 1 {
		c.Retry.ExponentialBase = defaultExponentialBase
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("invalid failure_threshold: %d (must be >= 1)", c.Breaker.FailureThreshold)
	}
	if c.Breaker.RecoveryTimeoutSeconds <= 0 {
		c.Breaker.RecoveryTimeoutSeconds = defaultRecoverySeconds
	}

	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = defaultCacheTTLSeconds
	}
	return nil
}

// normalizeNames trims, lowercases, dedupes and drops the primary from the
// fallback list.
func normalizeNames(in []string, primary string) []string {
	seen := map[string]struct{}{primary: {}}
	out := make([]string, 0, len(in))
	for _, name := range in {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
