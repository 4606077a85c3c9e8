// Package config holds global settings for the Yaqith gateway.
// All settings can be configured via environment variables, optionally
// overlaid from a YAML file for deployments that prefer config-as-file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds global settings for the Yaqith gateway.
type Config struct {
	// === Server ===
	ListenAddr string `yaml:"listen_addr"` // HTTP bind address (default: ":8090")

	// === Decision Thresholds (0.0 - 1.0) ===
	// Risk below SafeThreshold = safe, below DangerThreshold = suspicious,
	// at or above = dangerous.
	SafeThreshold   float64 `yaml:"safe_threshold"`   // default: 0.30
	DangerThreshold float64 `yaml:"danger_threshold"` // default: 0.70

	// === Storage ===
	PostgresDSN string `yaml:"postgres_dsn"` // Empty = in-memory audit store
	RedisAddr   string `yaml:"redis_addr"`   // Empty = verdict cache disabled

	// === Classifier Backends ===
	TextModelPath    string  `yaml:"text_model_path"`   // ONNX text model directory (optional)
	OllamaURL        string  `yaml:"ollama_url"`        // Embedding server for semantic matching (optional)
	VisionEndpoint   string  `yaml:"vision_endpoint"`   // Logo analysis service base URL (optional)
	VisionToken      string  `yaml:"vision_token"`      // Bearer token for the vision service (optional)
	TriggerThreshold float64 `yaml:"trigger_threshold"` // Per-modality trigger cutoff (default: 0.50)

	// === Dispatch ===
	AdapterTimeout   time.Duration `yaml:"adapter_timeout"`   // Per-classifier deadline (default: 10s)
	ConcurrencyLimit int           `yaml:"concurrency_limit"` // In-flight classifier calls (default: 64)
	CacheTTL         time.Duration `yaml:"cache_ttl"`         // Verdict cache TTL (default: 5m)

	// === Audit Semantics ===
	// CombinedAttempts records one combined phishing attempt per
	// multi-input scan instead of one per triggering modality.
	CombinedAttempts bool `yaml:"combined_attempts"`
	HistoryLimit     int  `yaml:"history_limit"` // Default chat history page size (default: 50)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	cfg := &Config{
		ListenAddr: GetEnv("YAQITH_LISTEN_ADDR", ":8090"),

		SafeThreshold:   GetEnvFloat("YAQITH_SAFE_THRESHOLD", 0.30),
		DangerThreshold: GetEnvFloat("YAQITH_DANGER_THRESHOLD", 0.70),

		PostgresDSN: GetEnv("YAQITH_POSTGRES_DSN", ""),
		RedisAddr:   GetEnv("YAQITH_REDIS_ADDR", ""),

		TextModelPath:    GetEnv("YAQITH_TEXT_MODEL_PATH", ""),
		OllamaURL:        GetEnv("YAQITH_OLLAMA_URL", ""),
		VisionEndpoint:   GetEnv("YAQITH_VISION_ENDPOINT", ""),
		VisionToken:      GetEnv("YAQITH_VISION_TOKEN", ""),
		TriggerThreshold: GetEnvFloat("YAQITH_TRIGGER_THRESHOLD", 0.50),

		AdapterTimeout:   time.Duration(GetEnvInt("YAQITH_ADAPTER_TIMEOUT_MS", 10000)) * time.Millisecond,
		ConcurrencyLimit: clampInt(GetEnvInt("YAQITH_CONCURRENCY_LIMIT", 64), 1, 4096),
		CacheTTL:         time.Duration(GetEnvInt("YAQITH_CACHE_TTL_SECONDS", 300)) * time.Second,

		CombinedAttempts: GetEnvBool("YAQITH_COMBINED_ATTEMPTS", true),
		HistoryLimit:     clampInt(GetEnvInt("YAQITH_HISTORY_LIMIT", 50), 1, 1000),
	}

	return cfg
}

// Load builds the config from defaults and environment, then overlays a
// YAML file when YAQITH_CONFIG_FILE points at one. Environment variables
// win over defaults; file values win over both, matching how deploys
// pin settings.
func Load() (*Config, error) {
	cfg := NewDefaultConfig()

	if path := os.Getenv("YAQITH_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Bad values fail startup regardless of where they came from.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks threshold ordering and ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.SafeThreshold < 0 || c.SafeThreshold > 1 {
		problems = append(problems, "safe_threshold must be in [0,1]")
	}
	if c.DangerThreshold < 0 || c.DangerThreshold > 1 {
		problems = append(problems, "danger_threshold must be in [0,1]")
	}
	if c.SafeThreshold >= c.DangerThreshold {
		problems = append(problems, "safe_threshold must be below danger_threshold")
	}
	if c.TriggerThreshold < 0 || c.TriggerThreshold > 1 {
		problems = append(problems, "trigger_threshold must be in [0,1]")
	}
	if c.HistoryLimit <= 0 {
		problems = append(problems, "history_limit must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
