// Package config loads and validates the gitfolio configuration from a YAML
// file. Configuration is read once at startup; there is no hot reload, and
// rate limit rules are immutable for the process lifetime.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "90s" or "2h" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Pool      PoolConfig      `yaml:"pool"`
	Deferred  DeferredConfig  `yaml:"deferred"`
	GitHubApp GitHubAppConfig `yaml:"github_app"`
	AI        AIConfig        `yaml:"ai"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        int `yaml:"port"`
	MetricsPort int `yaml:"metrics_port"`
}

// RateLimitConfig holds the ordered admission rules. Rules are evaluated in
// declaration order and the first pattern matching the request path wins.
type RateLimitConfig struct {
	Rules         []RateLimitRule `yaml:"rules"`
	ExemptPaths   []string        `yaml:"exempt_paths"`
	BucketIdleTTL Duration        `yaml:"bucket_idle_ttl"`
	SweepInterval Duration        `yaml:"sweep_interval"`
}

// RateLimitRule defines one token bucket shape for a path pattern.
type RateLimitRule struct {
	PathPattern  string        `yaml:"path_pattern"`
	Capacity     int64         `yaml:"capacity"`
	RefillTokens int64         `yaml:"refill_tokens"`
	RefillPeriod Duration `yaml:"refill_period"`
}

// PoolConfig sizes the background worker pool.
type PoolConfig struct {
	CoreSize      int `yaml:"core_size"`
	MaxSize       int `yaml:"max_size"`
	QueueCapacity int `yaml:"queue_capacity"`
}

// DeferredConfig bounds the synchronous request path.
type DeferredConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// GitHubAppConfig identifies the GitHub App installation used for upstream
// API access.
type GitHubAppConfig struct {
	AppID              int64         `yaml:"app_id"`
	InstallationID     int64         `yaml:"installation_id"`
	PrivateKeyPath     string        `yaml:"private_key_path"`
	TokenSafetyMargin  Duration      `yaml:"token_safety_margin"`
	APIBaseURL         string        `yaml:"api_base_url"`
	QuotaWarnThreshold int           `yaml:"quota_warn_threshold"`
}

// AIConfig points at the chat completion endpoint used for analysis.
type AIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// StorageConfig locates the SQLite database file.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}
