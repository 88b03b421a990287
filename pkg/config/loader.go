package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultBucketIdleTTL     = 2 * time.Hour
	DefaultSweepInterval     = 10 * time.Minute
	DefaultCoreSize          = 2
	DefaultMaxSize           = 5
	DefaultQueueCapacity     = 50
	DefaultDeferredTimeout   = 120 * time.Second
	DefaultTokenSafetyMargin = 5 * time.Minute
	DefaultQuotaWarn         = 100
)

// Load reads, parses, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9190
	}
	if cfg.RateLimit.BucketIdleTTL == 0 {
		cfg.RateLimit.BucketIdleTTL = Duration(DefaultBucketIdleTTL)
	}
	if cfg.RateLimit.SweepInterval == 0 {
		cfg.RateLimit.SweepInterval = Duration(DefaultSweepInterval)
	}
	if cfg.Pool.CoreSize == 0 {
		cfg.Pool.CoreSize = DefaultCoreSize
	}
	if cfg.Pool.MaxSize == 0 {
		cfg.Pool.MaxSize = DefaultMaxSize
	}
	if cfg.Pool.QueueCapacity == 0 {
		cfg.Pool.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Deferred.Timeout == 0 {
		cfg.Deferred.Timeout = Duration(DefaultDeferredTimeout)
	}
	if cfg.GitHubApp.TokenSafetyMargin == 0 {
		cfg.GitHubApp.TokenSafetyMargin = Duration(DefaultTokenSafetyMargin)
	}
	if cfg.GitHubApp.QuotaWarnThreshold == 0 {
		cfg.GitHubApp.QuotaWarnThreshold = DefaultQuotaWarn
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "gitfolio.db"
	}
}

func validate(cfg *Config) error {
	for i, rule := range cfg.RateLimit.Rules {
		if rule.PathPattern == "" {
			return fmt.Errorf("rate_limit.rules[%d]: path_pattern is required", i)
		}
		if rule.Capacity <= 0 {
			return fmt.Errorf("rate_limit.rules[%d] (%s): capacity must be positive", i, rule.PathPattern)
		}
		if rule.RefillTokens <= 0 {
			return fmt.Errorf("rate_limit.rules[%d] (%s): refill_tokens must be positive", i, rule.PathPattern)
		}
		if rule.RefillPeriod <= 0 {
			return fmt.Errorf("rate_limit.rules[%d] (%s): refill_period must be positive", i, rule.PathPattern)
		}
	}
	if cfg.Pool.CoreSize < 1 {
		return fmt.Errorf("pool.core_size must be at least 1")
	}
	if cfg.Pool.MaxSize < cfg.Pool.CoreSize {
		return fmt.Errorf("pool.max_size (%d) must be >= core_size (%d)", cfg.Pool.MaxSize, cfg.Pool.CoreSize)
	}
	if cfg.Pool.QueueCapacity < 0 {
		return fmt.Errorf("pool.queue_capacity must not be negative")
	}
	if cfg.GitHubApp.AppID == 0 {
		return fmt.Errorf("github_app.app_id is required")
	}
	if cfg.GitHubApp.InstallationID == 0 {
		return fmt.Errorf("github_app.installation_id is required")
	}
	if cfg.GitHubApp.PrivateKeyPath == "" {
		return fmt.Errorf("github_app.private_key_path is required")
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	return nil
}
