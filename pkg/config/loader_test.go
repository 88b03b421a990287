package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
server:
  port: 8080
rate_limit:
  rules:
    - path_pattern: /api/v1/repos/analyze
      capacity: 10
      refill_tokens: 10
      refill_period: 1m
    - path_pattern: /api/v1/portfolio/generate
      capacity: 5
      refill_tokens: 5
      refill_period: 1m
  exempt_paths:
    - /health
    - /metrics
github_app:
  app_id: 1234
  installation_id: 5678
  private_key_path: /etc/gitfolio/app.pem
ai:
  model: gpt-4o-mini
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Pool.CoreSize != DefaultCoreSize || cfg.Pool.MaxSize != DefaultMaxSize || cfg.Pool.QueueCapacity != DefaultQueueCapacity {
		t.Errorf("pool defaults not applied: %+v", cfg.Pool)
	}
	if cfg.Deferred.Timeout.Std() != 120*time.Second {
		t.Errorf("deferred timeout = %v, want 120s", cfg.Deferred.Timeout)
	}
	if cfg.GitHubApp.TokenSafetyMargin.Std() != 5*time.Minute {
		t.Errorf("token safety margin = %v, want 5m", cfg.GitHubApp.TokenSafetyMargin)
	}
	if cfg.RateLimit.BucketIdleTTL.Std() != 2*time.Hour {
		t.Errorf("bucket idle TTL = %v, want 2h", cfg.RateLimit.BucketIdleTTL)
	}
}

func TestLoadPreservesRuleOrder(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.RateLimit.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(cfg.RateLimit.Rules))
	}
	if cfg.RateLimit.Rules[0].PathPattern != "/api/v1/repos/analyze" {
		t.Errorf("first rule = %s, declaration order not preserved", cfg.RateLimit.Rules[0].PathPattern)
	}
}

func TestLoadRejectsInvalidRule(t *testing.T) {
	bad := `
rate_limit:
  rules:
    - path_pattern: /api/v1/repos/analyze
      capacity: 0
      refill_tokens: 10
      refill_period: 1m
github_app:
  app_id: 1
  installation_id: 2
  private_key_path: /tmp/key.pem
ai:
  model: gpt-4o-mini
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestLoadRejectsMissingAppConfig(t *testing.T) {
	bad := `
ai:
  model: gpt-4o-mini
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for missing github_app settings")
	}
}

func TestLoadRejectsPoolInversion(t *testing.T) {
	bad := validYAML + `
pool:
  core_size: 8
  max_size: 4
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error when max_size < core_size")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	bad := validYAML + `
deferred:
  timeout: soon
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
