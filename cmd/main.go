package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitfolio/gitfolio/pkg/analysis"
	"github.com/gitfolio/gitfolio/pkg/apiserver"
	"github.com/gitfolio/gitfolio/pkg/config"
	"github.com/gitfolio/gitfolio/pkg/ghauth"
	"github.com/gitfolio/gitfolio/pkg/github"
	"github.com/gitfolio/gitfolio/pkg/jobs"
	"github.com/gitfolio/gitfolio/pkg/observability"
	"github.com/gitfolio/gitfolio/pkg/ratelimit"
	"github.com/gitfolio/gitfolio/pkg/store"
)

// jobDedupWindow is how far back Submit looks for a completed job with the
// same input before scheduling a duplicate.
const jobDedupWindow = time.Hour

func main() {
	// Parse command-line flags
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to the configuration file")
		port        = flag.Int("port", 0, "API port (overrides config when set)")
		metricsPort = flag.Int("metrics-port", 0, "Prometheus metrics port (overrides config when set)")
	)
	flag.Parse()

	// Initialize logging (zap) from environment.
	if _, err := observability.InitLoggerFromEnv(); err != nil {
		// Fallback to stderr since logger initialization failed
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		observability.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}

	// Start metrics server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		observability.Infof("Starting metrics server on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			observability.Errorf("Metrics server error: %v", err)
		}
	}()

	// Persistence
	db, err := store.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		observability.Fatalf("Failed to open storage %s: %v", cfg.Storage.SQLitePath, err)
	}
	defer db.Close()

	// GitHub App credentials and API client
	issuer, err := ghauth.NewAppTokenIssuer(cfg.GitHubApp.AppID, cfg.GitHubApp.InstallationID,
		cfg.GitHubApp.PrivateKeyPath, cfg.GitHubApp.APIBaseURL)
	if err != nil {
		observability.Fatalf("Failed to load GitHub App credentials: %v", err)
	}
	tokens := ghauth.NewCredentialCache(issuer, cfg.GitHubApp.TokenSafetyMargin.Std())
	ghClient := github.NewClient(tokens, cfg.GitHubApp.APIBaseURL, cfg.GitHubApp.QuotaWarnThreshold)

	// Analysis engine and shared pipeline
	engine := analysis.NewEngine(cfg.AI)
	pipeline := &apiserver.Pipeline{
		GitHub:     ghClient,
		Engine:     engine,
		Analyses:   db,
		Portfolios: db,
	}

	// Background jobs
	pool := jobs.NewPool(cfg.Pool.CoreSize, cfg.Pool.MaxSize, cfg.Pool.QueueCapacity)
	defer pool.Stop()
	orchestrator := jobs.NewOrchestrator(db, pool, pipeline.Runners(), jobDedupWindow)

	// Admission control
	registry := ratelimit.NewRegistry(cfg.RateLimit.BucketIdleTTL.Std(), cfg.RateLimit.SweepInterval.Std())
	defer registry.Stop()
	rules := make([]ratelimit.Rule, 0, len(cfg.RateLimit.Rules))
	for _, r := range cfg.RateLimit.Rules {
		rules = append(rules, ratelimit.Rule{
			PathPattern:  r.PathPattern,
			Capacity:     r.Capacity,
			RefillTokens: r.RefillTokens,
			RefillPeriod: r.RefillPeriod.Std(),
		})
	}
	admission := ratelimit.NewController(rules, cfg.RateLimit.ExemptPaths, registry)

	server := apiserver.NewServer(admission, orchestrator, pipeline, ghClient, cfg.Deferred.Timeout.Std())
	observability.Infof("Starting gitfolio with config: %s", *configPath)
	if err := server.Start(cfg.Server.Port); err != nil {
		observability.Fatalf("API server error: %v", err)
	}
}
