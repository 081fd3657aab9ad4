// Fakeguard - Fake account detection for social platforms.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/fakeguard/internal/api"
	"github.com/opensource-finance/fakeguard/internal/bus"
	"github.com/opensource-finance/fakeguard/internal/cache"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/metrics"
	"github.com/opensource-finance/fakeguard/internal/repository"
	"github.com/opensource-finance/fakeguard/internal/rules"
	"github.com/opensource-finance/fakeguard/internal/scoring"
	"github.com/opensource-finance/fakeguard/internal/worker"
	"github.com/opensource-finance/fakeguard/internal/workspace"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// only try dotenv if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := domain.LoadConfig()

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting fakeguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"scoring_workers", cfg.Scoring.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Custom rules start from whatever was saved; none are built in
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	loadRulesFromDatabase(ctx, repo, engine)
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	scorer := scoring.NewScorer()
	scorer.Workers = cfg.Scoring.Workers
	scorer.Rules = engine

	ws := workspace.NewService(repo, cacheImpl, scorer, cfg.Scoring.ReportTTL)
	ws.RulesLoaded = engine.RulesCount
	ws.SetRecorder(metrics.NewRecorder())

	var asyncWorker *worker.Worker
	if cfg.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, repo, ws)

		var tenantIDs []string
		if envTenants := os.Getenv("FAKEGUARD_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Workspace: ws,
		Engine:    engine,
		Version:   Version,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fakeguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fakeguard shutdown complete")
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRulesFromDatabase loads saved custom rules into the engine.
// A failure leaves the engine empty; rules can still be added via the API.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) {
	dbRules, err := repo.ListRuleConfigs(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return
	}

	if len(dbRules) == 0 {
		slog.Info("no custom rules in database - configure via POST /api/rules")
		return
	}

	if err := engine.ReloadRules(dbRules); err != nil {
		slog.Warn("failed to load custom rules", "count", len(dbRules), "error", err)
		return
	}
	slog.Info("custom rules loaded", "count", engine.RulesCount())
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==========================================")
	fmt.Println("                 FAKEGUARD")
	fmt.Println("      Fake account detection engine")
	fmt.Println("  ==========================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/upload        - Upload a CSV or JSON account file")
	fmt.Println("    POST /api/analyze       - Analyze the latest upload")
	fmt.Println("    POST /api/check         - Check a single account")
	fmt.Println("    GET  /api/dashboard     - Latest analysis summary")
	fmt.Println("    GET  /api/export        - Download flagged accounts as CSV")
	fmt.Println("    GET  /api/rules         - List custom rules")
	fmt.Println("    POST /api/rules         - Create a custom rule")
	fmt.Println("    POST /api/rules/reload  - Hot-reload rules from database")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
