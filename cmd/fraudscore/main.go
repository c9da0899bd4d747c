// Fraudscore - Card fraud scoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/fraudscore/internal/api"
	"github.com/opensource-finance/fraudscore/internal/bus"
	"github.com/opensource-finance/fraudscore/internal/cache"
	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/metrics"
	"github.com/opensource-finance/fraudscore/internal/repository"
	"github.com/opensource-finance/fraudscore/internal/risk"
	"github.com/opensource-finance/fraudscore/internal/scoring"
	"github.com/opensource-finance/fraudscore/internal/tracing"
	"github.com/opensource-finance/fraudscore/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := domain.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting fraudscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, Version)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize Metrics
	m := metrics.New()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if repo != nil {
		defer repo.Close()
	}
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	if cacheImpl != nil {
		defer cacheImpl.Close()
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	if busImpl != nil {
		defer busImpl.Close()
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Risk Classifier
	classifier, err := risk.NewClassifier(risk.PolicyFromConfig(cfg.Risk))
	if err != nil {
		slog.Error("invalid risk policy", "error", err)
		os.Exit(1)
	}

	// Initialize Scoring Engine
	engine, err := newEngine(cfg, classifier, cacheImpl, m)
	if err != nil {
		slog.Error("model is incompatible with its feature metadata", "error", err)
		os.Exit(1)
	}
	m.SetModelLoaded(engine.Available())

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if busImpl != nil && cfg.Scoring.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, repo, engine, m)
		if err := asyncWorker.Start(worker.Config{WorkerCount: cfg.Scoring.WorkerCount}); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	// Initialize Server
	deps := api.Dependencies{
		Engine:       engine,
		Repo:         repo,
		Cache:        cacheImpl,
		Metrics:      m,
		MaxBatchSize: cfg.Scoring.MaxBatchSize,
		Version:      Version,
	}
	if asyncWorker != nil {
		deps.Bus = busImpl
	}
	srv := api.NewServer(cfg.Server, deps)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"model_loaded", engine.Available(),
		"model_version", engine.Version(),
	)

	printBanner(cfg, Version, engine)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop async worker after the server stops accepting requests
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("fraudscore shutdown complete")
}

// newEngine loads the model artifacts. A missing or unreadable model yields
// an engine that reports unavailable; an incompatible model is an error.
func newEngine(cfg *domain.Config, classifier *risk.Classifier, c domain.Cache, m *metrics.Metrics) (*scoring.Engine, error) {
	opts := []scoring.Option{
		scoring.WithMetrics(m),
		scoring.WithMaxWorkers(cfg.Scoring.MaxWorkers),
	}
	if c != nil {
		opts = append(opts, scoring.WithCache(c, cfg.Scoring.CacheTTL))
	}

	mc, err := scoring.LoadModelContext(cfg.Model)
	if err != nil {
		var me *domain.ModelError
		if errors.As(err, &me) && me.Fatal {
			return nil, err
		}
		slog.Warn("model not loaded, scoring unavailable",
			"model_path", cfg.Model.ModelPath,
			"metadata_path", cfg.Model.MetadataPath,
			"error", err,
		)
		return scoring.NewUnavailableEngine(err, classifier, opts...), nil
	}

	engine, err := scoring.NewEngine(mc, classifier, opts...)
	if err != nil {
		return nil, err
	}

	slog.Info("model loaded",
		"type", mc.Model().Type,
		"version", mc.Version(),
		"features", mc.Codec().Len(),
	)
	return engine, nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string, engine *scoring.Engine) {
	model := "unavailable"
	if engine.Available() {
		model = engine.Version()
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               FRAUDSCORE                  ║")
	fmt.Println("  ║       Card Fraud Scoring Engine           ║")
	fmt.Println("  ║      A probability for every swipe.       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Model:    %s\n", model)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/predict        - Score a transaction")
	fmt.Println("    POST /api/predict/batch  - Score a batch of transactions")
	fmt.Println("    POST /api/predict/async  - Queue a transaction for scoring")
	fmt.Println("    GET  /api/model_info     - Model and risk policy details")
	fmt.Println("    GET  /api/scores         - List stored scores")
	fmt.Println("    GET  /api/scores/{id}    - Get a stored score")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println("    GET  /ready              - Readiness check")
	fmt.Println("    GET  /metrics            - Prometheus metrics")
	fmt.Println()
}
