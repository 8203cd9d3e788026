// Command server runs the Sentora metrics ingestion and alerting engine.
//
// # Usage
//
//	server --config /etc/sentora/config.yaml
//	server --listen :8400 --database postgres://localhost/sentora
//
// # Configuration
//
// The server can be configured via:
// - Command-line flags
// - Environment variables (SENTORA_*)
// - A YAML config file
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentora/sentora/db/migrate"
	"github.com/sentora/sentora/internal/alerting"
	"github.com/sentora/sentora/internal/api"
	"github.com/sentora/sentora/internal/cache"
	"github.com/sentora/sentora/internal/config"
	"github.com/sentora/sentora/internal/evaluator"
	"github.com/sentora/sentora/internal/notify"
	"github.com/sentora/sentora/internal/queue"
	"github.com/sentora/sentora/internal/secrets"
	"github.com/sentora/sentora/internal/service"
	"github.com/sentora/sentora/internal/store"
	"github.com/sentora/sentora/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		listenAddr = flag.String("listen", "", "Listen address (overrides config)")
		dbURL      = flag.String("database", "", "Database URL (overrides config)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("sentora-server v0.1.0")
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}

	// Connect to database and run migrations
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := store.NewStoreFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	if err := migrate.Run(ctx, db.Pool(), logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Optional Redis: evaluation queue and response cache
	var evalQueue *queue.EvalQueue
	var responseCache *cache.Cache
	if cfg.RedisURL != "" {
		evalQueue, err = queue.NewEvalQueue(cfg.RedisURL, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer evalQueue.Close()

		responseCache, err = cache.New(cfg.RedisURL, logger)
		if err != nil {
			logger.Warn("response cache unavailable", "error", err)
			responseCache = nil
		} else {
			defer responseCache.Close()
		}
		logger.Info("connected to redis")
	}

	// Notification channels
	resolver, err := secrets.NewResolver(secrets.ConfigFromEnv(), logger)
	if err != nil {
		logger.Error("failed to initialize secrets resolver", "error", err)
		os.Exit(1)
	}
	defer resolver.Close()

	channels := notify.BuildChannels(ctx, cfg.Channels, resolver, logger)
	dispatcher := notify.NewDispatcher(channels, cfg.Channels, notify.DefaultDispatcherConfig(), logger)

	// Alert lifecycle and evaluation pipeline
	manager := alerting.NewManager(db, dispatcher, cfg.Alerting.Hysteresis, logger)
	svc := service.NewService(db, evaluator.New(logger), manager,
		cfg.Thresholds,
		service.LivenessWindows{
			DegradedAfter: cfg.Liveness.DegradedAfter,
			OfflineAfter:  cfg.Liveness.OfflineAfter,
		},
		logger)
	if evalQueue != nil {
		svc.SetQueue(evalQueue)
	}

	// Background workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var evalWorker *worker.EvalWorker
	if evalQueue != nil {
		evalWorker = worker.NewEvalWorker(evalQueue, svc, worker.DefaultEvalWorkerConfig(), logger)
		evalWorker.Start(workerCtx)
	}

	livenessWorker := worker.NewLivenessWorker(db, manager, worker.LivenessWorkerConfig{
		Interval:     cfg.Liveness.SweepInterval,
		OfflineAfter: cfg.Liveness.OfflineAfter,
	}, logger)
	livenessWorker.Start(workerCtx)

	retentionWorker := worker.NewRetentionWorker(db, worker.RetentionWorkerConfig{
		Interval:  cfg.Alerting.RetentionSweep,
		Retention: cfg.Alerting.Retention,
	}, logger)
	retentionWorker.Start(workerCtx)

	// HTTP server
	auth := api.NewKeyAuth(cfg.Auth.APIKeys, logger)
	apiServer := api.NewServer(svc, auth, responseCache, logger)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Stop workers, then drain any in-flight notification deliveries.
	retentionWorker.Stop()
	livenessWorker.Stop()
	if evalWorker != nil {
		evalWorker.Stop()
	}
	dispatcher.Wait()

	logger.Info("shutdown complete")
}
