package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/greenline/possync/internal/app"
	"github.com/greenline/possync/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "possync-worker")

	deps, err := app.Connect(ctx, cfg, "possync-worker")
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer deps.Close(logger)

	orchestrator, err := app.BuildOrchestrator(cfg, deps, logger)
	if err != nil {
		logger.Error("build orchestrator", slog.Any("error", err))
		os.Exit(1)
	}
	syncJob := jobs.NewCatalogSyncJob(orchestrator, logger, deps.Metrics.Jobs())

	cron, err := jobs.CatalogSyncCron(cfg.POSSyncCron, cfg.POSVendors, cfg.POSSyncLocs, cfg.POSSyncUserID, cfg.SyncTaskTimeout)
	if err != nil {
		logger.Error("build catalog sync schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.RedisOpts(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogSync, Handler: syncJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: deps.Metrics.Handler(), ReadTimeout: cfg.AppReadTimeout}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
