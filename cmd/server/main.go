package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/greenline/possync/internal/app"
	synchttp "github.com/greenline/possync/internal/catalogsync/http"
	"github.com/greenline/possync/internal/shared"
	"github.com/greenline/possync/internal/syncrun"
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

	logger := app.NewLogger(cfg, "possync-server")

	deps, err := app.Connect(ctx, cfg, "possync-server")
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer deps.Close(logger)

	inspector := asynq.NewInspector(cfg.RedisOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	launcher := jobs.NewLauncher(deps.Mail, inspector, jobs.LauncherOptions{
		Timeout:   cfg.SyncTaskTimeout,
		UniqueTTL: cfg.SyncLockTTL,
		Audit:     shared.NewAuditLogger(deps.Pool),
		Logger:    logger,
	})
	syncHandler := synchttp.NewHandler(logger, launcher, syncrun.NewRepository(deps.Pool), cfg.POSVendors, cfg.POSSyncUserID)
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		SyncHandler: syncHandler,
		JobHandler:  jobHandler,
		Metrics:     deps.Metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
