package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/greenline/possync/cmd/catalogsync/cli"
	"github.com/greenline/possync/internal/app"
	"github.com/greenline/possync/jobs"
)

func main() {
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "catalogsync")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory := cli.Factory{
		DefaultUserID: cfg.POSSyncUserID,
		OpenSyncer: func(ctx context.Context) (cli.Syncer, func(), error) {
			deps, err := app.Connect(ctx, cfg, "possync-cli")
			if err != nil {
				return nil, nil, err
			}
			orchestrator, err := app.BuildOrchestrator(cfg, deps, logger)
			if err != nil {
				deps.Close(logger)
				return nil, nil, err
			}
			return orchestrator, func() { deps.Close(logger) }, nil
		},
		OpenQueue: func() (cli.Queue, error) {
			return cli.NewJobsCLI(cfg.RedisOpts(), jobs.LauncherOptions{
				Timeout:   cfg.SyncTaskTimeout,
				UniqueTTL: cfg.SyncLockTTL,
				Logger:    logger,
			})
		},
	}

	if err := cli.NewRootCommand(factory).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
