package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/greenline/possync/internal/catalog"
	"github.com/greenline/possync/internal/catalogsync"
	"github.com/greenline/possync/internal/locations"
	"github.com/greenline/possync/internal/notify"
	"github.com/greenline/possync/internal/observability"
	"github.com/greenline/possync/internal/platform/cache"
	"github.com/greenline/possync/internal/platform/db"
	"github.com/greenline/possync/internal/pos"
	"github.com/greenline/possync/internal/shared"
	"github.com/greenline/possync/internal/syncrun"
	"github.com/greenline/possync/jobs"
)

// Deps holds the process-wide connections.
type Deps struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Mail    *jobs.Client
	Metrics *observability.Metrics
}

// RedisOpts returns the asynq connection options for cfg.
func (c *Config) RedisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Connect opens postgres, redis and the task client.
func Connect(ctx context.Context, cfg *Config, service string) (*Deps, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{ApplicationName: service})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, err
	}
	mail, err := jobs.NewClient(cfg.RedisOpts())
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}
	return &Deps{Pool: pool, Redis: redisClient, Mail: mail, Metrics: observability.NewMetrics()}, nil
}

// Close releases every connection, logging failures.
func (d *Deps) Close(logger *slog.Logger) {
	if d == nil {
		return
	}
	if d.Mail != nil {
		if err := d.Mail.Close(); err != nil {
			logger.Warn("task client close", slog.Any("error", err))
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// BuildNotifier always logs failures and also queues mail when recipients are configured.
func BuildNotifier(cfg *Config, mail notify.MailQueue, logger *slog.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}
	if len(cfg.NotifyEmailTo) > 0 && mail != nil {
		notifiers = append(notifiers, notify.EmailNotifier{Queue: mail, Recipients: cfg.NotifyEmailTo})
	}
	return notifiers
}

// BuildRegistry returns the vendor adapters, failing when a configured vendor has none.
func BuildRegistry(cfg *Config) (*pos.Registry, error) {
	registry := pos.NewDefaultRegistry(pos.Options{Timeout: cfg.POSHTTPTimeout})
	for _, vendor := range cfg.POSVendors {
		if _, err := registry.Resolve(vendor); err != nil {
			return nil, fmt.Errorf("configure vendors: %w", err)
		}
	}
	return registry, nil
}

// BuildOrchestrator assembles the sync orchestrator from deps.
func BuildOrchestrator(cfg *Config, deps *Deps, logger *slog.Logger) (*catalogsync.Orchestrator, error) {
	registry, err := BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	runs := syncrun.NewRepository(deps.Pool)
	metrics := deps.Metrics.Jobs()

	var mail notify.MailQueue
	if deps.Mail != nil {
		mail = deps.Mail
	}

	return &catalogsync.Orchestrator{
		Locations:   locations.NewRepository(deps.Pool),
		Clients:     registry,
		Runner:      catalogsync.NewRunner(catalog.NewRepository(deps.Pool), runs, logger, metrics, cfg.SyncMaxPages),
		Runs:        runs,
		Notifier:    BuildNotifier(cfg, mail, logger),
		Locker:      shared.NewLocker(deps.Redis, cfg.SyncLockTTL),
		Audit:       shared.NewAuditLogger(deps.Pool),
		Logger:      logger,
		Metrics:     metrics,
		Vendors:     cfg.POSVendors,
		LocationIDs: cfg.POSSyncLocs,
	}, nil
}
