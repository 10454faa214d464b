package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/greenline/possync/internal/catalogsync"
	jobmetrics "github.com/greenline/possync/internal/jobs"
)

const (
	// TaskCatalogSync runs one catalog sync pass for a vendor.
	TaskCatalogSync = "pos:catalog_sync"
)

// CatalogSyncPayload selects the pass scope.
type CatalogSyncPayload struct {
	Vendor      string  `json:"vendor"`
	LocationIDs []int64 `json:"location_ids,omitempty"`
	InitiatedBy int64   `json:"initiated_by"`
}

// CatalogSyncer runs a pass.
type CatalogSyncer interface {
	Synchronize(ctx context.Context, pass catalogsync.Pass) (catalogsync.Summary, error)
}

// CatalogSyncJob executes catalog sync tasks.
type CatalogSyncJob struct {
	Syncer  CatalogSyncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogSyncJob constructs the job handler.
func NewCatalogSyncJob(syncer CatalogSyncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSyncJob {
	return &CatalogSyncJob{Syncer: syncer, Logger: logger, Metrics: metrics}
}

// NewCatalogSyncTask creates an Asynq task for one vendor pass.
func NewCatalogSyncTask(payload CatalogSyncPayload) (*asynq.Task, error) {
	payload.Vendor = strings.ToLower(strings.TrimSpace(payload.Vendor))
	if payload.Vendor == "" {
		return nil, errors.New("catalog sync task: vendor required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogSync, body, asynq.Queue(QueueCatalog)), nil
}

// CatalogSyncOptions are the enqueue options shared by cron and manual launches.
// Retries are disabled: the recovery for a failed pass is the next full pass.
func CatalogSyncOptions(timeout, uniqueTTL time.Duration) []asynq.Option {
	opts := []asynq.Option{asynq.Queue(QueueCatalog), asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	if uniqueTTL > 0 {
		opts = append(opts, asynq.Unique(uniqueTTL))
	}
	return opts
}

// CatalogSyncCron builds one cron registration per vendor.
func CatalogSyncCron(spec string, vendors []string, locationIDs []int64, userID int64, timeout time.Duration) ([]CronRegistration, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	out := make([]CronRegistration, 0, len(vendors))
	for _, vendor := range vendors {
		task, err := NewCatalogSyncTask(CatalogSyncPayload{Vendor: vendor, LocationIDs: locationIDs, InitiatedBy: userID})
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: spec, Task: task, Options: CatalogSyncOptions(timeout, timeout)})
	}
	return out, nil
}

// Handle executes the catalog sync job.
func (j *CatalogSyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Syncer == nil {
		return errors.New("catalog sync: dependencies not configured")
	}
	var payload CatalogSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.Vendor) == "" {
		return asynq.SkipRetry
	}
	logger := j.log().With(slog.String("vendor", payload.Vendor))

	tracker := j.metrics().Track(TaskCatalogSync)
	summary, err := j.Syncer.Synchronize(ctx, catalogsync.Pass{
		Vendor:      payload.Vendor,
		LocationIDs: payload.LocationIDs,
		InitiatedBy: payload.InitiatedBy,
	})
	if errors.Is(err, catalogsync.ErrSyncInProgress) {
		logger.Info("catalog sync skipped, pass already running")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		logger.Error("catalog sync pass failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("catalog sync pass done",
		slog.String("run_id", summary.RunID.String()),
		slog.Int("count", summary.Count),
		slog.Int("failed", summary.Failed),
	)
	j.writeResult(task, summary, logger)
	return tracker.End(nil)
}

func (j *CatalogSyncJob) writeResult(task *asynq.Task, summary catalogsync.Summary, logger *slog.Logger) {
	w := task.ResultWriter()
	if w == nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"run_id":  summary.RunID.String(),
		"count":   summary.Count,
		"message": summary.Message,
	})
	if err != nil {
		return
	}
	if _, err := w.Write(body); err != nil {
		logger.Warn("catalog sync result write failed", slog.Any("error", err))
	}
}

func (j *CatalogSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CatalogSyncJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

var defaultJobMetrics = jobmetrics.NewMetrics(nil)
