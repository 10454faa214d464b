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

	"github.com/greenline/possync/internal/shared"
)

// ErrAlreadyRunning is returned when a catalog sync for the vendor is queued or active.
var ErrAlreadyRunning = errors.New("jobs: catalog sync already running")

// Enqueuer submits tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskLister lists tasks of a queue.
type TaskLister interface {
	ListActiveTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListPendingTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// Auditor records launches.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LauncherOptions tunes enqueued passes.
type LauncherOptions struct {
	Timeout   time.Duration
	UniqueTTL time.Duration
	Audit     Auditor
	Logger    *slog.Logger
}

// Launcher starts catalog sync passes on the worker.
type Launcher struct {
	enqueuer Enqueuer
	lister   TaskLister
	opts     LauncherOptions
}

// NewLauncher constructs a Launcher.
func NewLauncher(enqueuer Enqueuer, lister TaskLister, opts LauncherOptions) *Launcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Launcher{enqueuer: enqueuer, lister: lister, opts: opts}
}

// RunningTask is a queued or active catalog sync.
type RunningTask struct {
	ID      string
	State   string
	Payload CatalogSyncPayload
}

// ListRunningTasks returns catalog sync tasks that are pending or active.
func (l *Launcher) ListRunningTasks(ctx context.Context) ([]RunningTask, error) {
	if l == nil || l.lister == nil {
		return nil, errors.New("jobs: launcher inspector not configured")
	}
	var out []RunningTask
	for _, list := range []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
		l.lister.ListActiveTasks,
		l.lister.ListPendingTasks,
	} {
		infos, err := list(QueueCatalog, asynq.PageSize(100))
		if errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if info == nil || info.Type != TaskCatalogSync {
				continue
			}
			var payload CatalogSyncPayload
			if err := json.Unmarshal(info.Payload, &payload); err != nil {
				l.opts.Logger.Warn("catalog sync task payload unreadable, skipping",
					slog.String("task_id", info.ID), slog.String("state", info.State.String()), slog.Any("error", err))
				continue
			}
			out = append(out, RunningTask{ID: info.ID, State: info.State.String(), Payload: payload})
		}
	}
	return out, nil
}

// Launch enqueues one pass unless a pass for the vendor is already queued or active.
func (l *Launcher) Launch(ctx context.Context, vendor string, initiatingUserID int64, locationIDs []int64) (*asynq.TaskInfo, error) {
	if l == nil || l.enqueuer == nil {
		return nil, errors.New("jobs: launcher not configured")
	}
	vendor = strings.ToLower(strings.TrimSpace(vendor))
	running, err := l.ListRunningTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: list running tasks: %w", err)
	}
	for _, task := range running {
		if task.Payload.Vendor == vendor {
			return nil, fmt.Errorf("%w: %s (task %s %s)", ErrAlreadyRunning, vendor, task.ID, task.State)
		}
	}

	task, err := NewCatalogSyncTask(CatalogSyncPayload{Vendor: vendor, LocationIDs: locationIDs, InitiatedBy: initiatingUserID})
	if err != nil {
		return nil, err
	}
	info, err := l.enqueuer.EnqueueContext(ctx, task, CatalogSyncOptions(l.opts.Timeout, l.opts.UniqueTTL)...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, vendor)
	}
	if err != nil {
		return nil, err
	}
	if l.opts.Audit != nil {
		err := l.opts.Audit.Record(ctx, shared.AuditLog{
			ActorID:  initiatingUserID,
			Action:   shared.AuditActionSyncLaunch,
			Entity:   shared.AuditEntityVendor,
			EntityID: vendor,
			Meta:     map[string]any{"task_id": info.ID, "location_ids": locationIDs},
		})
		if err != nil {
			l.opts.Logger.Warn("catalog sync launch audit failed",
				slog.String("vendor", vendor), slog.String("task_id", info.ID), slog.Any("error", err))
		}
	}
	return info, nil
}
