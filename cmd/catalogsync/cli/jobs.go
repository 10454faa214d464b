package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/greenline/possync/jobs"
)

// JobsCLI wraps manual management helpers for the catalog sync queue.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
	launcher  *jobs.Launcher
}

// NewJobsCLI initialises the helpers against the given Redis connection.
func NewJobsCLI(redisOpts asynq.RedisClientOpt, opts jobs.LauncherOptions) (*JobsCLI, error) {
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(redisOpts)
	return &JobsCLI{
		client:    client,
		inspector: inspector,
		launcher:  jobs.NewLauncher(client, inspector, opts),
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a catalog sync pass for vendor.
func (c *JobsCLI) Trigger(ctx context.Context, vendor string, userID int64, locationIDs []int64) (*asynq.TaskInfo, error) {
	if c == nil || c.launcher == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.launcher.Launch(ctx, vendor, userID, locationIDs)
}

// ListRunning returns queued and active catalog sync tasks.
func (c *JobsCLI) ListRunning(ctx context.Context) ([]jobs.RunningTask, error) {
	if c == nil || c.launcher == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	return c.launcher.ListRunningTasks(ctx)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports metrics for the catalog and default queues.
// A queue that has never received a task reports zeros.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	out := make([]QueueStats, 0, 2)
	for _, queue := range []string{jobs.QueueCatalog, jobs.QueueDefault} {
		stats := QueueStats{Queue: queue}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}
