package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	jobmetrics "github.com/greenline/possync/internal/jobs"
	"github.com/greenline/possync/internal/locations"
	"github.com/greenline/possync/internal/notify"
	"github.com/greenline/possync/internal/pos"
	"github.com/greenline/possync/internal/shared"
	"github.com/greenline/possync/internal/syncrun"
)

// ErrSyncInProgress is returned when a pass for the same vendor is already running.
var ErrSyncInProgress = errors.New("catalogsync: sync already in progress")

// LocationSource lists the locations eligible for a pass.
type LocationSource interface {
	ListEligible(ctx context.Context, filter locations.Filter) ([]locations.Location, error)
}

// ClientResolver maps a vendor tag to its remote client.
type ClientResolver interface {
	Resolve(vendor string) (pos.Client, error)
}

// Locker guards a vendor against concurrent passes across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (*shared.Lock, error)
}

// Auditor records pass summaries.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Pass selects what one orchestrator pass synchronizes.
type Pass struct {
	Vendor      string
	LocationIDs []int64
	InitiatedBy int64
}

func (p Pass) key() string {
	ids := append([]int64(nil), p.LocationIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return p.Vendor + "|" + strings.Join(parts, ",")
}

// Summary is the aggregate result of a pass. Per-location detail lives in the run log.
type Summary struct {
	RunID     uuid.UUID
	Vendor    string
	Count     int
	Completed int
	Failed    int
	Skipped   int
	Message   string
}

func (s *Summary) describe() {
	s.Message = fmt.Sprintf("%s: processed %d locations (%d completed, %d failed, %d skipped)",
		s.Vendor, s.Count, s.Completed, s.Failed, s.Skipped)
}

// Orchestrator runs every eligible location of a vendor through the Runner.
type Orchestrator struct {
	Locations LocationSource
	Clients   ClientResolver
	Runner    *Runner
	Runs      RunLog
	Notifier  notify.Notifier
	Locker    Locker
	Audit     Auditor
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics

	// Vendors and LocationIDs form the default scope of SynchronizeAll.
	Vendors     []string
	LocationIDs []int64

	group singleflight.Group
}

// SynchronizeAll runs one pass per configured vendor on the default scope.
// Vendor-level errors are joined; the summaries of the vendors that ran are returned.
func (o *Orchestrator) SynchronizeAll(ctx context.Context, initiatingUserID int64) (Summary, error) {
	total := Summary{Vendor: strings.Join(o.Vendors, ",")}
	var (
		messages []string
		errs     []error
	)
	for _, vendor := range o.Vendors {
		summary, err := o.Synchronize(ctx, Pass{Vendor: vendor, LocationIDs: o.LocationIDs, InitiatedBy: initiatingUserID})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", vendor, err))
			messages = append(messages, fmt.Sprintf("%s: %v", vendor, err))
			continue
		}
		total.Count += summary.Count
		total.Completed += summary.Completed
		total.Failed += summary.Failed
		total.Skipped += summary.Skipped
		messages = append(messages, summary.Message)
	}
	total.Message = strings.Join(messages, "; ")
	return total, errors.Join(errs...)
}

// Synchronize runs one pass. Concurrent callers asking for the same pass share
// its result; a pass for a vendor already locked elsewhere fails with ErrSyncInProgress.
func (o *Orchestrator) Synchronize(ctx context.Context, pass Pass) (Summary, error) {
	pass.Vendor = strings.ToLower(strings.TrimSpace(pass.Vendor))
	if pass.Vendor == "" {
		return Summary{}, errors.New("catalogsync: vendor required")
	}
	ch := o.group.DoChan(pass.key(), func() (interface{}, error) {
		return o.synchronize(ctx, pass)
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (o *Orchestrator) synchronize(ctx context.Context, pass Pass) (Summary, error) {
	logger := o.logger().With(slog.String("vendor", pass.Vendor))

	var lock *shared.Lock
	if o.Locker != nil {
		var err error
		lock, err = o.Locker.Acquire(ctx, shared.CatalogSyncLockKey(pass.Vendor))
		if errors.Is(err, shared.ErrLockHeld) {
			return Summary{}, fmt.Errorf("%w: %s", ErrSyncInProgress, pass.Vendor)
		}
		if err != nil {
			return Summary{}, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("catalog sync lock release failed", slog.Any("error", err))
			}
		}()
	}

	eligible, err := o.Locations.ListEligible(ctx, locations.Filter{Vendor: pass.Vendor, LocationIDs: pass.LocationIDs})
	if err != nil {
		return Summary{}, fmt.Errorf("catalogsync: list locations: %w", err)
	}

	summary := Summary{RunID: uuid.New(), Vendor: pass.Vendor}
	logger = logger.With(slog.String("run_id", summary.RunID.String()))
	logger.Info("catalog sync pass started", slog.Int("locations", len(eligible)), slog.Int64("initiated_by", pass.InitiatedBy))

	var lockErr error
	for _, loc := range eligible {
		if err := ctx.Err(); err != nil {
			logger.Warn("catalog sync pass interrupted", slog.Any("error", err))
			break
		}
		if err := lock.Extend(ctx); err != nil {
			logger.Error("catalog sync lock lost, stopping pass", slog.Any("error", err))
			lockErr = fmt.Errorf("catalogsync: %s: %w", pass.Vendor, err)
			break
		}
		outcome := o.syncLocation(ctx, logger, summary.RunID, pass, loc)
		summary.Count++
		switch outcome {
		case jobmetrics.OutcomeCompleted:
			summary.Completed++
		case jobmetrics.OutcomeFailed:
			summary.Failed++
		case jobmetrics.OutcomeSkipped:
			summary.Skipped++
		}
		o.Metrics.ObserveLocation(pass.Vendor, outcome)
	}
	summary.describe()
	logger.Info("catalog sync pass finished", slog.String("summary", summary.Message))
	o.audit(ctx, logger, pass, summary)
	return summary, lockErr
}

// syncLocation handles one location and never returns its error: failures are
// recorded in the run log and sent to the notifier.
func (o *Orchestrator) syncLocation(ctx context.Context, logger *slog.Logger, runID uuid.UUID, pass Pass, loc locations.Location) string {
	logger = logger.With(slog.Int64("location_id", loc.ID))

	run, err := o.Runs.Start(ctx, syncrun.Run{
		RunID:       runID,
		LocationID:  loc.ID,
		Vendor:      pass.Vendor,
		InitiatedBy: pass.InitiatedBy,
	})
	if err != nil {
		logger.Error("catalog sync run log start failed", slog.Any("error", err))
		o.notify(ctx, logger, runID, loc, err)
		return jobmetrics.OutcomeFailed
	}

	client, err := o.checkConfig(loc)
	if err != nil {
		logger.Warn("catalog sync location skipped", slog.Any("error", err))
		if advErr := o.Runs.Fail(ctx, run.ID, err.Error()); advErr != nil {
			logger.Error("catalog sync run log update failed", slog.Any("error", advErr))
		}
		return jobmetrics.OutcomeSkipped
	}

	_, err = o.Runner.Run(ctx, RunInput{Run: run, Target: loc.Target(), Client: client, ActorID: pass.InitiatedBy})
	if err == nil {
		return jobmetrics.OutcomeCompleted
	}

	logger.Error("catalog sync location failed", slog.Any("error", err))
	advErr := o.Runs.Fail(context.WithoutCancel(ctx), run.ID, err.Error())
	if advErr != nil && !errors.Is(advErr, syncrun.ErrIllegalTransition) {
		logger.Error("catalog sync run log update failed", slog.Any("error", advErr))
	}
	o.notify(ctx, logger, runID, loc, err)
	return jobmetrics.OutcomeFailed
}

func (o *Orchestrator) checkConfig(loc locations.Location) (pos.Client, error) {
	if err := loc.CheckConfig(); err != nil {
		return nil, err
	}
	client, err := o.Clients.Resolve(loc.Vendor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", locations.ErrMissingConfig, err)
	}
	return client, nil
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, runID uuid.UUID, loc locations.Location, cause error) {
	if o.Notifier == nil {
		return
	}
	serr := notify.Serialize(cause)
	serr.LocationID = loc.ID
	serr.RunID = runID.String()
	if serr.Vendor == "" {
		serr.Vendor = loc.Vendor
	}
	subject := fmt.Sprintf("Catalog sync failed for %s (location %d)", loc.Name, loc.ID)
	if err := o.Notifier.Notify(context.WithoutCancel(ctx), subject, serr); err != nil {
		logger.Warn("catalog sync notification failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) audit(ctx context.Context, logger *slog.Logger, pass Pass, summary Summary) {
	if o.Audit == nil {
		return
	}
	err := o.Audit.Record(ctx, shared.AuditLog{
		ActorID:  pass.InitiatedBy,
		Action:   shared.AuditActionSyncPass,
		Entity:   shared.AuditEntityVendor,
		EntityID: pass.Vendor,
		Meta: map[string]any{
			"run_id":    summary.RunID.String(),
			"count":     summary.Count,
			"completed": summary.Completed,
			"failed":    summary.Failed,
			"skipped":   summary.Skipped,
		},
	})
	if err != nil {
		logger.Warn("catalog sync audit failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
