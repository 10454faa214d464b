// Package catalogsync reconciles local catalogs against remote POS inventories.
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/greenline/possync/internal/catalog"
	jobmetrics "github.com/greenline/possync/internal/jobs"
	"github.com/greenline/possync/internal/pos"
	"github.com/greenline/possync/internal/syncrun"
)

// DefaultMaxPages caps pagination when the remote keeps advertising pages.
const DefaultMaxPages = 5000

// CatalogStore opens the reconciliation transaction.
type CatalogStore interface {
	WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error
}

// RunLog persists run status outside the reconciliation transaction.
type RunLog interface {
	Start(ctx context.Context, run syncrun.Run) (syncrun.Run, error)
	Advance(ctx context.Context, id int64, next syncrun.Status, message string) error
	Fail(ctx context.Context, id int64, message string) error
	IncrementCount(ctx context.Context, id int64, delta int) error
}

// Runner drives one location's reconciliation.
type Runner struct {
	Catalog  CatalogStore
	Runs     RunLog
	Engine   *catalog.Engine
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	MaxPages int
}

// NewRunner constructs a Runner with the default upsert engine.
func NewRunner(store CatalogStore, runs RunLog, logger *slog.Logger, metrics *jobmetrics.Metrics, maxPages int) *Runner {
	return &Runner{
		Catalog:  store,
		Runs:     runs,
		Engine:   catalog.NewEngine(),
		Logger:   logger,
		Metrics:  metrics,
		MaxPages: maxPages,
	}
}

// RunInput is everything one location run needs.
type RunInput struct {
	Run     syncrun.Run
	Target  pos.Target
	Client  pos.Client
	ActorID int64
}

// RunOutcome summarises a committed run.
type RunOutcome struct {
	Items  int
	Hidden int
	Pages  int
	Total  int
	Swept  int64
}

// Run sweeps the location, applies every remote page and commits, all in one
// transaction. Either the full remote snapshot is stored or nothing changes.
func (r *Runner) Run(ctx context.Context, in RunInput) (RunOutcome, error) {
	if in.Client == nil {
		return RunOutcome{}, errors.New("catalogsync: runner requires a client")
	}
	logger := r.logger().With(
		slog.Int64("location_id", in.Target.LocationID),
		slog.String("vendor", in.Client.Vendor()),
		slog.Int64("run", in.Run.ID),
	)

	var outcome RunOutcome
	err := r.Catalog.WithTx(ctx, func(ctx context.Context, tx catalog.TxRepository) error {
		swept, err := r.sweep(ctx, tx, in)
		if err != nil {
			return err
		}
		outcome, err = r.fetchAndApply(ctx, tx, in, logger)
		outcome.Swept = swept
		return err
	})
	if err != nil {
		return RunOutcome{}, err
	}

	if err := r.finalize(ctx, in, outcome); err != nil {
		return outcome, err
	}
	logger.Info("catalog sync location completed",
		slog.Int("items", outcome.Items),
		slog.Int("hidden", outcome.Hidden),
		slog.Int("pages", outcome.Pages),
		slog.Int64("swept", outcome.Swept),
	)
	return outcome, nil
}

func (r *Runner) sweep(ctx context.Context, tx catalog.TxRepository, in RunInput) (int64, error) {
	swept, err := tx.SweepLocation(ctx, in.Target.LocationID, in.ActorID)
	if err != nil {
		return 0, fmt.Errorf("catalogsync: sweep location %d: %w", in.Target.LocationID, err)
	}
	return swept, nil
}

// fetchAndApply pages through the remote. Page n+1 is only requested after
// every record of page n has been applied.
func (r *Runner) fetchAndApply(ctx context.Context, tx catalog.TxRepository, in RunInput, logger *slog.Logger) (RunOutcome, error) {
	var outcome RunOutcome
	vendor := in.Client.Vendor()

	if err := r.Runs.Advance(ctx, in.Run.ID, syncrun.StatusStartedRemoteInventory, ""); err != nil {
		return outcome, err
	}
	first, err := r.fetch(ctx, in, 0)
	if err != nil {
		if errors.Is(err, pos.ErrEmptyFirstPage) {
			return outcome, r.failEmpty(ctx, in, err)
		}
		return outcome, err
	}
	if len(first.Records) == 0 {
		return outcome, r.failEmpty(ctx, in, fmt.Errorf("%w (%s, total=%d)", pos.ErrEmptyFirstPage, vendor, first.Total))
	}
	if err := r.Runs.Advance(ctx, in.Run.ID, syncrun.StatusCompletedRemoteInventory, ""); err != nil {
		return outcome, err
	}
	if err := r.Runs.Advance(ctx, in.Run.ID, syncrun.StatusUpdatingInventory, ""); err != nil {
		return outcome, err
	}

	page := first
	for n := 0; ; n++ {
		if n > 0 {
			if page, err = r.fetch(ctx, in, n); err != nil {
				return outcome, err
			}
		}
		outcome.Pages++
		outcome.Total = page.Total
		if err := r.applyPage(ctx, tx, in, page, &outcome, logger); err != nil {
			return outcome, err
		}
		if !page.HasMore() {
			return outcome, nil
		}
		if n+1 >= r.maxPages() {
			return outcome, fmt.Errorf("%w: %s stopped after %d pages (last page %d)", pos.ErrPageLimit, vendor, n+1, page.LastPage)
		}
	}
}

func (r *Runner) fetch(ctx context.Context, in RunInput, page int) (pos.PageResult, error) {
	result, err := in.Client.FetchPage(ctx, in.Target, page)
	if err != nil {
		return pos.PageResult{}, fmt.Errorf("catalogsync: fetch page %d: %w", page, err)
	}
	r.Metrics.ObservePage(in.Client.Vendor())
	return result, nil
}

func (r *Runner) applyPage(ctx context.Context, tx catalog.TxRepository, in RunInput, page pos.PageResult, outcome *RunOutcome, logger *slog.Logger) error {
	for _, rec := range page.Records {
		res, err := r.engine().Apply(ctx, tx, in.Target.LocationID, rec, in.ActorID)
		if err != nil {
			return fmt.Errorf("catalogsync: apply %q: %w", rec.PosID, err)
		}
		outcome.Items++
		if res.Hidden {
			outcome.Hidden++
		}
		// Progress is informational; a failed counter write must not abort the run.
		if err := r.Runs.IncrementCount(ctx, in.Run.ID, 1); err != nil {
			logger.Warn("catalog sync counter update failed", slog.Any("error", err))
		}
	}
	r.Metrics.AddItems(in.Client.Vendor(), len(page.Records))
	return nil
}

func (r *Runner) failEmpty(ctx context.Context, in RunInput, cause error) error {
	msg := fmt.Sprintf("remote %s returned no products on the first page for pos location %q; existing catalog kept",
		in.Client.Vendor(), in.Target.PosID)
	if err := r.Runs.Fail(ctx, in.Run.ID, msg); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (r *Runner) finalize(ctx context.Context, in RunInput, outcome RunOutcome) error {
	msg := fmt.Sprintf("%d items from %d pages", outcome.Items, outcome.Pages)
	if err := r.Runs.Advance(ctx, in.Run.ID, syncrun.StatusCompleted, msg); err != nil {
		return fmt.Errorf("catalogsync: catalog committed but run %d not finalized: %w", in.Run.ID, err)
	}
	return nil
}

func (r *Runner) maxPages() int {
	if r.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return r.MaxPages
}

func (r *Runner) engine() *catalog.Engine {
	if r.Engine == nil {
		return catalog.NewEngine()
	}
	return r.Engine
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
