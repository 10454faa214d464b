package syncrun

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository writes run rows straight to the pool. It never joins the catalog
// transaction, so every transition stays visible after a rollback or crash.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const runColumns = `id, run_id, location_id, vendor, status, message, item_count, initiated_by, created_at, updated_at`

func scanRun(row pgx.Row) (Run, error) {
	var (
		r      Run
		status string
	)
	if err := row.Scan(&r.ID, &r.RunID, &r.LocationID, &r.Vendor, &status, &r.Message, &r.ItemCount,
		&r.InitiatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Run{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Run{}, err
	}
	r.Status = st
	return r, nil
}

// Start inserts a run in the started status.
func (r *Repository) Start(ctx context.Context, run Run) (Run, error) {
	run.Status = StatusStarted
	err := r.pool.QueryRow(ctx, `INSERT INTO pos_sync_runs (run_id, location_id, vendor, status, message, item_count, initiated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		run.RunID, run.LocationID, run.Vendor, run.Status.String(), run.Message, run.InitiatedBy,
	).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("syncrun: start: %w", err)
	}
	run.ItemCount = 0
	return run, nil
}

// Advance moves run id to next. The guard is evaluated in the UPDATE itself so a
// concurrent writer cannot slip an illegal transition in between.
func (r *Repository) Advance(ctx context.Context, id int64, next Status, message string) error {
	allowed := predecessors(next)
	if len(allowed) == 0 {
		return fmt.Errorf("%w: nothing advances to %s", ErrIllegalTransition, next)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE pos_sync_runs SET status = $2, message = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)`, id, next.String(), message, allowed)
	if err != nil {
		return fmt.Errorf("syncrun: advance %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s (run %d)", ErrIllegalTransition, current.Status, next, id)
}

// Fail marks the run failed with message.
func (r *Repository) Fail(ctx context.Context, id int64, message string) error {
	return r.Advance(ctx, id, StatusFailed, message)
}

// IncrementCount adds delta to the running item counter.
func (r *Repository) IncrementCount(ctx context.Context, id int64, delta int) error {
	_, err := r.pool.Exec(ctx, `UPDATE pos_sync_runs SET item_count = item_count + $2, updated_at = NOW() WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("syncrun: increment %d: %w", id, err)
	}
	return nil
}

// Get loads one run.
func (r *Repository) Get(ctx context.Context, id int64) (Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pos_sync_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// ListByRun returns every location run created by one orchestrator pass.
func (r *Repository) ListByRun(ctx context.Context, runID uuid.UUID) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM pos_sync_runs WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestByLocation returns the most recent run of a location.
func (r *Repository) LatestByLocation(ctx context.Context, locationID int64) (Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pos_sync_runs
		WHERE location_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, locationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}
