package locations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing location.
var ErrNotFound = errors.New("locations: not found")

// Repository reads locations from postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const locationColumns = `l.id, l.organization_id, l.name, l.pos_vendor, COALESCE(l.pos_id, ''), l.pos_config, l.deleted`

func scanLocation(row pgx.Row) (Location, error) {
	var (
		loc Location
		raw []byte
	)
	if err := row.Scan(&loc.ID, &loc.OrganizationID, &loc.Name, &loc.Vendor, &loc.POSID, &raw, &loc.Deleted); err != nil {
		return Location{}, err
	}
	if len(raw) > 0 && string(raw) != "null" {
		var cfg POSConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Location{}, fmt.Errorf("locations: decode pos_config of %d: %w", loc.ID, err)
		}
		loc.Config = &cfg
	}
	return loc, nil
}

// ListEligible returns the non-deleted locations of non-deleted organizations
// using the filter's vendor, optionally restricted to an id allow-list.
func (r *Repository) ListEligible(ctx context.Context, filter Filter) ([]Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations l
		JOIN organizations o ON o.id = l.organization_id
		WHERE l.deleted = FALSE AND o.deleted = FALSE AND LOWER(l.pos_vendor) = $1`
	args := []any{strings.ToLower(strings.TrimSpace(filter.Vendor))}
	if len(filter.LocationIDs) > 0 {
		args = append(args, filter.LocationIDs)
		query += ` AND l.id = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY l.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// Get loads one location regardless of eligibility.
func (r *Repository) Get(ctx context.Context, id int64) (Location, error) {
	loc, err := scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations l WHERE l.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return loc, err
}
