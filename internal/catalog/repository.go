package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenline/possync/internal/platform/db"
)

// Repository persists the catalog in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the statements the sync runs inside one transaction.
type TxRepository interface {
	SweepLocation(ctx context.Context, locationID, actorID int64) (int64, error)
	FindItem(ctx context.Context, locationID int64, posID string) (Item, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	FindPricing(ctx context.Context, itemID int64) (Pricing, error)
	InsertPricing(ctx context.Context, pricing Pricing) (Pricing, error)
	UpdatePricing(ctx context.Context, pricing Pricing) (Pricing, error)
	SweepTiers(ctx context.Context, pricingID int64) error
	FindTier(ctx context.Context, pricingID int64, posID string) (WeightTier, error)
	InsertTier(ctx context.Context, tier WeightTier) (WeightTier, error)
	UpdateTier(ctx context.Context, tier WeightTier) (WeightTier, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction. Nothing
// written through the TxRepository survives when fn returns an error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const itemColumns = `id, location_id, pos_id, name, description, category, subcategory, strain,
	pricing_type, in_stock, deleted, created_by, updated_by, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.LocationID, &it.PosID, &it.Name, &it.Description, &it.Category,
		&it.Subcategory, &it.Strain, &it.PricingType, &it.InStock, &it.Deleted, &it.CreatedBy,
		&it.UpdatedBy, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *txRepo) SweepLocation(ctx context.Context, locationID, actorID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET deleted = TRUE, updated_by = $2, updated_at = NOW()
		WHERE location_id = $1 AND deleted = FALSE`, locationID, actorID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) FindItem(ctx context.Context, locationID int64, posID string) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM products
		WHERE location_id = $1 AND pos_id = $2 ORDER BY id LIMIT 1`, locationID, posID)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (r *txRepo) InsertItem(ctx context.Context, it Item) (Item, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO products (location_id, pos_id, name, description, category,
			subcategory, strain, pricing_type, in_stock, deleted, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		it.LocationID, it.PosID, it.Name, it.Description, it.Category, it.Subcategory, it.Strain,
		it.PricingType, it.InStock, it.Deleted, it.CreatedBy, it.UpdatedBy,
	).Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (r *txRepo) UpdateItem(ctx context.Context, it Item) (Item, error) {
	err := r.tx.QueryRow(ctx, `UPDATE products SET name = $2, description = $3, category = $4,
			subcategory = $5, strain = $6, pricing_type = $7, in_stock = $8, deleted = $9,
			updated_by = $10, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		it.ID, it.Name, it.Description, it.Category, it.Subcategory, it.Strain, it.PricingType,
		it.InStock, it.Deleted, it.UpdatedBy,
	).Scan(&it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (r *txRepo) FindPricing(ctx context.Context, itemID int64) (Pricing, error) {
	var p Pricing
	err := r.tx.QueryRow(ctx, `SELECT id, product_id, price, group_name, created_at, updated_at
		FROM product_pricing WHERE product_id = $1 ORDER BY id LIMIT 1`, itemID,
	).Scan(&p.ID, &p.ItemID, &p.Price, &p.GroupName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pricing{}, ErrNotFound
	}
	return p, err
}

func (r *txRepo) InsertPricing(ctx context.Context, p Pricing) (Pricing, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO product_pricing (product_id, price, group_name, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		p.ItemID, p.Price, p.GroupName,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Pricing{}, err
	}
	return p, nil
}

func (r *txRepo) UpdatePricing(ctx context.Context, p Pricing) (Pricing, error) {
	err := r.tx.QueryRow(ctx, `UPDATE product_pricing SET price = $2, group_name = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`, p.ID, p.Price, p.GroupName,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pricing{}, ErrNotFound
	}
	if err != nil {
		return Pricing{}, err
	}
	return p, nil
}

func (r *txRepo) SweepTiers(ctx context.Context, pricingID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE product_weight_tiers SET deleted = TRUE, updated_at = NOW()
		WHERE pricing_id = $1 AND deleted = FALSE`, pricingID)
	return err
}

func (r *txRepo) FindTier(ctx context.Context, pricingID int64, posID string) (WeightTier, error) {
	var t WeightTier
	err := r.tx.QueryRow(ctx, `SELECT id, pricing_id, pos_id, name, price, weight, deleted, created_at, updated_at
		FROM product_weight_tiers WHERE pricing_id = $1 AND pos_id = $2 ORDER BY id LIMIT 1`, pricingID, posID,
	).Scan(&t.ID, &t.PricingID, &t.PosID, &t.Name, &t.Price, &t.Weight, &t.Deleted, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WeightTier{}, ErrNotFound
	}
	return t, err
}

func (r *txRepo) InsertTier(ctx context.Context, t WeightTier) (WeightTier, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO product_weight_tiers (pricing_id, pos_id, name, price, weight, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		t.PricingID, t.PosID, t.Name, t.Price, t.Weight, t.Deleted,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return WeightTier{}, err
	}
	return t, nil
}

func (r *txRepo) UpdateTier(ctx context.Context, t WeightTier) (WeightTier, error) {
	err := r.tx.QueryRow(ctx, `UPDATE product_weight_tiers SET name = $2, price = $3, weight = $4, deleted = $5, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`, t.ID, t.Name, t.Price, t.Weight, t.Deleted,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WeightTier{}, ErrNotFound
	}
	if err != nil {
		return WeightTier{}, err
	}
	return t, nil
}
