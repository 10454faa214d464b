package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/greenline/possync/internal/pos"
)

// Engine turns remote records into local item, pricing and tier rows.
type Engine struct{}

// NewEngine constructs Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Result describes what Apply wrote for one record.
type Result struct {
	Item    Item
	Created bool
	Hidden  bool
	Pricing *Pricing
	Tiers   int
}

// Apply upserts the item and, when the record carries pricing, its pricing and tiers.
func (e *Engine) Apply(ctx context.Context, tx TxRepository, locationID int64, rec pos.Record, actorID int64) (Result, error) {
	item, created, err := e.upsertItem(ctx, tx, locationID, rec, actorID)
	if err != nil {
		return Result{}, err
	}
	res := Result{Item: item, Created: created, Hidden: item.Deleted && !rec.Deleted}
	if rec.Pricing == nil {
		return res, nil
	}
	pricing, err := e.UpsertPricing(ctx, tx, item, *rec.Pricing)
	if err != nil {
		return Result{}, err
	}
	if err := e.ReplaceWeightTiers(ctx, tx, pricing, rec.Pricing.Tiers); err != nil {
		return Result{}, err
	}
	res.Pricing = &pricing
	res.Tiers = len(rec.Pricing.Tiers)
	return res, nil
}

// UpsertItem matches the record to an existing item by (location, pos id) and
// overwrites its mutable fields, or inserts a new item.
func (e *Engine) UpsertItem(ctx context.Context, tx TxRepository, locationID int64, rec pos.Record, actorID int64) (Item, error) {
	item, _, err := e.upsertItem(ctx, tx, locationID, rec, actorID)
	return item, err
}

func (e *Engine) upsertItem(ctx context.Context, tx TxRepository, locationID int64, rec pos.Record, actorID int64) (Item, bool, error) {
	posID := strings.TrimSpace(rec.PosID)
	if posID == "" {
		return Item{}, false, errors.New("catalog: remote record without pos id")
	}

	existing, err := tx.FindItem(ctx, locationID, posID)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Item{}, false, fmt.Errorf("catalog: find item %s: %w", posID, err)
	}

	item := existing
	if !found {
		item = Item{LocationID: locationID, PosID: posID, CreatedBy: actorID}
	}
	item.Name = clean(rec.Name)
	item.Description = clean(rec.Description)
	item.Category = clean(rec.Category)
	item.Subcategory = clean(rec.Subcategory)
	item.Strain = clean(rec.Strain)
	item.PricingType = strings.ToLower(clean(rec.PricingType))
	item.InStock = rec.InStock
	item.Deleted = rec.Deleted || autoHide(rec)
	item.UpdatedBy = actorID

	if found {
		updated, err := tx.UpdateItem(ctx, item)
		if err != nil {
			return Item{}, false, fmt.Errorf("catalog: update item %d: %w", item.ID, err)
		}
		return updated, false, nil
	}
	inserted, err := tx.InsertItem(ctx, item)
	if err != nil {
		return Item{}, false, fmt.Errorf("catalog: insert item %s: %w", posID, err)
	}
	return inserted, true, nil
}

// autoHide forces live items with too little stock out of the catalog.
func autoHide(rec pos.Record) bool {
	if rec.Deleted || !rec.Quantity.Valid {
		return false
	}
	return LowStock(rec.Quantity.Decimal, rec.Unit)
}

// UpsertPricing updates the item's pricing record in place or inserts one.
func (e *Engine) UpsertPricing(ctx context.Context, tx TxRepository, item Item, remote pos.Pricing) (Pricing, error) {
	existing, err := tx.FindPricing(ctx, item.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Pricing{}, fmt.Errorf("catalog: find pricing for item %d: %w", item.ID, err)
	}
	if err == nil {
		existing.Price = remote.Price
		existing.GroupName = clean(remote.Group)
		updated, err := tx.UpdatePricing(ctx, existing)
		if err != nil {
			return Pricing{}, fmt.Errorf("catalog: update pricing %d: %w", existing.ID, err)
		}
		return updated, nil
	}
	inserted, err := tx.InsertPricing(ctx, Pricing{ItemID: item.ID, Price: remote.Price, GroupName: clean(remote.Group)})
	if err != nil {
		return Pricing{}, fmt.Errorf("catalog: insert pricing for item %d: %w", item.ID, err)
	}
	return inserted, nil
}

// ReplaceWeightTiers makes the live tiers of pricing mirror remote exactly:
// every tier is swept first, then each remote tier is revived or created.
func (e *Engine) ReplaceWeightTiers(ctx context.Context, tx TxRepository, pricing Pricing, remote []pos.Tier) error {
	if err := tx.SweepTiers(ctx, pricing.ID); err != nil {
		return fmt.Errorf("catalog: sweep tiers of pricing %d: %w", pricing.ID, err)
	}
	for _, rt := range remote {
		posID := strings.TrimSpace(rt.PosID)
		if posID == "" {
			return fmt.Errorf("catalog: tier without pos id on pricing %d", pricing.ID)
		}
		name := ""
		if rt.Name != nil {
			name = clean(*rt.Name)
		}
		tier, err := tx.FindTier(ctx, pricing.ID, posID)
		switch {
		case err == nil:
			tier.Name = name
			tier.Price = rt.Price
			tier.Weight = rt.Weight
			tier.Deleted = false
			if _, err := tx.UpdateTier(ctx, tier); err != nil {
				return fmt.Errorf("catalog: update tier %d: %w", tier.ID, err)
			}
		case errors.Is(err, ErrNotFound):
			_, err := tx.InsertTier(ctx, WeightTier{
				PricingID: pricing.ID,
				PosID:     posID,
				Name:      name,
				Price:     rt.Price,
				Weight:    rt.Weight,
			})
			if err != nil {
				return fmt.Errorf("catalog: insert tier %s: %w", posID, err)
			}
		default:
			return fmt.Errorf("catalog: find tier %s: %w", posID, err)
		}
	}
	return nil
}
