package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a location's local product, matched to the remote by (LocationID, PosID).
type Item struct {
	ID          int64
	LocationID  int64
	PosID       string
	Name        string
	Description string
	Category    string
	Subcategory string
	Strain      string
	PricingType string
	InStock     bool
	Deleted     bool
	CreatedBy   int64
	UpdatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Pricing is the single price record of an item.
type Pricing struct {
	ID        int64
	ItemID    int64
	Price     decimal.Decimal
	GroupName string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeightTier is one weight-based price point of a pricing record, matched by (PricingID, PosID).
type WeightTier struct {
	ID        int64
	PricingID int64
	PosID     string
	Name      string
	Price     decimal.Decimal
	Weight    decimal.Decimal
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNotFound indicates no row matched the natural key.
var ErrNotFound = errors.New("catalog: not found")
