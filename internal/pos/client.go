// Package pos contains the vendor-specific point-of-sale inventory adapters.
//
// Every adapter speaks the same paginated contract: one call fetches one page
// of the remote catalog for one location and returns the records in a
// vendor-neutral shape, together with the page cursor reported by the remote.
package pos

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Target identifies the remote inventory of one location.
type Target struct {
	LocationID int64
	PosID      string
	BaseURL    string
	APIKey     string
	RoomID     string
}

// Record is one remote catalog entry normalised from the vendor schema.
type Record struct {
	PosID       string
	Name        string
	Description string
	Category    string
	Subcategory string
	Strain      string
	PricingType string
	InStock     bool
	Deleted     bool
	Quantity    decimal.NullDecimal
	Unit        string
	Pricing     *Pricing
	Raw         json.RawMessage
}

// Pricing is the remote price block of a record.
type Pricing struct {
	Price decimal.Decimal
	Group string
	Tiers []Tier
}

// Tier is one remote weight tier. Name is nil when the vendor omitted it.
type Tier struct {
	PosID  string
	Name   *string
	Price  decimal.Decimal
	Weight decimal.Decimal
}

// PageResult is a single page returned by the remote inventory endpoint.
type PageResult struct {
	Records     []Record
	CurrentPage int
	LastPage    int
	Total       int
}

// HasMore reports whether the remote advertises pages after this one.
func (p PageResult) HasMore() bool {
	return p.CurrentPage < p.LastPage
}

// Client fetches inventory pages from a remote POS.
type Client interface {
	Vendor() string
	FetchPage(ctx context.Context, target Target, page int) (PageResult, error)
}
