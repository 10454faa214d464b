package pos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// VendorBiotrack is the location vendor tag served by BiotrackClient.
const VendorBiotrack = "biotrack"

type biotrackProduct struct {
	ProductID         flexID              `json:"productId"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Category          string              `json:"category"`
	SubCategory       string              `json:"subCategory"`
	StrainName        string              `json:"strainName"`
	PricingType       string              `json:"pricingType"`
	InStock           bool                `json:"inStock"`
	IsDeleted         bool                `json:"isDeleted"`
	RemainingQuantity decimal.NullDecimal `json:"remainingQuantity"`
	UOM               string              `json:"uom"`
	Price             *struct {
		DefaultPrice decimal.Decimal `json:"defaultPrice"`
		PricingGroup string          `json:"pricingGroup"`
		Tiers        []struct {
			TierID   flexID          `json:"tierId"`
			TierName *string         `json:"tierName"`
			Price    decimal.Decimal `json:"price"`
			Weight   decimal.Decimal `json:"weight"`
		} `json:"tiers"`
	} `json:"price"`
}

// BiotrackClient reads the Biotrack inventory API.
type BiotrackClient struct {
	transport transport
}

// NewBiotrackClient constructs the Biotrack adapter.
func NewBiotrackClient(opts Options) *BiotrackClient {
	return &BiotrackClient{transport: newTransport(VendorBiotrack, "Authorization", "Bearer ", opts)}
}

// Vendor returns the vendor tag.
func (c *BiotrackClient) Vendor() string {
	return VendorBiotrack
}

// FetchPage fetches one page of the location inventory.
func (c *BiotrackClient) FetchPage(ctx context.Context, target Target, page int) (PageResult, error) {
	var body pageEnvelope
	if err := c.transport.getPage(ctx, target, page, &body); err != nil {
		return PageResult{}, err
	}
	result, err := body.result(VendorBiotrack, page)
	if err != nil {
		return PageResult{}, err
	}
	for i, raw := range body.Data {
		var p biotrackProduct
		if err := json.Unmarshal(raw, &p); err != nil {
			return PageResult{}, fmt.Errorf("%w: biotrack page %d item %d: %v", ErrMalformedResponse, page, i, err)
		}
		if p.ProductID == "" {
			return PageResult{}, fmt.Errorf("%w: biotrack page %d item %d: missing productId", ErrMalformedResponse, page, i)
		}
		rec := Record{
			PosID:       string(p.ProductID),
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Subcategory: p.SubCategory,
			Strain:      p.StrainName,
			PricingType: p.PricingType,
			InStock:     p.InStock,
			Deleted:     p.IsDeleted,
			Quantity:    p.RemainingQuantity,
			Unit:        p.UOM,
			Raw:         raw,
		}
		if p.Price != nil {
			pricing := &Pricing{Price: p.Price.DefaultPrice, Group: p.Price.PricingGroup}
			for _, t := range p.Price.Tiers {
				pricing.Tiers = append(pricing.Tiers, Tier{
					PosID:  string(t.TierID),
					Name:   t.TierName,
					Price:  t.Price,
					Weight: t.Weight,
				})
			}
			rec.Pricing = pricing
		}
		result.Records = append(result.Records, rec)
	}
	if err := checkFirstPage(VendorBiotrack, page, result); err != nil {
		return PageResult{}, err
	}
	return result, nil
}
