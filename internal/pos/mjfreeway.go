package pos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// VendorMJFreeway is the location vendor tag served by MJFreewayClient.
const VendorMJFreeway = "mjfreeway"

type mjfreewayItem struct {
	ID              flexID              `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	CategoryName    string              `json:"category_name"`
	SubcategoryName string              `json:"subcategory_name"`
	StrainName      string              `json:"strain_name"`
	PricingType     string              `json:"pricing_type"`
	InStock         bool                `json:"in_stock"`
	IsDeleted       bool                `json:"is_deleted"`
	Quantity        decimal.NullDecimal `json:"quantity"`
	UOM             string              `json:"uom"`
	Pricing         *struct {
		DefaultPrice     decimal.Decimal `json:"default_price"`
		PricingGroupName string          `json:"pricing_group_name"`
		WeightPrices     []struct {
			ID     flexID          `json:"id"`
			Name   *string         `json:"name"`
			Price  decimal.Decimal `json:"price"`
			Weight decimal.Decimal `json:"weight"`
		} `json:"weight_prices"`
	} `json:"pricing"`
}

// MJFreewayClient reads the MJFreeway inventory API.
type MJFreewayClient struct {
	transport transport
}

// NewMJFreewayClient constructs the MJFreeway adapter.
func NewMJFreewayClient(opts Options) *MJFreewayClient {
	return &MJFreewayClient{transport: newTransport(VendorMJFreeway, "x-mjf-api-key", "", opts)}
}

// Vendor returns the vendor tag.
func (c *MJFreewayClient) Vendor() string {
	return VendorMJFreeway
}

// FetchPage fetches one page of the location inventory.
func (c *MJFreewayClient) FetchPage(ctx context.Context, target Target, page int) (PageResult, error) {
	var body pageEnvelope
	if err := c.transport.getPage(ctx, target, page, &body); err != nil {
		return PageResult{}, err
	}
	result, err := body.result(VendorMJFreeway, page)
	if err != nil {
		return PageResult{}, err
	}
	for i, raw := range body.Data {
		var item mjfreewayItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return PageResult{}, fmt.Errorf("%w: mjfreeway page %d item %d: %v", ErrMalformedResponse, page, i, err)
		}
		if item.ID == "" {
			return PageResult{}, fmt.Errorf("%w: mjfreeway page %d item %d: missing id", ErrMalformedResponse, page, i)
		}
		rec := Record{
			PosID:       string(item.ID),
			Name:        item.Name,
			Description: item.Description,
			Category:    item.CategoryName,
			Subcategory: item.SubcategoryName,
			Strain:      item.StrainName,
			PricingType: item.PricingType,
			InStock:     item.InStock,
			Deleted:     item.IsDeleted,
			Quantity:    item.Quantity,
			Unit:        item.UOM,
			Raw:         raw,
		}
		if item.Pricing != nil {
			pricing := &Pricing{Price: item.Pricing.DefaultPrice, Group: item.Pricing.PricingGroupName}
			for _, wp := range item.Pricing.WeightPrices {
				pricing.Tiers = append(pricing.Tiers, Tier{
					PosID:  string(wp.ID),
					Name:   wp.Name,
					Price:  wp.Price,
					Weight: wp.Weight,
				})
			}
			rec.Pricing = pricing
		}
		result.Records = append(result.Records, rec)
	}
	if err := checkFirstPage(VendorMJFreeway, page, result); err != nil {
		return PageResult{}, err
	}
	return result, nil
}
