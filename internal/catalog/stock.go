package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// UnitKind groups remote units of measure.
type UnitKind int

const (
	UnitUnknown UnitKind = iota
	UnitWeight
	UnitCount
)

var (
	// MinWeightGrams is the stock below which weight-sold items are hidden.
	MinWeightGrams = decimal.NewFromInt(10)
	// MinCountEach is the stock below which count-sold items are hidden.
	MinCountEach = decimal.NewFromInt(2)
)

// gramsPer converts a weight unit to grams.
var gramsPer = map[string]decimal.Decimal{
	"g":          decimal.NewFromInt(1),
	"gr":         decimal.NewFromInt(1),
	"gram":       decimal.NewFromInt(1),
	"grams":      decimal.NewFromInt(1),
	"mg":         decimal.RequireFromString("0.001"),
	"milligram":  decimal.RequireFromString("0.001"),
	"milligrams": decimal.RequireFromString("0.001"),
	"kg":         decimal.NewFromInt(1000),
	"kilogram":   decimal.NewFromInt(1000),
	"kilograms":  decimal.NewFromInt(1000),
	"oz":         decimal.RequireFromString("28.349523125"),
	"ounce":      decimal.RequireFromString("28.349523125"),
	"ounces":     decimal.RequireFromString("28.349523125"),
	"lb":         decimal.RequireFromString("453.59237"),
	"lbs":        decimal.RequireFromString("453.59237"),
	"pound":      decimal.RequireFromString("453.59237"),
	"pounds":     decimal.RequireFromString("453.59237"),
}

var countUnits = map[string]struct{}{
	"each": {}, "ea": {}, "unit": {}, "units": {}, "count": {}, "ct": {},
	"pc": {}, "pcs": {}, "piece": {}, "pieces": {},
}

// ClassifyUnit reports whether a remote unit is weight or count based.
func ClassifyUnit(unit string) UnitKind {
	u := strings.ToLower(strings.TrimSpace(unit))
	if _, ok := gramsPer[u]; ok {
		return UnitWeight
	}
	if _, ok := countUnits[u]; ok {
		return UnitCount
	}
	return UnitUnknown
}

// LowStock reports whether quantity falls below the unit's hide threshold.
// Quantities in unknown units are never considered low.
func LowStock(quantity decimal.Decimal, unit string) bool {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch ClassifyUnit(u) {
	case UnitWeight:
		return quantity.Mul(gramsPer[u]).LessThan(MinWeightGrams)
	case UnitCount:
		return quantity.LessThan(MinCountEach)
	case UnitUnknown:
		return false
	}
	return false
}
