package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClassifyUnit(t *testing.T) {
	require.Equal(t, UnitWeight, ClassifyUnit(" Grams "))
	require.Equal(t, UnitWeight, ClassifyUnit("lb"))
	require.Equal(t, UnitCount, ClassifyUnit("EACH"))
	require.Equal(t, UnitUnknown, ClassifyUnit(""))
}

func TestLowStockConvertsWeights(t *testing.T) {
	require.True(t, LowStock(decimal.RequireFromString("9999"), "mg"))
	require.False(t, LowStock(decimal.RequireFromString("10000"), "mg"))
	require.False(t, LowStock(decimal.RequireFromString("0.5"), "oz"))
	require.True(t, LowStock(decimal.RequireFromString("0.001"), "kg"))
}

func TestCleanNormalizesUnicode(t *testing.T) {
	require.Equal(t, "Cr\u00e9me Brulee", clean(" Cre\u0301me Brulee "))
}
