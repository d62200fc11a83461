package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rowByLabel(t *testing.T, v Valuation, label string) ValuationRow {
	t.Helper()
	for _, row := range v.Rows {
		if row.Label == label {
			return row
		}
	}
	t.Fatalf("row %q not found", label)
	return ValuationRow{}
}

func TestValuate_CashAndOnePosition(t *testing.T) {
	positions := []Position{{ID: 1, Symbol: "AAPL", Quantity: d("2"), BuyPrice: d("100")}}
	v := Valuate(positions, Capital{Cash: d("1000")})

	require.Len(t, v.Rows, 3)
	assert.Equal(t, "AAPL", v.Rows[0].Label)
	assert.Equal(t, LabelBTC, v.Rows[1].Label)
	assert.Equal(t, LabelCash, v.Rows[2].Label)

	assert.True(t, d("20").Equal(v.Rows[0].Percent), "position percent %s", v.Rows[0].Percent)
	assert.True(t, d("0").Equal(v.Rows[1].Percent))
	assert.True(t, d("80").Equal(v.Rows[2].Percent), "cash percent %s", v.Rows[2].Percent)

	assert.True(t, d("200").Equal(v.Summary.Basis))
	assert.True(t, d("800").Equal(v.Summary.CashRemaining))
	assert.True(t, d("1000").Equal(v.Summary.Total))
	assert.Equal(t, "$200.00", v.Rows[0].Display)
	assert.Equal(t, "$800.00", v.Rows[2].Display)
}

func TestValuate_ZeroTotal(t *testing.T) {
	v := Valuate(nil, Capital{})

	require.Len(t, v.Rows, 2)
	for _, row := range v.Rows {
		assert.True(t, row.Percent.IsZero(), "%s percent %s", row.Label, row.Percent)
	}
	assert.True(t, v.Summary.Total.IsZero())
	assert.Equal(t, 0.0, v.Summary.Concentration)
}

func TestValuate_BasisExceedsCash(t *testing.T) {
	positions := []Position{{ID: 1, Symbol: "MSFT", Quantity: d("10"), BuyPrice: d("300")}}
	v := Valuate(positions, Capital{Cash: d("1000")})

	cash := rowByLabel(t, v, LabelCash)
	assert.True(t, cash.Value.IsZero())
	assert.True(t, d("100").Equal(rowByLabel(t, v, "MSFT").Percent))
}

func TestValuate_BTCQuantity(t *testing.T) {
	t.Run("implied quantity with average price", func(t *testing.T) {
		v := Valuate(nil, Capital{BTCDollarValue: d("5000"), BTCAvgBuyPrice: d("25000")})
		btc := rowByLabel(t, v, LabelBTC)
		require.NotNil(t, btc.Quantity)
		assert.True(t, d("0.2").Equal(*btc.Quantity))
		assert.True(t, d("100").Equal(btc.Percent))
	})

	t.Run("omitted without average price", func(t *testing.T) {
		v := Valuate(nil, Capital{BTCDollarValue: d("5000")})
		assert.Nil(t, rowByLabel(t, v, LabelBTC).Quantity)
	})
}

func TestValuate_RoundsToTwoPlaces(t *testing.T) {
	positions := []Position{{ID: 1, Symbol: "X", Quantity: d("1"), BuyPrice: d("1")}}
	v := Valuate(positions, Capital{Cash: d("3")})

	assert.Equal(t, "33.33", v.Rows[0].Percent.StringFixed(2))
	assert.Equal(t, "66.67", rowByLabel(t, v, LabelCash).Percent.StringFixed(2))
}

func TestValuate_Idempotent(t *testing.T) {
	positions := []Position{
		{ID: 1, Symbol: "AAPL", Quantity: d("3"), BuyPrice: d("150.25")},
		{ID: 2, Symbol: "VTI", Quantity: d("7.5"), BuyPrice: d("220")},
	}
	capital := Capital{Cash: d("10000"), BTCDollarValue: d("1234.56"), BTCAvgBuyPrice: d("30000")}

	first := Valuate(positions, capital)
	second := Valuate(positions, capital)
	assert.Equal(t, first, second)
}

func TestValuate_Concentration(t *testing.T) {
	// A single row holding everything is fully concentrated
	v := Valuate(nil, Capital{Cash: d("500")})
	assert.InDelta(t, 1.0, v.Summary.Concentration, 1e-9)

	// Two equal rows
	positions := []Position{{ID: 1, Symbol: "A", Quantity: d("1"), BuyPrice: d("500")}}
	v = Valuate(positions, Capital{Cash: d("1000")})
	assert.InDelta(t, 0.5, v.Summary.Concentration, 1e-9)
}
