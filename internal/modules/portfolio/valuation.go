package portfolio

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// Row labels for the non-position valuation rows
const (
	LabelBTC  = "BTC"
	LabelCash = "Cash"
)

var hundred = decimal.NewFromInt(100)

// ValuationRow is one line of the allocation table
type ValuationRow struct {
	Label   string           `json:"label"`
	Value   decimal.Decimal  `json:"value"`
	Percent decimal.Decimal  `json:"percent"`
	Display string           `json:"display"`
	// Quantity is set for positions, and for BTC when an average buy price is known
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
}

// ValuationSummary holds the totals behind the rows
type ValuationSummary struct {
	Basis         decimal.Decimal `json:"basis"`
	CashRemaining decimal.Decimal `json:"cash_remaining"`
	BTCValue      decimal.Decimal `json:"btc_value"`
	Total         decimal.Decimal `json:"total"`
	// Concentration is the Herfindahl index of row weights, 0 for an empty portfolio
	Concentration float64 `json:"concentration"`
}

// Valuation is the allocation table: positions, then BTC, then Cash
type Valuation struct {
	Rows    []ValuationRow   `json:"rows"`
	Summary ValuationSummary `json:"summary"`
}

// Valuate computes cost-basis allocation percentages against the declared capital.
// It is a pure function of its inputs.
//
//	basis          = Σ quantity × buy_price
//	cash_remaining = max(cash − basis, 0)
//	total          = basis + btc + cash_remaining (1 when zero)
//	percent        = round(value / total × 100, 2)
func Valuate(positions []Position, capital Capital) Valuation {
	basis := decimal.Zero
	for _, p := range positions {
		basis = basis.Add(p.Value())
	}

	cashRemaining := decimal.Max(capital.Cash.Sub(basis), decimal.Zero)
	btcValue := capital.BTCDollarValue

	total := basis.Add(btcValue).Add(cashRemaining)
	denominator := total
	if denominator.IsZero() {
		denominator = decimal.NewFromInt(1)
	}

	rows := make([]ValuationRow, 0, len(positions)+2)
	for _, p := range positions {
		qty := p.Quantity
		rows = append(rows, newRow(p.Symbol, p.Value(), denominator, &qty))
	}

	var btcQty *decimal.Decimal
	if capital.BTCAvgBuyPrice.IsPositive() {
		q := btcValue.Div(capital.BTCAvgBuyPrice)
		btcQty = &q
	}
	rows = append(rows, newRow(LabelBTC, btcValue, denominator, btcQty))
	rows = append(rows, newRow(LabelCash, cashRemaining, denominator, nil))

	return Valuation{
		Rows: rows,
		Summary: ValuationSummary{
			Basis:         basis,
			CashRemaining: cashRemaining,
			BTCValue:      btcValue,
			Total:         total,
			Concentration: concentration(rows, total),
		},
	}
}

func newRow(label string, value, denominator decimal.Decimal, qty *decimal.Decimal) ValuationRow {
	return ValuationRow{
		Label:    label,
		Value:    value,
		Percent:  value.Div(denominator).Mul(hundred).Round(2),
		Display:  formatUSD(value),
		Quantity: qty,
	}
}

// concentration returns Σ w² over row weights
func concentration(rows []ValuationRow, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	weights := make([]float64, len(rows))
	for i, row := range rows {
		weights[i] = row.Value.Div(total).InexactFloat64()
	}
	return floats.Dot(weights, weights)
}

func formatUSD(value decimal.Decimal) string {
	cents := value.Mul(hundred).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}
