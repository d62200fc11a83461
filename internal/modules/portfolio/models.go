// Package portfolio provides the committed portfolio snapshot, manual CRUD and valuation.
package portfolio

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SourceManual marks positions entered by hand
const SourceManual = "manual"

var (
	// ErrNotFound is returned when a position or trade id does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when creating a position or trade whose id is taken
	ErrConflict = errors.New("already exists")
)

// Position is a holding valued at cost basis (Quantity × BuyPrice)
type Position struct {
	ID       int             `json:"id"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	BuyPrice decimal.Decimal `json:"buy_price"`
	Notes    string          `json:"notes"`
	Source   string          `json:"source"`
}

// Value returns the cost-basis value of the position
func (p Position) Value() decimal.Decimal {
	return p.Quantity.Mul(p.BuyPrice)
}

// Trade is a single executed fill
type Trade struct {
	ID       int             `json:"id"`
	Symbol   string          `json:"symbol"`
	Type     string          `json:"type"` // "buy" or "sell"
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Date     string          `json:"date"`
	Fees     decimal.Decimal `json:"fees"`
	PL       decimal.Decimal `json:"pl"`
	Notes    string          `json:"notes"`
}

// Dividend is a dividend payment recorded by hand. A sync replaces the
// whole set with an empty one.
type Dividend struct {
	ID      int             `json:"id"`
	Symbol  string          `json:"symbol"`
	PayDate string          `json:"pay_date"`
	Amount  decimal.Decimal `json:"amount"`
}

// Snapshot is the full normalized result of one sync, committed atomically
type Snapshot struct {
	AttemptID     string
	PulledAt      time.Time
	Positions     []Position
	Trades        []Trade
	Dividends     []Dividend
	RejectedCount int
}

// SyncStatus describes the last committed sync
type SyncStatus struct {
	LastPull      *time.Time `json:"last_pull"`
	AttemptID     string     `json:"attempt_id"`
	PositionCount int        `json:"position_count"`
	TradeCount    int        `json:"trade_count"`
	DividendCount int        `json:"dividend_count"`
	RejectedCount int        `json:"rejected_count"`
}

// Capital is the user-declared capital a valuation is computed against
type Capital struct {
	Cash           decimal.Decimal
	BTCDollarValue decimal.Decimal
	BTCAvgBuyPrice decimal.Decimal
}

// ValidTradeType reports whether t is a supported trade side
func ValidTradeType(t string) bool {
	return t == "buy" || t == "sell"
}
