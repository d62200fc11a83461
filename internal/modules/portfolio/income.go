package portfolio

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DividendSummary totals the dividends paid in one calendar year
type DividendSummary struct {
	Year      int             `json:"year"`
	Total     decimal.Decimal `json:"total"`
	Count     int             `json:"count"`
	Dividends []Dividend      `json:"dividends"`
}

// RealizedSummary totals the realized P/L recorded on trades.
// Unrealized P/L needs market prices and is not computed.
type RealizedSummary struct {
	Realized decimal.Decimal            `json:"realized"`
	Trades   int                        `json:"trades"`
	BySymbol map[string]decimal.Decimal `json:"by_symbol"`
}

// RealizedEntry is one trade's realized P/L
type RealizedEntry struct {
	TradeID int             `json:"trade_id"`
	Symbol  string          `json:"symbol"`
	Date    string          `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
}

// SummarizeDividends totals the dividends whose pay date falls in year
func SummarizeDividends(dividends []Dividend, year int) DividendSummary {
	prefix := yearPrefix(year)
	summary := DividendSummary{Year: year, Total: decimal.Zero, Dividends: make([]Dividend, 0)}
	for _, d := range dividends {
		if !strings.HasPrefix(d.PayDate, prefix) {
			continue
		}
		summary.Total = summary.Total.Add(d.Amount)
		summary.Dividends = append(summary.Dividends, d)
	}
	summary.Count = len(summary.Dividends)
	return summary
}

// SummarizeRealized adds up Trade.PL overall and per symbol
func SummarizeRealized(trades []Trade) RealizedSummary {
	summary := RealizedSummary{
		Realized: decimal.Zero,
		Trades:   len(trades),
		BySymbol: make(map[string]decimal.Decimal),
	}
	for _, t := range trades {
		summary.Realized = summary.Realized.Add(t.PL)
		summary.BySymbol[t.Symbol] = summary.BySymbol[t.Symbol].Add(t.PL)
	}
	return summary
}

// RealizedDetails lists every trade's realized P/L in trade order
func RealizedDetails(trades []Trade) []RealizedEntry {
	entries := make([]RealizedEntry, 0, len(trades))
	for _, t := range trades {
		entries = append(entries, RealizedEntry{TradeID: t.ID, Symbol: t.Symbol, Date: t.Date, Amount: t.PL})
	}
	return entries
}

func yearPrefix(year int) string {
	return fmt.Sprintf("%04d-", year)
}
