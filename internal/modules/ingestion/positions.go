package ingestion

import (
	"strconv"
	"strings"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// NormalizePositions maps a holdings snapshot to positions.
// Output keeps input order; ids are 1..n over the accepted entries.
func NormalizePositions(holdings []domain.RawHolding, source string) ([]portfolio.Position, SyncReport) {
	report := newReport()
	positions := make([]portfolio.Position, 0, len(holdings))

	for i, h := range holdings {
		symbol := strings.ToUpper(strings.TrimSpace(h.Symbol))
		key := symbol
		if key == "" {
			key = "#" + strconv.Itoa(i)
		}
		if symbol == "" {
			report.reject(KindHolding, key, "missing symbol")
			continue
		}

		qty, err := toDecimal(h.Quantity, decimal.Zero)
		if err != nil {
			report.reject(KindHolding, key, "quantity: %v", err)
			continue
		}
		price, err := toDecimal(h.AverageBuyPrice, decimal.Zero)
		if err != nil {
			report.reject(KindHolding, key, "average_buy_price: %v", err)
			continue
		}
		if price.IsNegative() {
			report.reject(KindHolding, key, "average_buy_price: negative value %s", price)
			continue
		}

		positions = append(positions, portfolio.Position{
			ID:       len(positions) + 1,
			Symbol:   symbol,
			Quantity: qty,
			BuyPrice: price,
			Notes:    toText(h.Name),
			Source:   source,
		})
	}

	report.Accepted = len(positions)
	return positions, report
}
