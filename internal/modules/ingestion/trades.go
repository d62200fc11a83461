package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/instruments"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// FeeFields are the execution fee sub-fields summed into Trade.Fees:
// base commission, regulatory, transaction and clearing fees.
var FeeFields = []string{"fees", "sec_fee", "taf_fee", "cat_fee"}

// NotesPrefix prefixes the broker order id in Trade.Notes
const NotesPrefix = "broker order: "

// SymbolResolver maps an instrument reference to a symbol. An error wrapping
// instruments.ErrUnresolved drops the order; any other error aborts.
type SymbolResolver interface {
	Resolve(ctx context.Context, session *domain.BrokerSession, ref string) (string, error)
}

// NormalizeTrades flattens orders into one trade per execution.
// Only market and limit orders are converted; others are counted as skipped.
// An order whose instrument cannot be resolved is rejected with all its executions.
// A lookup that times out returns an error: committing the remaining trades
// would silently lose every order after it.
func NormalizeTrades(ctx context.Context, orders []domain.RawOrder, session *domain.BrokerSession, resolver SymbolResolver) ([]portfolio.Trade, SyncReport, error) {
	report := newReport()
	trades := make([]portfolio.Trade, 0)

	for _, order := range orders {
		orderType := strings.ToLower(strings.TrimSpace(order.Type))
		if orderType != "market" && orderType != "limit" {
			report.Skipped++
			continue
		}

		key := order.ID
		if order.InstrumentRef == "" {
			report.reject(KindOrder, key, "missing instrument reference")
			continue
		}

		side := strings.ToLower(strings.TrimSpace(order.Side))
		if side == "" {
			side = "buy"
		}
		if !portfolio.ValidTradeType(side) {
			report.reject(KindOrder, key, "unsupported side %q", order.Side)
			continue
		}

		symbol, err := resolver.Resolve(ctx, session, order.InstrumentRef)
		if errors.Is(err, instruments.ErrUnresolved) {
			report.reject(KindOrder, key, "unresolved instrument %s", order.InstrumentRef)
			continue
		}
		if err != nil {
			return nil, report, fmt.Errorf("order %s: %w", key, err)
		}

		for i, exec := range order.Executions {
			execKey := exec.ID
			if execKey == "" {
				execKey = fmt.Sprintf("%s#%d", order.ID, i)
			}

			trade, err := buildTrade(exec, symbol, side, order.ID)
			if err != nil {
				report.reject(KindExecution, execKey, "%v", err)
				continue
			}

			trade.ID = len(trades) + 1
			trades = append(trades, trade)
		}
	}

	report.Accepted = len(trades)
	return trades, report, nil
}

func buildTrade(exec domain.RawExecution, symbol, side, orderID string) (portfolio.Trade, error) {
	qty, err := toDecimal(exec.Quantity, decimal.Zero)
	if err != nil {
		return portfolio.Trade{}, fmt.Errorf("quantity: %w", err)
	}
	price, err := toDecimal(exec.Price, decimal.Zero)
	if err != nil {
		return portfolio.Trade{}, fmt.Errorf("price: %w", err)
	}
	fees, err := sumFees(exec.Fees)
	if err != nil {
		return portfolio.Trade{}, err
	}

	return portfolio.Trade{
		Symbol:   symbol,
		Type:     side,
		Quantity: qty,
		Price:    price,
		Date:     exec.Timestamp,
		Fees:     fees,
		PL:       decimal.Zero,
		Notes:    NotesPrefix + orderID,
	}, nil
}

// sumFees adds the known fee sub-fields; missing fields count as zero
func sumFees(raw map[string]interface{}) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, field := range FeeFields {
		fee, err := toDecimal(raw[field], decimal.Zero)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", field, err)
		}
		if fee.IsNegative() {
			return decimal.Zero, fmt.Errorf("%s: negative fee %s", field, fee)
		}
		total = total.Add(fee)
	}
	return total, nil
}
