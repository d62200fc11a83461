package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/aristath/folio/internal/domain"
	"github.com/rs/zerolog"
)

// feeFields are the per-execution fee sub-fields the broker reports
var feeFields = []string{"fees", "sec_fee", "taf_fee", "cat_fee"}

// transformToken extracts the session from a token response
func transformToken(result interface{}) (*domain.BrokerSession, error) {
	if required, err := jsonpath.Get("$.mfa_required", result); err == nil && required == true {
		return nil, fmt.Errorf("MFA code required: %w", domain.ErrAuthRejected)
	}

	token, err := jsonpath.Get("$.access_token", result)
	if err != nil {
		return nil, fmt.Errorf("token response has no access_token: %w", domain.ErrAuthRejected)
	}
	accessToken, ok := token.(string)
	if !ok || accessToken == "" {
		return nil, fmt.Errorf("token response has empty access_token: %w", domain.ErrAuthRejected)
	}

	session := &domain.BrokerSession{AccessToken: accessToken, TokenType: "Bearer"}
	if m, ok := result.(map[string]interface{}); ok {
		if tokenType := getString(m, "token_type"); tokenType != "" {
			session.TokenType = tokenType
		}
		if expiresIn, ok := m["expires_in"].(float64); ok && expiresIn > 0 {
			session.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
		}
	}

	return session, nil
}

// transformHoldings maps holdings page items to raw holdings, keeping broker order.
// Numeric fields stay untouched so the normalizer can report bad values per entry.
func transformHoldings(items []interface{}, log zerolog.Logger) []domain.RawHolding {
	holdings := make([]domain.RawHolding, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			log.Warn().Int("index", i).Str("type", fmt.Sprintf("%T", item)).Msg("Skipping non-object holding")
			continue
		}
		holdings = append(holdings, domain.RawHolding{
			Symbol:          getString(m, "symbol"),
			Quantity:        m["quantity"],
			AverageBuyPrice: m["average_buy_price"],
			Name:            m["name"],
		})
	}
	return holdings
}

// transformOrders maps order page items to raw orders with their executions
func transformOrders(items []interface{}, log zerolog.Logger) []domain.RawOrder {
	orders := make([]domain.RawOrder, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			log.Warn().Int("index", i).Str("type", fmt.Sprintf("%T", item)).Msg("Skipping non-object order")
			continue
		}

		order := domain.RawOrder{
			ID:            getString(m, "id"),
			Type:          strings.ToLower(getString(m, "type")),
			Side:          strings.ToLower(getString(m, "side")),
			State:         getString(m, "state"),
			InstrumentRef: getString(m, "instrument"),
		}

		executions, _ := m["executions"].([]interface{})
		for j, e := range executions {
			em, ok := e.(map[string]interface{})
			if !ok {
				log.Warn().
					Str("order_id", order.ID).
					Int("index", j).
					Msg("Skipping non-object execution")
				continue
			}
			order.Executions = append(order.Executions, transformExecution(em))
		}

		orders = append(orders, order)
	}
	return orders
}

func transformExecution(m map[string]interface{}) domain.RawExecution {
	exec := domain.RawExecution{
		ID:        getString(m, "id"),
		Quantity:  m["quantity"],
		Price:     m["price"],
		Timestamp: getString(m, "timestamp"),
		Fees:      make(map[string]interface{}, len(feeFields)),
	}
	for _, field := range feeFields {
		if v, ok := m[field]; ok {
			exec.Fees[field] = v
		}
	}
	return exec
}

// transformInstrument extracts the instrument from an instruments/{id}/ response
func transformInstrument(result interface{}, id string) (*domain.BrokerInstrument, error) {
	symbol, err := jsonpath.Get("$.symbol", result)
	if err != nil {
		return nil, fmt.Errorf("instrument %s has no symbol: %w", id, domain.ErrInstrumentNotFound)
	}
	s, ok := symbol.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("instrument %s has empty symbol: %w", id, domain.ErrInstrumentNotFound)
	}

	inst := &domain.BrokerInstrument{ID: id, Symbol: strings.TrimSpace(s)}
	if m, ok := result.(map[string]interface{}); ok {
		inst.Name = getString(m, "simple_name")
		if inst.Name == "" {
			inst.Name = getString(m, "name")
		}
	}
	return inst, nil
}

// Helper functions

// getString safely extracts a string value from a map
func getString(m map[string]interface{}, key string) string {
	val, exists := m[key]
	if !exists || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", val)
}
