package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/folio/internal/events"
	"github.com/rs/zerolog"
)

// CapitalProvider supplies the user-declared capital for valuation
type CapitalProvider interface {
	GetCapital(ctx context.Context) (Capital, error)
}

// ValidationError is returned for invalid manual input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PortfolioService orchestrates manual portfolio edits and valuation
type PortfolioService struct {
	positions *PositionRepository
	trades    *TradeRepository
	snapshots *SnapshotRepository
	capital   CapitalProvider
	events    *events.Manager
	now       func() time.Time
	log       zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(
	positions *PositionRepository,
	trades *TradeRepository,
	snapshots *SnapshotRepository,
	capital CapitalProvider,
	eventManager *events.Manager,
	log zerolog.Logger,
) *PortfolioService {
	return &PortfolioService{
		positions: positions,
		trades:    trades,
		snapshots: snapshots,
		capital:   capital,
		events:    eventManager,
		now:       time.Now,
		log:       log.With().Str("service", "portfolio").Logger(),
	}
}

// ListPositions returns all positions
func (s *PortfolioService) ListPositions(ctx context.Context) ([]Position, error) {
	return s.positions.GetAll(ctx)
}

// AddPosition creates a manual position
func (s *PortfolioService) AddPosition(ctx context.Context, pos Position) (*Position, error) {
	if err := validatePosition(&pos); err != nil {
		return nil, err
	}
	if pos.Source == "" {
		pos.Source = SourceManual
	}

	created, err := s.positions.Create(ctx, pos)
	if err != nil {
		return nil, err
	}
	s.changed()
	return created, nil
}

// UpdatePosition overwrites a position by id
func (s *PortfolioService) UpdatePosition(ctx context.Context, pos Position) error {
	if err := validatePosition(&pos); err != nil {
		return err
	}
	if pos.Source == "" {
		pos.Source = SourceManual
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		return err
	}
	s.changed()
	return nil
}

// DeletePosition removes a position by id
func (s *PortfolioService) DeletePosition(ctx context.Context, id int) error {
	if err := s.positions.Delete(ctx, id); err != nil {
		return err
	}
	s.changed()
	return nil
}

// ListTrades returns all trades
func (s *PortfolioService) ListTrades(ctx context.Context) ([]Trade, error) {
	return s.trades.GetAll(ctx)
}

// AddTrade records a manual trade
func (s *PortfolioService) AddTrade(ctx context.Context, t Trade) (*Trade, error) {
	if err := validateTrade(&t); err != nil {
		return nil, err
	}
	created, err := s.trades.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	s.changed()
	return created, nil
}

// UpdateTrade overwrites a trade by id
func (s *PortfolioService) UpdateTrade(ctx context.Context, t Trade) error {
	if err := validateTrade(&t); err != nil {
		return err
	}
	if err := s.trades.Update(ctx, t); err != nil {
		return err
	}
	s.changed()
	return nil
}

// DeleteTrade removes a trade by id
func (s *PortfolioService) DeleteTrade(ctx context.Context, id int) error {
	if err := s.trades.Delete(ctx, id); err != nil {
		return err
	}
	s.changed()
	return nil
}

// ListDividends returns all dividends
func (s *PortfolioService) ListDividends(ctx context.Context) ([]Dividend, error) {
	return s.trades.GetDividends(ctx)
}

// RecordDividend stores a dividend payment entered by hand
func (s *PortfolioService) RecordDividend(ctx context.Context, d Dividend) (*Dividend, error) {
	if err := validateDividend(&d); err != nil {
		return nil, err
	}
	created, err := s.trades.CreateDividend(ctx, d)
	if err != nil {
		return nil, err
	}
	s.changed()
	return created, nil
}

// DividendSummary totals the dividends paid in year. A zero year means
// the current one.
func (s *PortfolioService) DividendSummary(ctx context.Context, year int) (*DividendSummary, error) {
	if year <= 0 {
		year = s.now().Year()
	}
	dividends, err := s.trades.GetDividendsForYear(ctx, year)
	if err != nil {
		return nil, err
	}
	summary := SummarizeDividends(dividends, year)
	return &summary, nil
}

// RealizedProfitLoss totals the realized P/L over all trades
func (s *PortfolioService) RealizedProfitLoss(ctx context.Context) (*RealizedSummary, error) {
	trades, err := s.trades.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	summary := SummarizeRealized(trades)
	return &summary, nil
}

// RealizedProfitLossDetails lists the realized P/L of each trade
func (s *PortfolioService) RealizedProfitLossDetails(ctx context.Context) ([]RealizedEntry, error) {
	trades, err := s.trades.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return RealizedDetails(trades), nil
}

// GetValuation values the committed positions against the current capital settings
func (s *PortfolioService) GetValuation(ctx context.Context) (*Valuation, error) {
	positions, err := s.positions.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	capital, err := s.capital.GetCapital(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load capital settings: %w", err)
	}

	v := Valuate(positions, capital)
	return &v, nil
}

// GetSyncStatus returns the last committed sync
func (s *PortfolioService) GetSyncStatus(ctx context.Context) (*SyncStatus, error) {
	return s.snapshots.GetStatus(ctx)
}

func (s *PortfolioService) changed() {
	if s.events == nil {
		return
	}
	s.events.EmitTyped("portfolio", &events.PortfolioChangedData{Source: SourceManual})
}

func validatePosition(pos *Position) error {
	pos.Symbol = strings.ToUpper(strings.TrimSpace(pos.Symbol))
	if pos.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "required"}
	}
	if pos.ID < 0 {
		return &ValidationError{Field: "id", Reason: "must be positive"}
	}
	if pos.Quantity.IsNegative() {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if pos.BuyPrice.IsNegative() {
		return &ValidationError{Field: "buy_price", Reason: "must not be negative"}
	}
	return nil
}

func validateTrade(t *Trade) error {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	t.Type = strings.ToLower(strings.TrimSpace(t.Type))
	if t.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "required"}
	}
	if t.ID < 0 {
		return &ValidationError{Field: "id", Reason: "must be positive"}
	}
	if !ValidTradeType(t.Type) {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("%q is not buy or sell", t.Type)}
	}
	if t.Fees.IsNegative() {
		return &ValidationError{Field: "fees", Reason: "must not be negative"}
	}
	return nil
}

func validateDividend(d *Dividend) error {
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	d.PayDate = strings.TrimSpace(d.PayDate)
	if d.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "required"}
	}
	if _, err := time.Parse("2006-01-02", d.PayDate); err != nil {
		return &ValidationError{Field: "pay_date", Reason: "must be YYYY-MM-DD"}
	}
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}
