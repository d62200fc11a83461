package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/folio/internal/database"
	"github.com/rs/zerolog"
)

const tradeColumns = `id, symbol, type, quantity, price, date, fees, pl, notes`

// TradeRepository handles trade and dividend database operations
type TradeRepository struct {
	db  *sql.DB // portfolio.db
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// GetAll returns all trades ordered by id
func (r *TradeRepository) GetAll(ctx context.Context) ([]Trade, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Type, &t.Quantity, &t.Price, &t.Date, &t.Fees, &t.PL, &t.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// Create inserts a trade, assigning max(id)+1 when the id is zero.
// Returns ErrConflict when the id is already taken.
func (r *TradeRepository) Create(ctx context.Context, t Trade) (*Trade, error) {
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if t.ID == 0 {
			if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM trades`).Scan(&t.ID); err != nil {
				return fmt.Errorf("failed to allocate trade id: %w", err)
			}
		} else {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE id = ?`, t.ID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check trade id: %w", err)
			}
			if exists > 0 {
				return fmt.Errorf("trade %d: %w", t.ID, ErrConflict)
			}
		}
		return insertTrades(ctx, tx, []Trade{t})
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Int("id", t.ID).Str("symbol", t.Symbol).Str("type", t.Type).Msg("Trade created")
	return &t, nil
}

// Update overwrites a trade by id. Returns ErrNotFound when missing.
func (r *TradeRepository) Update(ctx context.Context, t Trade) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE trades SET symbol = ?, type = ?, quantity = ?, price = ?, date = ?, fees = ?, pl = ?, notes = ?
		WHERE id = ?
	`, strings.ToUpper(t.Symbol), t.Type, t.Quantity, t.Price, t.Date, t.Fees, t.PL, t.Notes, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update trade %d: %w", t.ID, err)
	}
	return requireAffected(result, "trade", t.ID)
}

// Delete removes a trade by id. Returns ErrNotFound when missing.
func (r *TradeRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trade %d: %w", id, err)
	}
	return requireAffected(result, "trade", id)
}

// GetDividends returns all dividends ordered by pay date
func (r *TradeRepository) GetDividends(ctx context.Context) ([]Dividend, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, symbol, pay_date, amount FROM dividends ORDER BY pay_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	return scanDividends(rows)
}

// GetDividendsForYear returns the dividends whose pay date falls in year
func (r *TradeRepository) GetDividendsForYear(ctx context.Context, year int) ([]Dividend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, pay_date, amount FROM dividends
		WHERE substr(pay_date, 1, 4) = ?
		ORDER BY pay_date, id
	`, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends for %d: %w", year, err)
	}
	return scanDividends(rows)
}

// CreateDividend records a dividend payment and returns it with its id
func (r *TradeRepository) CreateDividend(ctx context.Context, d Dividend) (*Dividend, error) {
	d.Symbol = strings.ToUpper(d.Symbol)
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO dividends (symbol, pay_date, amount) VALUES (?, ?, ?)`,
		d.Symbol, d.PayDate, d.Amount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dividend for %s: %w", d.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read dividend id: %w", err)
	}
	d.ID = int(id)

	r.log.Info().Int("id", d.ID).Str("symbol", d.Symbol).Str("pay_date", d.PayDate).Msg("Dividend recorded")
	return &d, nil
}

func scanDividends(rows *sql.Rows) ([]Dividend, error) {
	defer rows.Close()

	dividends := make([]Dividend, 0)
	for rows.Next() {
		var d Dividend
		if err := rows.Scan(&d.ID, &d.Symbol, &d.PayDate, &d.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		dividends = append(dividends, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividends: %w", err)
	}

	return dividends, nil
}

// GetByID returns a trade, or ErrNotFound
func (r *TradeRepository) GetByID(ctx context.Context, id int) (*Trade, error) {
	var t Trade
	err := r.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id).
		Scan(&t.ID, &t.Symbol, &t.Type, &t.Quantity, &t.Price, &t.Date, &t.Fees, &t.PL, &t.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trade %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %d: %w", id, err)
	}
	return &t, nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (id, symbol, type, quantity, price, date, fees, pl, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.ID, strings.ToUpper(t.Symbol), t.Type, t.Quantity, t.Price, t.Date, t.Fees, t.PL, t.Notes,
		); err != nil {
			return fmt.Errorf("failed to insert trade %d (%s): %w", t.ID, t.Symbol, err)
		}
	}
	return nil
}

func insertDividends(ctx context.Context, tx *sql.Tx, dividends []Dividend) error {
	for _, d := range dividends {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dividends (symbol, pay_date, amount) VALUES (?, ?, ?)`,
			strings.ToUpper(d.Symbol), d.PayDate, d.Amount,
		); err != nil {
			return fmt.Errorf("failed to insert dividend for %s: %w", d.Symbol, err)
		}
	}
	return nil
}
