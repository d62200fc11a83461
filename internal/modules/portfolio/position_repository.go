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

const positionColumns = `id, symbol, quantity, buy_price, notes, source`

// PositionRepository handles position database operations
type PositionRepository struct {
	db  *sql.DB // portfolio.db
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetAll returns all positions ordered by id
func (r *PositionRepository) GetAll(ctx context.Context) ([]Position, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		pos, err := r.scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetByID returns a position, or ErrNotFound
func (r *PositionRepository) GetByID(ctx context.Context, id int) (*Position, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	pos, err := r.scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %d: %w", id, err)
	}
	return &pos, nil
}

// Create inserts a position. A zero id is assigned max(id)+1.
// Returns ErrConflict when the id is already taken.
func (r *PositionRepository) Create(ctx context.Context, pos Position) (*Position, error) {
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if pos.ID == 0 {
			if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM positions`).Scan(&pos.ID); err != nil {
				return fmt.Errorf("failed to allocate position id: %w", err)
			}
		} else {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE id = ?`, pos.ID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check position id: %w", err)
			}
			if exists > 0 {
				return fmt.Errorf("position %d: %w", pos.ID, ErrConflict)
			}
		}
		return insertPositions(ctx, tx, []Position{pos})
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Int("id", pos.ID).Str("symbol", pos.Symbol).Msg("Position created")
	return &pos, nil
}

// Update overwrites a position by id. Returns ErrNotFound when missing.
func (r *PositionRepository) Update(ctx context.Context, pos Position) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE positions SET symbol = ?, quantity = ?, buy_price = ?, notes = ?, source = ?
		WHERE id = ?
	`, strings.ToUpper(pos.Symbol), pos.Quantity, pos.BuyPrice, pos.Notes, pos.Source, pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position %d: %w", pos.ID, err)
	}
	return requireAffected(result, "position", pos.ID)
}

// Delete removes a position by id. Returns ErrNotFound when missing.
func (r *PositionRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete position %d: %w", id, err)
	}
	if err := requireAffected(result, "position", id); err != nil {
		return err
	}

	r.log.Info().Int("id", id).Msg("Position deleted")
	return nil
}

func (r *PositionRepository) scanPosition(row interface{ Scan(...any) error }) (Position, error) {
	var pos Position
	err := row.Scan(&pos.ID, &pos.Symbol, &pos.Quantity, &pos.BuyPrice, &pos.Notes, &pos.Source)
	return pos, err
}

func insertPositions(ctx context.Context, tx *sql.Tx, positions []Position) error {
	if len(positions) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (id, symbol, quantity, buy_price, notes, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert: %w", err)
	}
	defer stmt.Close()

	for _, pos := range positions {
		if _, err := stmt.ExecContext(ctx,
			pos.ID, strings.ToUpper(pos.Symbol), pos.Quantity, pos.BuyPrice, pos.Notes, pos.Source,
		); err != nil {
			return fmt.Errorf("failed to insert position %d (%s): %w", pos.ID, pos.Symbol, err)
		}
	}
	return nil
}

func requireAffected(result sql.Result, kind string, id int) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s %d: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
