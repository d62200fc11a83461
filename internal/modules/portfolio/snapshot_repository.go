package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/rs/zerolog"
)

// SnapshotRepository commits sync results to portfolio.db
type SnapshotRepository struct {
	db  *sql.DB // portfolio.db
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// ReplaceSnapshot atomically replaces positions, trades and dividends with the
// snapshot's collections and records the sync in sync_status.
// On any error the previous contents are left untouched.
func (r *SnapshotRepository) ReplaceSnapshot(ctx context.Context, snap Snapshot) error {
	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		for _, table := range []string{"positions", "trades", "dividends"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		if err := insertPositions(ctx, tx, snap.Positions); err != nil {
			return err
		}
		if err := insertTrades(ctx, tx, snap.Trades); err != nil {
			return err
		}
		if err := insertDividends(ctx, tx, snap.Dividends); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_status (id, last_pull, attempt_id, position_count, trade_count, dividend_count, rejected_count)
			VALUES (1, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_pull = excluded.last_pull,
				attempt_id = excluded.attempt_id,
				position_count = excluded.position_count,
				trade_count = excluded.trade_count,
				dividend_count = excluded.dividend_count,
				rejected_count = excluded.rejected_count
		`, snap.PulledAt.Unix(), snap.AttemptID, len(snap.Positions), len(snap.Trades), len(snap.Dividends), snap.RejectedCount)
		if err != nil {
			return fmt.Errorf("failed to update sync status: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("attempt_id", snap.AttemptID).
		Int("positions", len(snap.Positions)).
		Int("trades", len(snap.Trades)).
		Msg("Snapshot committed")
	return nil
}

// GetStatus returns the last committed sync. LastPull is nil before the first sync.
func (r *SnapshotRepository) GetStatus(ctx context.Context) (*SyncStatus, error) {
	var (
		status   SyncStatus
		lastPull sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT last_pull, attempt_id, position_count, trade_count, dividend_count, rejected_count
		FROM sync_status WHERE id = 1
	`).Scan(&lastPull, &status.AttemptID, &status.PositionCount, &status.TradeCount, &status.DividendCount, &status.RejectedCount)
	if err == sql.ErrNoRows {
		return &status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status: %w", err)
	}

	if lastPull.Valid {
		t := time.Unix(lastPull.Int64, 0).UTC()
		status.LastPull = &t
	}
	return &status, nil
}
