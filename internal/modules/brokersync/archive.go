package brokersync

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// RawSnapshot is the unmodified broker pull kept for debugging
type RawSnapshot struct {
	AttemptID string              `msgpack:"attempt_id" json:"attempt_id"`
	PulledAt  time.Time           `msgpack:"pulled_at" json:"pulled_at"`
	Holdings  []domain.RawHolding `msgpack:"holdings" json:"holdings"`
	Orders    []domain.RawOrder   `msgpack:"orders" json:"orders"`
}

// ArchiveEntry describes one stored raw snapshot
type ArchiveEntry struct {
	AttemptID     string    `json:"attempt_id"`
	PulledAt      time.Time `json:"pulled_at"`
	HoldingsCount int       `json:"holdings_count"`
	OrdersCount   int       `json:"orders_count"`
	SizeBytes     int       `json:"size_bytes"`
	RemoteKey     string    `json:"remote_key,omitempty"`
}

// Uploader copies an archived snapshot to object storage
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
}

// Archive stores msgpack-encoded raw snapshots in cache.db and keeps the newest N
type Archive struct {
	db            *sql.DB // cache.db
	keep          int
	uploader      Uploader
	uploadTimeout time.Duration
	log           zerolog.Logger
}

// defaultUploadTimeout bounds an upload when no timeout is configured
const defaultUploadTimeout = 30 * time.Second

// NewArchive creates a snapshot archive. uploader may be nil.
// Each upload is bounded by uploadTimeout.
func NewArchive(db *sql.DB, keep int, uploader Uploader, uploadTimeout time.Duration, log zerolog.Logger) *Archive {
	if keep < 1 {
		keep = 1
	}
	if uploadTimeout <= 0 {
		uploadTimeout = defaultUploadTimeout
	}
	return &Archive{
		db:            db,
		keep:          keep,
		uploader:      uploader,
		uploadTimeout: uploadTimeout,
		log:           log.With().Str("component", "snapshot_archive").Logger(),
	}
}

// Store encodes and saves a snapshot, uploads it when an uploader is set and prunes old rows.
// Upload failures are logged and do not fail the store.
func (a *Archive) Store(ctx context.Context, snap RawSnapshot) error {
	payload, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	var remoteKey string
	if a.uploader != nil {
		key := RemoteKey(snap)
		uploadCtx, cancel := context.WithTimeout(ctx, a.uploadTimeout)
		err := a.uploader.Upload(uploadCtx, key, bytes.NewReader(payload), int64(len(payload)))
		cancel()
		if err != nil {
			a.log.Warn().Err(err).Str("key", key).Msg("Failed to upload snapshot")
		} else {
			remoteKey = key
		}
	}

	err = database.WithTransaction(ctx, a.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO raw_snapshots (attempt_id, pulled_at, holdings_count, orders_count, payload, remote_key)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snap.AttemptID, snap.PulledAt.Unix(), len(snap.Holdings), len(snap.Orders), payload, remoteKey); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM raw_snapshots WHERE attempt_id NOT IN (
				SELECT attempt_id FROM raw_snapshots ORDER BY pulled_at DESC, rowid DESC LIMIT ?
			)
		`, a.keep); err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.log.Debug().
		Str("attempt_id", snap.AttemptID).
		Int("bytes", len(payload)).
		Bool("uploaded", remoteKey != "").
		Msg("Raw snapshot archived")
	return nil
}

// List returns the stored snapshots, newest first
func (a *Archive) List(ctx context.Context) ([]ArchiveEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT attempt_id, pulled_at, holdings_count, orders_count, length(payload), remote_key
		FROM raw_snapshots ORDER BY pulled_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	entries := make([]ArchiveEntry, 0)
	for rows.Next() {
		var (
			e        ArchiveEntry
			pulledAt int64
		)
		if err := rows.Scan(&e.AttemptID, &pulledAt, &e.HoldingsCount, &e.OrdersCount, &e.SizeBytes, &e.RemoteKey); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		e.PulledAt = time.Unix(pulledAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Latest decodes the newest stored snapshot. Returns nil when the archive is empty.
func (a *Archive) Latest(ctx context.Context) (*RawSnapshot, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, `
		SELECT payload FROM raw_snapshots ORDER BY pulled_at DESC, rowid DESC LIMIT 1
	`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}

	var snap RawSnapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// RemoteKey is the object key a snapshot is uploaded under
func RemoteKey(snap RawSnapshot) string {
	return fmt.Sprintf("snapshots/%s/%s.msgpack", snap.PulledAt.UTC().Format("2006/01/02"), snap.AttemptID)
}
