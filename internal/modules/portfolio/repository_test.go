package portfolio

import (
	"context"
	"testing"
	"time"

	testhelpers "github.com/aristath/folio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSnapshot(t *testing.T, repo *SnapshotRepository) {
	t.Helper()
	err := repo.ReplaceSnapshot(context.Background(), Snapshot{
		AttemptID: "seed",
		PulledAt:  time.Unix(1700000000, 0),
		Positions: []Position{
			{ID: 1, Symbol: "AAPL", Quantity: d("2"), BuyPrice: d("100"), Source: "broker"},
			{ID: 2, Symbol: "VTI", Quantity: d("1.5"), BuyPrice: d("200"), Source: "broker"},
		},
		Trades: []Trade{
			{ID: 1, Symbol: "AAPL", Type: "buy", Quantity: d("2"), Price: d("100"), Date: "2024-01-02T15:00:00Z", Fees: d("2.04"), Notes: "broker order: o1"},
		},
	})
	require.NoError(t, err)
}

func TestSnapshotRepository_ReplaceSnapshot(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	defer cleanup()

	ctx := context.Background()
	snapshots := NewSnapshotRepository(db.Conn(), zerolog.Nop())
	positions := NewPositionRepository(db.Conn(), zerolog.Nop())
	trades := NewTradeRepository(db.Conn(), zerolog.Nop())

	status, err := snapshots.GetStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.LastPull)

	seedSnapshot(t, snapshots)

	// A second sync replaces everything, including manual rows
	_, err = positions.Create(ctx, Position{Symbol: "MANUAL", Quantity: d("1"), BuyPrice: d("1"), Source: SourceManual})
	require.NoError(t, err)

	err = snapshots.ReplaceSnapshot(ctx, Snapshot{
		AttemptID:     "second",
		PulledAt:      time.Unix(1700000600, 0),
		Positions:     []Position{{ID: 1, Symbol: "msft", Quantity: d("4"), BuyPrice: d("300"), Source: "broker"}},
		RejectedCount: 2,
	})
	require.NoError(t, err)

	got, err := positions.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "MSFT", got[0].Symbol)
	assert.True(t, d("4").Equal(got[0].Quantity))

	gotTrades, err := trades.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, gotTrades)

	status, err = snapshots.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.LastPull)
	assert.Equal(t, int64(1700000600), status.LastPull.Unix())
	assert.Equal(t, "second", status.AttemptID)
	assert.Equal(t, 1, status.PositionCount)
	assert.Equal(t, 0, status.TradeCount)
	assert.Equal(t, 2, status.RejectedCount)
}

func TestSnapshotRepository_AllOrNothing(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	defer cleanup()

	ctx := context.Background()
	snapshots := NewSnapshotRepository(db.Conn(), zerolog.Nop())
	positions := NewPositionRepository(db.Conn(), zerolog.Nop())
	trades := NewTradeRepository(db.Conn(), zerolog.Nop())

	seedSnapshot(t, snapshots)

	// Make the trade insert fail after positions were already written in the transaction
	_, err := db.Conn().Exec(`
		CREATE TRIGGER fail_trade_insert BEFORE INSERT ON trades
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END
	`)
	require.NoError(t, err)

	err = snapshots.ReplaceSnapshot(ctx, Snapshot{
		AttemptID: "broken",
		PulledAt:  time.Now(),
		Positions: []Position{{ID: 1, Symbol: "NEW", Quantity: d("1"), BuyPrice: d("1"), Source: "broker"}},
		Trades:    []Trade{{ID: 1, Symbol: "NEW", Type: "buy", Quantity: d("1"), Price: d("1")}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injected failure")

	got, err := positions.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "VTI", got[1].Symbol)

	gotTrades, err := trades.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, gotTrades, 1)
	assert.True(t, d("2.04").Equal(gotTrades[0].Fees))

	status, err := snapshots.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "seed", status.AttemptID)
}

func TestPositionRepository_CRUD(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	defer cleanup()

	ctx := context.Background()
	repo := NewPositionRepository(db.Conn(), zerolog.Nop())

	created, err := repo.Create(ctx, Position{Symbol: "aapl", Quantity: d("1"), BuyPrice: d("10"), Source: SourceManual})
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)

	_, err = repo.Create(ctx, Position{ID: 1, Symbol: "DUP", Source: SourceManual})
	assert.ErrorIs(t, err, ErrConflict)

	created.Quantity = d("3")
	require.NoError(t, repo.Update(ctx, *created))

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.True(t, d("3").Equal(got.Quantity))

	assert.ErrorIs(t, repo.Update(ctx, Position{ID: 99, Symbol: "X"}), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, 1))
	assert.ErrorIs(t, repo.Delete(ctx, 1), ErrNotFound)

	_, err = repo.GetByID(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTradeRepository_CRUD(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	defer cleanup()

	ctx := context.Background()
	repo := NewTradeRepository(db.Conn(), zerolog.Nop())

	first, err := repo.Create(ctx, Trade{Symbol: "AAPL", Type: "buy", Quantity: d("1"), Price: d("100")})
	require.NoError(t, err)
	second, err := repo.Create(ctx, Trade{Symbol: "AAPL", Type: "sell", Quantity: d("1"), Price: d("110")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)

	second.Fees = d("0.05")
	require.NoError(t, repo.Update(ctx, *second))

	got, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.True(t, d("0.05").Equal(got.Fees))

	require.NoError(t, repo.Delete(ctx, 1))
	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].ID)

	dividends, err := repo.GetDividends(ctx)
	require.NoError(t, err)
	assert.Empty(t, dividends)
}

func TestTradeRepository_CreateWithTakenIDConflicts(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	defer cleanup()

	ctx := context.Background()
	repo := NewTradeRepository(db.Conn(), zerolog.Nop())

	_, err := repo.Create(ctx, Trade{ID: 7, Symbol: "AAPL", Type: "buy", Quantity: d("1"), Price: d("100")})
	require.NoError(t, err)

	_, err = repo.Create(ctx, Trade{ID: 7, Symbol: "MSFT", Type: "buy", Quantity: d("1"), Price: d("50")})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
}

func TestTradeRepository_Dividends(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	defer cleanup()

	ctx := context.Background()
	repo := NewTradeRepository(db.Conn(), zerolog.Nop())

	first, err := repo.CreateDividend(ctx, Dividend{Symbol: "ko", PayDate: "2024-04-01", Amount: d("1.25")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "KO", first.Symbol)

	_, err = repo.CreateDividend(ctx, Dividend{Symbol: "PEP", PayDate: "2023-12-29", Amount: d("2")})
	require.NoError(t, err)
	_, err = repo.CreateDividend(ctx, Dividend{Symbol: "KO", PayDate: "2024-01-15", Amount: d("0.75")})
	require.NoError(t, err)

	all, err := repo.GetDividends(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2023-12-29", all[0].PayDate)

	year, err := repo.GetDividendsForYear(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, year, 2)
	assert.Equal(t, "2024-01-15", year[0].PayDate)
	assert.True(t, d("1.25").Equal(year[1].Amount))

	none, err := repo.GetDividendsForYear(ctx, 2022)
	require.NoError(t, err)
	assert.Empty(t, none)
}
