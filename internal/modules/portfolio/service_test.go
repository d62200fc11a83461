package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/folio/internal/events"
	testhelpers "github.com/aristath/folio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCapital struct {
	capital Capital
	err     error
}

func (s staticCapital) GetCapital(ctx context.Context) (Capital, error) {
	return s.capital, s.err
}

func newTestService(t *testing.T, capital CapitalProvider) (*PortfolioService, *events.Bus) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	bus := events.NewBus()
	svc := NewPortfolioService(
		NewPositionRepository(db.Conn(), log),
		NewTradeRepository(db.Conn(), log),
		NewSnapshotRepository(db.Conn(), log),
		capital,
		events.NewManager(bus, log),
		log,
	)
	return svc, bus
}

func TestPortfolioService_GetValuation(t *testing.T) {
	svc, _ := newTestService(t, staticCapital{capital: Capital{Cash: d("1000")}})
	ctx := context.Background()

	_, err := svc.AddPosition(ctx, Position{Symbol: "AAPL", Quantity: d("2"), BuyPrice: d("100")})
	require.NoError(t, err)

	v, err := svc.GetValuation(ctx)
	require.NoError(t, err)
	require.Len(t, v.Rows, 3)
	assert.True(t, d("20").Equal(v.Rows[0].Percent))
	assert.True(t, d("80").Equal(v.Rows[2].Percent))
}

func TestPortfolioService_GetValuationCapitalError(t *testing.T) {
	svc, _ := newTestService(t, staticCapital{err: errors.New("settings unavailable")})

	_, err := svc.GetValuation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings unavailable")
}

func TestPortfolioService_AddPositionDefaultsAndEvents(t *testing.T) {
	svc, bus := newTestService(t, staticCapital{})
	ctx := context.Background()

	var changed int
	bus.Subscribe(events.PortfolioChanged, func(*events.Event) { changed++ })

	pos, err := svc.AddPosition(ctx, Position{Symbol: " vti ", Quantity: d("1"), BuyPrice: d("200")})
	require.NoError(t, err)
	assert.Equal(t, "VTI", pos.Symbol)
	assert.Equal(t, SourceManual, pos.Source)
	assert.Equal(t, 1, changed)
}

func TestPortfolioService_Validation(t *testing.T) {
	svc, _ := newTestService(t, staticCapital{})
	ctx := context.Background()

	var validationErr *ValidationError

	_, err := svc.AddPosition(ctx, Position{Symbol: ""})
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.AddPosition(ctx, Position{Symbol: "X", Quantity: d("-1")})
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.AddTrade(ctx, Trade{Symbol: "X", Type: "short"})
	assert.ErrorAs(t, err, &validationErr)

	_, err = svc.AddTrade(ctx, Trade{Symbol: "X", Type: "buy", Fees: d("-0.01")})
	assert.ErrorAs(t, err, &validationErr)

	trade, err := svc.AddTrade(ctx, Trade{Symbol: "X", Type: "SELL", Quantity: d("1"), Price: d("1")})
	require.NoError(t, err)
	assert.Equal(t, "sell", trade.Type)
}

func TestPortfolioService_RecordDividend(t *testing.T) {
	svc, bus := newTestService(t, staticCapital{})
	ctx := context.Background()

	changed := 0
	bus.Subscribe(events.PortfolioChanged, func(*events.Event) { changed++ })

	var validationErr *ValidationError
	for _, bad := range []Dividend{
		{Symbol: "", PayDate: "2024-01-01", Amount: d("1")},
		{Symbol: "KO", PayDate: "01/02/2024", Amount: d("1")},
		{Symbol: "KO", PayDate: "2024-01-01", Amount: d("0")},
		{Symbol: "KO", PayDate: "2024-01-01", Amount: d("-3")},
	} {
		_, err := svc.RecordDividend(ctx, bad)
		assert.ErrorAs(t, err, &validationErr, "%+v", bad)
	}
	assert.Equal(t, 0, changed)

	created, err := svc.RecordDividend(ctx, Dividend{Symbol: " ko ", PayDate: "2024-03-01", Amount: d("1.10")})
	require.NoError(t, err)
	assert.Equal(t, "KO", created.Symbol)
	assert.Equal(t, 1, changed)

	dividends, err := svc.ListDividends(ctx)
	require.NoError(t, err)
	require.Len(t, dividends, 1)
}

func TestPortfolioService_DividendSummary(t *testing.T) {
	svc, _ := newTestService(t, staticCapital{})
	svc.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for _, div := range []Dividend{
		{Symbol: "KO", PayDate: "2024-01-15", Amount: d("0.46")},
		{Symbol: "PEP", PayDate: "2024-03-29", Amount: d("1.265")},
		{Symbol: "KO", PayDate: "2023-12-15", Amount: d("0.46")},
	} {
		_, err := svc.RecordDividend(ctx, div)
		require.NoError(t, err)
	}

	current, err := svc.DividendSummary(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2024, current.Year)
	assert.Equal(t, 2, current.Count)
	assert.Equal(t, "1.725", current.Total.String())

	previous, err := svc.DividendSummary(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, 1, previous.Count)
	assert.Equal(t, "0.46", previous.Total.String())

	empty, err := svc.DividendSummary(ctx, 2020)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, empty.Total.IsZero())
	assert.NotNil(t, empty.Dividends)
}

func TestPortfolioService_RealizedProfitLoss(t *testing.T) {
	svc, _ := newTestService(t, staticCapital{})
	ctx := context.Background()

	for _, tr := range []Trade{
		{Symbol: "AAPL", Type: "sell", Quantity: d("1"), Price: d("110"), PL: d("10.50")},
		{Symbol: "MSFT", Type: "sell", Quantity: d("2"), Price: d("300"), PL: d("-4.25")},
		{Symbol: "AAPL", Type: "buy", Quantity: d("1"), Price: d("100")},
		{Symbol: "AAPL", Type: "sell", Quantity: d("1"), Price: d("120"), PL: d("20")},
	} {
		_, err := svc.AddTrade(ctx, tr)
		require.NoError(t, err)
	}

	summary, err := svc.RealizedProfitLoss(ctx)
	require.NoError(t, err)
	assert.Equal(t, "26.25", summary.Realized.String())
	assert.Equal(t, 4, summary.Trades)
	assert.Equal(t, "30.5", summary.BySymbol["AAPL"].String())
	assert.Equal(t, "-4.25", summary.BySymbol["MSFT"].String())

	details, err := svc.RealizedProfitLossDetails(ctx)
	require.NoError(t, err)
	require.Len(t, details, 4)
	assert.Equal(t, 2, details[1].TradeID)
	assert.Equal(t, "MSFT", details[1].Symbol)
	assert.Equal(t, "-4.25", details[1].Amount.String())
}
