package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/folio/internal/modules/portfolio"
	testhelpers "github.com/aristath/folio/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCapital struct{}

func (fixedCapital) GetCapital(ctx context.Context) (portfolio.Capital, error) {
	return portfolio.Capital{Cash: decimal.NewFromInt(1000)}, nil
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	svc := portfolio.NewPortfolioService(
		portfolio.NewPositionRepository(db.Conn(), log),
		portfolio.NewTradeRepository(db.Conn(), log),
		portfolio.NewSnapshotRepository(db.Conn(), log),
		fixedCapital{},
		nil,
		log,
	)

	router := chi.NewRouter()
	NewHandler(svc, log).RegisterRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes(t *testing.T) {
	router := newTestRouter(t)

	testCases := []struct {
		method string
		path   string
	}{
		{"GET", "/portfolio/"},
		{"GET", "/portfolio/valuation"},
		{"GET", "/trades/"},
		{"GET", "/dividends"},
		{"GET", "/dividends/summary"},
		{"GET", "/profit_loss/summary"},
		{"GET", "/profit_loss/details"},
		{"DELETE", "/portfolio/1"},
		{"DELETE", "/trades/1"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := do(t, router, tc.method, tc.path, nil)
			assert.NotEqual(t, http.StatusMethodNotAllowed, w.Code)
			if tc.method == "GET" {
				assert.Equal(t, http.StatusOK, w.Code)
			}
		})
	}
}

func TestPositionLifecycle(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, "POST", "/portfolio/", map[string]interface{}{
		"symbol": "aapl", "quantity": "2", "buy_price": "100",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created portfolio.Position
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, 1, created.ID)
	assert.Equal(t, "AAPL", created.Symbol)

	w = do(t, router, "POST", "/portfolio/", map[string]interface{}{"id": 1, "symbol": "dup"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, "GET", "/portfolio/valuation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var valuation portfolio.Valuation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&valuation))
	require.Len(t, valuation.Rows, 3)
	assert.Equal(t, "20", valuation.Rows[0].Percent.String())

	w = do(t, router, "PUT", "/portfolio/1", map[string]interface{}{"symbol": "AAPL", "quantity": "3", "buy_price": "100"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "DELETE", "/portfolio/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "DELETE", "/portfolio/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "PUT", "/portfolio/abc", map[string]interface{}{"symbol": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradeValidation(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, "POST", "/trades/", map[string]interface{}{"symbol": "AAPL", "type": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/trades/", map[string]interface{}{
		"symbol": "AAPL", "type": "buy", "quantity": "1", "price": "10", "fees": "0.04",
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestTradeExplicitIDConflict(t *testing.T) {
	router := newTestRouter(t)

	trade := map[string]interface{}{"id": 5, "symbol": "AAPL", "type": "buy", "quantity": "1", "price": "10"}
	w := do(t, router, "POST", "/trades/", trade)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, "POST", "/trades/", trade)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestDividendRecordingAndSummary(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, "POST", "/dividends/", map[string]interface{}{"symbol": "ko", "pay_date": "2024-04-01", "amount": "0.485"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created portfolio.Dividend
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "KO", created.Symbol)

	w = do(t, router, "POST", "/dividends/", map[string]interface{}{"symbol": "KO", "pay_date": "2023-12-15", "amount": "0.46"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, "POST", "/dividends/", map[string]interface{}{"symbol": "KO", "pay_date": "April 1", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "GET", "/dividends", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []portfolio.Dividend
	require.NoError(t, json.NewDecoder(w.Body).Decode(&all))
	assert.Len(t, all, 2)

	w = do(t, router, "GET", "/dividends/summary?year=2024", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary portfolio.DividendSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, 2024, summary.Year)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, "0.485", summary.Total.String())

	w = do(t, router, "GET", "/dividends/summary?year=last", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfitLossRoutes(t *testing.T) {
	router := newTestRouter(t)

	for _, pl := range []string{"12.5", "-2.5"} {
		w := do(t, router, "POST", "/trades/", map[string]interface{}{
			"symbol": "AAPL", "type": "sell", "quantity": "1", "price": "10", "pl": pl,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, router, "GET", "/profit_loss/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary portfolio.RealizedSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, "10", summary.Realized.String())
	assert.Equal(t, 2, summary.Trades)

	w = do(t, router, "GET", "/profit_loss/details", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details []portfolio.RealizedEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&details))
	require.Len(t, details, 2)
	assert.Equal(t, "-2.5", details[1].Amount.String())
}
