package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fakeBroker serves a tiny version of the broker API
func fakeBroker(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var revoked int32
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth2/token/", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.PostForm.Get("password") {
		case "good":
			writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
		case "needs-mfa":
			writeJSON(w, http.StatusOK, map[string]interface{}{"mfa_required": true})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"detail": "Unable to log in with provided credentials."})
		}
	})
	mux.HandleFunc("/oauth2/revoke_token/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&revoked, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/holdings/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"results": []interface{}{
				map[string]interface{}{"symbol": "MSFT", "quantity": "2.0000", "average_buy_price": "100.00", "name": "Microsoft"},
				map[string]interface{}{"symbol": "AAPL", "quantity": 1.5, "average_buy_price": "150.25", "name": nil},
				"garbage",
			},
			"next": nil,
		})
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"results": []interface{}{
				map[string]interface{}{
					"id":         "ord-1",
					"type":       "MARKET",
					"side":       "buy",
					"state":      "filled",
					"instrument": "https://api.example.com/instruments/abc-123/",
					"executions": []interface{}{
						map[string]interface{}{"id": "ex-1", "quantity": "1.0", "price": "10.00", "timestamp": "2024-01-02T15:04:05Z", "fees": "2.00", "sec_fee": "0.01"},
					},
				},
			},
			"next": nil,
		})
	})
	mux.HandleFunc("/instruments/abc-123/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "abc-123", "symbol": "MSFT", "simple_name": "Microsoft"})
	})
	mux.HandleFunc("/instruments/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"detail": "Not found."})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &revoked
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := NewClient(Config{BaseURL: baseURL, ClientID: "cid", RateLimit: time.Millisecond}, metrics.New(), zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func TestClient_Login(t *testing.T) {
	server, _ := fakeBroker(t)
	c := newClient(t, server.URL)

	session, err := c.Login(context.Background(), domain.BrokerCredentials{Username: "alice", Password: "good"})
	require.NoError(t, err)
	assert.Equal(t, "tok", session.AccessToken)
	assert.False(t, session.ExpiresAt.IsZero())
}

func TestClient_Login_Rejected(t *testing.T) {
	server, _ := fakeBroker(t)
	c := newClient(t, server.URL)

	_, err := c.Login(context.Background(), domain.BrokerCredentials{Username: "alice", Password: "bad"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthRejected))

	_, err = c.Login(context.Background(), domain.BrokerCredentials{Username: "alice", Password: "needs-mfa"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthRejected))
}

func TestClient_Login_Unreachable(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")

	_, err := c.Login(context.Background(), domain.BrokerCredentials{Username: "alice", Password: "good"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrAuthRejected))
}

func TestClient_FetchHoldings_PreservesOrderAndRawValues(t *testing.T) {
	server, _ := fakeBroker(t)
	c := newClient(t, server.URL)
	session := &domain.BrokerSession{AccessToken: "tok"}

	holdings, err := c.FetchHoldings(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, holdings, 2)

	assert.Equal(t, "MSFT", holdings[0].Symbol)
	assert.Equal(t, "2.0000", holdings[0].Quantity)
	assert.Equal(t, "Microsoft", holdings[0].Name)
	assert.Equal(t, "AAPL", holdings[1].Symbol)
	assert.Equal(t, 1.5, holdings[1].Quantity)
	assert.Nil(t, holdings[1].Name)
}

func TestClient_FetchOrders(t *testing.T) {
	server, _ := fakeBroker(t)
	c := newClient(t, server.URL)

	orders, err := c.FetchOrders(context.Background(), &domain.BrokerSession{AccessToken: "tok"})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	order := orders[0]
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, "market", order.Type)
	assert.Equal(t, "buy", order.Side)
	assert.Equal(t, "https://api.example.com/instruments/abc-123/", order.InstrumentRef)
	require.Len(t, order.Executions, 1)
	assert.Equal(t, "2024-01-02T15:04:05Z", order.Executions[0].Timestamp)
	assert.Equal(t, map[string]interface{}{"fees": "2.00", "sec_fee": "0.01"}, order.Executions[0].Fees)
}

func TestClient_ResolveInstrument(t *testing.T) {
	server, _ := fakeBroker(t)
	c := newClient(t, server.URL)
	session := &domain.BrokerSession{AccessToken: "tok"}

	inst, err := c.ResolveInstrument(context.Background(), session, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", inst.Symbol)
	assert.Equal(t, "Microsoft", inst.Name)

	_, err = c.ResolveInstrument(context.Background(), session, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInstrumentNotFound))
}

func TestClient_Logout(t *testing.T) {
	server, revoked := fakeBroker(t)
	c := newClient(t, server.URL)

	require.NoError(t, c.Logout(context.Background(), &domain.BrokerSession{AccessToken: "tok"}))
	assert.Equal(t, int32(1), atomic.LoadInt32(revoked))

	// Nothing to revoke
	require.NoError(t, c.Logout(context.Background(), nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(revoked))
}
