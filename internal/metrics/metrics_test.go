package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Recording(t *testing.T) {
	m := New()

	m.SyncAttempt("manual", "ok")
	m.SyncAttempt("manual", "ok")
	m.SyncAttempt("timer", "skipped")
	m.ResolverLookup("hit")
	m.SyncItems("position", "accepted", 3)
	m.SyncItems("position", "rejected", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncAttempts.WithLabelValues("manual", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncAttempts.WithLabelValues("timer", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolverLookups.WithLabelValues("hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.syncItems.WithLabelValues("position", "accepted")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SyncAttempt("manual", "ok")
		m.SyncDuration(time.Second)
		m.SyncItems("trade", "accepted", 1)
		m.SyncCommitted(time.Now())
		m.ResolverLookup("miss")
		m.BrokerRequest("holdings", "2xx", time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.BrokerRequest("login", "2xx", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "folio_broker_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
