package instruments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/metrics"
	testhelpers "github.com/aristath/folio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appleRef = "https://api.example.com/instruments/450dfc6d-5510-4d40-abfb-f633b7d9be3e/"

func TestExtractID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{appleRef, "450dfc6d-5510-4d40-abfb-f633b7d9be3e"},
		{"https://api.example.com/instruments/abc", "abc"},
		{"abc", "abc"},
		{"///", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractID(tt.ref))
		})
	}
}

func TestResolver_CachesSuccessfulLookups(t *testing.T) {
	client := testhelpers.NewMockBrokerClient()
	client.AddInstrument("450dfc6d-5510-4d40-abfb-f633b7d9be3e", "AAPL")
	r := NewResolver(client, 0, metrics.New(), zerolog.Nop())
	session := &domain.BrokerSession{AccessToken: "t"}

	symbol, err := r.Resolve(context.Background(), session, appleRef)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", symbol)

	symbol, err = r.Resolve(context.Background(), session, appleRef)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", symbol)

	assert.Equal(t, 1, client.ResolveCalls())
	assert.Equal(t, 1, r.Len())
}

func TestResolver_FailuresAreNotCached(t *testing.T) {
	client := testhelpers.NewMockBrokerClient()
	r := NewResolver(client, 0, nil, zerolog.Nop())
	session := &domain.BrokerSession{AccessToken: "t"}

	_, err := r.Resolve(context.Background(), session, appleRef)
	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Equal(t, 0, r.Len())

	client.AddInstrument("450dfc6d-5510-4d40-abfb-f633b7d9be3e", "AAPL")
	symbol, err := r.Resolve(context.Background(), session, appleRef)
	assert.NoError(t, err)
	assert.Equal(t, "AAPL", symbol)
	assert.Equal(t, 2, client.ResolveCalls())
}

func TestResolver_UnresolvedReferences(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testhelpers.MockBrokerClient)
		ref   string
	}{
		{
			name:  "network error",
			setup: func(c *testhelpers.MockBrokerClient) { c.SetResolveError(errors.New("connection reset")) },
			ref:   appleRef,
		},
		{
			name:  "empty symbol",
			setup: func(c *testhelpers.MockBrokerClient) { c.AddInstrument("450dfc6d-5510-4d40-abfb-f633b7d9be3e", "  ") },
			ref:   appleRef,
		},
		{
			name:  "no identifier",
			setup: func(c *testhelpers.MockBrokerClient) {},
			ref:   "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testhelpers.NewMockBrokerClient()
			tt.setup(client)
			r := NewResolver(client, 0, nil, zerolog.Nop())

			symbol, err := r.Resolve(context.Background(), &domain.BrokerSession{}, tt.ref)
			assert.ErrorIs(t, err, ErrUnresolved)
			assert.Empty(t, symbol)
		})
	}
}

func TestResolver_EachLookupGetsItsOwnTimeout(t *testing.T) {
	client := testhelpers.NewMockBrokerClient()
	client.SetResolveDelay(20 * time.Millisecond)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		client.AddInstrument(id, "SYM-"+id)
	}
	r := NewResolver(client, 100*time.Millisecond, nil, zerolog.Nop())

	// 8 lookups take ~160ms in total, longer than one timeout
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		symbol, err := r.Resolve(context.Background(), &domain.BrokerSession{}, "instruments/"+id+"/")
		require.NoError(t, err)
		assert.Equal(t, "SYM-"+id, symbol)
	}
	assert.Equal(t, 8, r.Len())
}

func TestResolver_TimeoutIsNotUnresolved(t *testing.T) {
	client := testhelpers.NewMockBrokerClient()
	client.AddInstrument("a", "AAA")
	client.SetResolveDelay(200 * time.Millisecond)
	r := NewResolver(client, 10*time.Millisecond, nil, zerolog.Nop())

	_, err := r.Resolve(context.Background(), &domain.BrokerSession{}, "instruments/a/")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUnresolved)
	assert.Equal(t, 0, r.Len())
}

func TestResolver_CancelledParentSkipsBroker(t *testing.T) {
	client := testhelpers.NewMockBrokerClient()
	client.AddInstrument("a", "AAA")
	r := NewResolver(client, time.Second, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, &domain.BrokerSession{}, "instruments/a/")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.ResolveCalls())
}

func TestResolver_ConcurrentAccess(t *testing.T) {
	client := testhelpers.NewMockBrokerClient()
	client.AddInstrument("a", "AAA")
	client.AddInstrument("b", "BBB")
	r := NewResolver(client, 0, nil, zerolog.Nop())
	session := &domain.BrokerSession{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := "instruments/a/"
			want := "AAA"
			if i%2 == 1 {
				ref, want = "instruments/b/", "BBB"
			}
			symbol, err := r.Resolve(context.Background(), session, ref)
			assert.NoError(t, err)
			assert.Equal(t, want, symbol)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, r.Len())
}
