package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/aristath/folio/internal/modules/settings"
	testhelpers "github.com/aristath/folio/internal/testing"
)

func TestParseAssignments(t *testing.T) {
	updates, err := parseAssignments([]string{
		settings.KeyCash + "=1500.50",
		settings.KeyIntegrationEnabled + "=true",
		settings.KeyPassword + "=a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		settings.KeyCash:               "1500.50",
		settings.KeyIntegrationEnabled: "true",
		settings.KeyPassword:           "a=b",
	}, updates)

	updates, err = parseAssignments(nil)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestParseAssignments_Rejects(t *testing.T) {
	tests := []struct {
		name string
		arg  string
	}{
		{"no separator", settings.KeyCash},
		{"empty key", "=5"},
		{"unknown key", "colour=blue"},
		{"credentials bundle", settings.KeyCredentials + "=x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAssignments([]string{tt.arg})
			assert.Error(t, err)
		})
	}
}

func TestSyncExitStatus(t *testing.T) {
	assert.Equal(t, subcommands.ExitSuccess, syncExitStatus(brokersync.StatusOK))
	assert.Equal(t, subcommands.ExitFailure, syncExitStatus(brokersync.StatusRejected))
	assert.Equal(t, subcommands.ExitFailure, syncExitStatus(brokersync.StatusError))
}

func TestCommandNamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		assert.False(t, seen[c.Name()], c.Name())
		seen[c.Name()] = true
		assert.NotEmpty(t, c.Synopsis())
	}
	assert.Len(t, seen, 5)
}

func TestLatestSnapshot(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "cache")
	defer cleanup()

	ctx := context.Background()
	archive := brokersync.NewArchive(db.Conn(), 5, nil, time.Second, zerolog.Nop())

	_, err := latestSnapshot(ctx, archive)
	assert.ErrorIs(t, err, errNoSnapshot)

	require.NoError(t, archive.Store(ctx, brokersync.RawSnapshot{
		AttemptID: "attempt-1",
		PulledAt:  time.Now().UTC(),
		Holdings:  []domain.RawHolding{{Symbol: "AAPL", Quantity: "2"}},
	}))

	snap, err := latestSnapshot(ctx, archive)
	require.NoError(t, err)
	assert.Equal(t, "attempt-1", snap.AttemptID)
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, "AAPL", snap.Holdings[0].Symbol)
}
