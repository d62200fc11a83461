package scheduler

import (
	"testing"

	testhelpers "github.com/aristath/folio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := &CheckWALCheckpointsJob{
		log: zerolog.Nop(),
	}
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	job := NewCheckWALCheckpointsJob(nil, nil)
	job.SetLogger(zerolog.Nop())

	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	defer cleanup()

	_, err := db.Conn().Exec(`INSERT INTO positions (id, symbol) VALUES (1, 'AAPL')`)
	assert.NoError(t, err)

	job := NewCheckWALCheckpointsJob(db, nil)
	assert.NoError(t, job.Run())
}
