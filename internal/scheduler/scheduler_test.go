package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_RunsJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_AddJobValidation(t *testing.T) {
	s := New(zerolog.Nop())

	assert.Error(t, s.AddJob("every now and then", &countingJob{name: "bad"}))
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "dup"}))
	assert.ErrorContains(t, s.AddJob("@every 1h", &countingJob{name: "dup"}), "already registered")
}

func TestScheduler_DisabledSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("off", &countingJob{name: "sync"}))

	_, scheduled := s.Next("sync")
	assert.False(t, scheduled)
}

func TestScheduler_Reschedule(t *testing.T) {
	s := New(zerolog.Nop())
	s.Start()
	defer s.Stop()

	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "sync"}))
	first, ok := s.Next("sync")
	require.True(t, ok)

	require.NoError(t, s.Reschedule("sync", "@every 5m"))
	second, ok := s.Next("sync")
	require.True(t, ok)
	assert.True(t, second.Before(first))

	require.NoError(t, s.Reschedule("sync", "off"))
	_, ok = s.Next("sync")
	assert.False(t, ok)

	require.NoError(t, s.Reschedule("sync", "@every 10m"))
	_, ok = s.Next("sync")
	assert.True(t, ok)

	assert.Error(t, s.Reschedule("sync", "nonsense"))
	assert.Error(t, s.Reschedule("missing", "@every 1m"))
}

func TestScheduler_Lookup(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "maintenance"}
	require.NoError(t, s.AddJob("off", job))

	found, ok := s.Lookup("maintenance")
	require.True(t, ok)
	assert.Same(t, job, found)

	_, ok = s.Lookup("unknown")
	assert.False(t, ok)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "now", err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

type stubTrigger struct {
	result brokersync.SyncResult
	calls  int
}

func (s *stubTrigger) TriggerTimer(ctx context.Context) brokersync.SyncResult {
	s.calls++
	return s.result
}

func TestSyncJob_Run(t *testing.T) {
	failure := errors.New("login failed")
	tests := []struct {
		name    string
		result  brokersync.SyncResult
		wantErr error
	}{
		{"ok", brokersync.SyncResult{Status: brokersync.StatusOK}, nil},
		{"skipped while busy", brokersync.SyncResult{Status: brokersync.StatusSkipped, Err: brokersync.ErrBusy}, nil},
		{"not configured", brokersync.SyncResult{Status: brokersync.StatusRejected, Err: &brokersync.ConfigError{Reason: "disabled"}}, nil},
		{"failed", brokersync.SyncResult{Status: brokersync.StatusError, Err: failure}, failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := &stubTrigger{result: tt.result}
			job := NewSyncJob(trigger, zerolog.Nop())

			err := job.Run()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, trigger.calls)
			assert.Equal(t, SyncJobName, job.Name())
		})
	}
}
