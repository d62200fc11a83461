package scheduler

import (
	"context"

	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/rs/zerolog"
)

// SyncJobName is the scheduler name of the periodic broker sync
const SyncJobName = "broker_sync"

// SyncTrigger starts a timer-triggered sync attempt
type SyncTrigger interface {
	TriggerTimer(ctx context.Context) brokersync.SyncResult
}

// SyncJob runs the broker sync on the timer
type SyncJob struct {
	trigger SyncTrigger
	log     zerolog.Logger
}

// NewSyncJob creates the periodic sync job
func NewSyncJob(trigger SyncTrigger, log zerolog.Logger) *SyncJob {
	return &SyncJob{
		trigger: trigger,
		log:     log.With().Str("job", SyncJobName).Logger(),
	}
}

// Name returns the job name
func (j *SyncJob) Name() string {
	return SyncJobName
}

// Run triggers one attempt. Skipped and rejected attempts are not failures.
func (j *SyncJob) Run() error {
	result := j.trigger.TriggerTimer(context.Background())

	switch result.Status {
	case brokersync.StatusError:
		return result.Err
	case brokersync.StatusOK:
		j.log.Debug().
			Str("attempt_id", result.AttemptID).
			Int("positions", result.PositionCount).
			Int("trades", result.TradeCount).
			Msg("Scheduled sync finished")
	default:
		j.log.Debug().Str("status", string(result.Status)).Str("reason", result.Message).Msg("Scheduled sync did not run")
	}
	return nil
}
