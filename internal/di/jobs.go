package di

import (
	"fmt"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/rs/zerolog"
)

// walCheckSchedule is fixed; it only logs
const walCheckSchedule = "@every 1h"

// RegisterJobs creates the background jobs and registers them with a new scheduler.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	sched := scheduler.New(log)

	jobs := &JobInstances{
		Sync: scheduler.NewSyncJob(container.Orchestrator, log),
		Maintenance: reliability.NewMaintenanceJob(
			container.Databases(),
			container.BackupService,
			cfg.Archive.BackupKeep,
			cfg.DataDir,
			log,
		),
		WALCheckpoints: scheduler.NewCheckWALCheckpointsJob(container.Databases()...),
	}
	jobs.WALCheckpoints.SetLogger(log)

	if err := sched.AddJob(cfg.SyncSchedule, jobs.Sync); err != nil {
		return nil, fmt.Errorf("failed to register sync job: %w", err)
	}
	if err := sched.AddJob(cfg.MaintenanceSchedule, jobs.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}
	if err := sched.AddJob(walCheckSchedule, jobs.WALCheckpoints); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}

	container.Scheduler = sched
	container.Jobs = jobs
	return jobs, nil
}
