// Package di wires databases, clients, services and jobs into a Container.
package di

import (
	"github.com/aristath/folio/internal/clients/broker"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/events"
	"github.com/aristath/folio/internal/metrics"
	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/aristath/folio/internal/modules/settings"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server and CLI commands.
type Container struct {
	// Databases
	ConfigDB    *database.DB // settings and sealed credentials
	PortfolioDB *database.DB // committed snapshot and sync status
	CacheDB     *database.DB // raw snapshot archive

	// Infrastructure
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Metrics // nil when metrics are disabled

	// Clients
	BrokerClient *broker.Client
	R2Client     *reliability.R2Client // nil without an archive bucket

	// Repositories
	SettingsRepo *settings.Repository
	PositionRepo *portfolio.PositionRepository
	TradeRepo    *portfolio.TradeRepository
	SnapshotRepo *portfolio.SnapshotRepository

	// Services
	SettingsService  *settings.Service
	PortfolioService *portfolio.PortfolioService
	Archive          *brokersync.Archive
	Orchestrator     *brokersync.Orchestrator
	BackupService    *reliability.BackupService // nil without an archive bucket

	// Background jobs
	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	Sync           *scheduler.SyncJob
	Maintenance    *reliability.MaintenanceJob
	WALCheckpoints *scheduler.CheckWALCheckpointsJob
}

// Databases returns the open databases in a stable order
func (c *Container) Databases() []*database.DB {
	dbs := make([]*database.DB, 0, 3)
	for _, db := range []*database.DB{c.ConfigDB, c.PortfolioDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close stops the scheduler, waits for a running sync and closes every resource
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Orchestrator != nil {
		c.Orchestrator.Wait()
	}
	if c.BrokerClient != nil {
		c.BrokerClient.Close()
	}
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}
