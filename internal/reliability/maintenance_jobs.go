package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

const (
	criticalFreeBytes = 500 << 20
	lowFreeBytes      = 2 << 30
)

// MaintenanceJob checks and compacts the databases, then takes a remote backup
// when a backup service is configured.
type MaintenanceJob struct {
	databases  []*database.DB
	backup     *BackupService
	backupKeep int
	dataDir    string
	timeout    time.Duration
	log        zerolog.Logger

	// diskFree is swappable in tests
	diskFree func(path string) (uint64, error)
}

// NewMaintenanceJob creates the maintenance job. backup may be nil.
func NewMaintenanceJob(
	databases []*database.DB,
	backup *BackupService,
	backupKeep int,
	dataDir string,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		databases:  databases,
		backup:     backup,
		backupKeep: backupKeep,
		dataDir:    dataDir,
		timeout:    10 * time.Minute,
		log:        log.With().Str("job", "maintenance").Logger(),
		diskFree:   freeBytes,
	}
}

// Name returns the job name for the scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance steps in order. An integrity failure or a
// nearly full disk stops the run before anything is written.
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("CRITICAL: Database failed integrity check")
			return fmt.Errorf("integrity check failed for %s: %w", db.Name(), err)
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical, the next autocheckpoint retries
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
		j.compact(db)
	}

	if j.backup != nil {
		if _, err := j.backup.CreateAndUpload(ctx); err != nil {
			j.log.Error().Err(err).Msg("Backup failed")
			return fmt.Errorf("backup failed: %w", err)
		}
		if _, err := j.backup.RotateOldBackups(ctx, j.backupKeep); err != nil {
			j.log.Warn().Err(err).Msg("Backup rotation failed")
		}
	}

	j.log.Info().Dur("duration", time.Since(startTime)).Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	free, err := j.diskFree(j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read free disk space")
		return nil
	}

	freeMB := float64(free) / (1 << 20)
	switch {
	case free < criticalFreeBytes:
		j.log.Error().Float64("free_mb", freeMB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.0f MB free in %s", freeMB, j.dataDir)
	case free < lowFreeBytes:
		j.log.Warn().Float64("free_mb", freeMB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("free_mb", freeMB).Msg("Disk space check")
	}
	return nil
}

// compact vacuums a database once a quarter of its pages are free
func (j *MaintenanceJob) compact(db *database.DB) {
	stats, err := db.GetStats()
	if err != nil {
		j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
		return
	}

	j.log.Info().
		Str("database", db.Name()).
		Int64("size_bytes", stats.SizeBytes).
		Int64("wal_size_bytes", stats.WALSizeBytes).
		Int64("freelist_pages", stats.FreelistCount).
		Msg("Database metrics")

	if stats.PageCount == 0 || stats.FreelistCount*4 < stats.PageCount {
		return
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		j.log.Warn().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
		return
	}
	j.log.Info().Str("database", db.Name()).Int64("freed_pages", stats.FreelistCount).Msg("Database vacuumed")
}

func freeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
