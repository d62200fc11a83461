package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/modules/brokersync"
	"github.com/aristath/folio/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// JobRunner looks up and runs scheduled jobs
type JobRunner interface {
	Lookup(name string) (scheduler.Job, bool)
	RunNow(job scheduler.Job) error
	Next(name string) (time.Time, bool)
}

// SyncStateReader reports the sync state machine position
type SyncStateReader interface {
	State() brokersync.State
}

// SystemHandlers serves host and database status plus manual job triggers
type SystemHandlers struct {
	databases []*database.DB
	sync      SyncStateReader
	jobs      JobRunner
	dataDir   string
	startedAt time.Time
	log       zerolog.Logger
}

// DatabaseStatus is one database entry in the status response
type DatabaseStatus struct {
	Name  string          `json:"name"`
	Stats *database.Stats `json:"stats,omitempty"`
	Error string          `json:"error,omitempty"`
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	CPUPercent    float64          `json:"cpu_percent"`
	MemoryPercent float64          `json:"memory_percent"`
	DiskFreeMB    float64          `json:"disk_free_mb"`
	SyncState     brokersync.State `json:"sync_state"`
	NextSync      *time.Time       `json:"next_sync"`
	Databases     []DatabaseStatus `json:"databases"`
	LastChecked   string           `json:"last_checked"`
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(
	databases []*database.DB,
	sync SyncStateReader,
	jobs JobRunner,
	dataDir string,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		databases: databases,
		sync:      sync,
		jobs:      jobs,
		dataDir:   dataDir,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus returns host load, database stats and the sync schedule
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		DiskFreeMB:    h.getDiskFreeMB(),
		SyncState:     h.sync.State(),
		Databases:     make([]DatabaseStatus, 0, len(h.databases)),
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	if next, ok := h.jobs.Next(scheduler.SyncJobName); ok {
		response.NextSync = &next
	}

	for _, db := range h.databases {
		entry := DatabaseStatus{Name: db.Name()}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			entry.Error = err.Error()
			response.Status = "degraded"
		} else {
			entry.Stats = stats
		}
		response.Databases = append(response.Databases, entry)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleRunJob starts a registered job in the background.
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs.Lookup(name)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job " + name})
		return
	}

	go func() {
		if err := h.jobs.RunNow(job); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": name})
}

// getSystemStats samples CPU over 100ms so the call stays fast
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) getDiskFreeMB() float64 {
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		return 0
	}
	return float64(usage.Free) / 1024 / 1024
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
