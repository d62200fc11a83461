// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/folio/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

type entry struct {
	id       cron.EntryID
	schedule string
	job      Job
}

// Scheduler manages background jobs. A job never overlaps with itself.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]entry
}

// New creates a new scheduler using the sync schedule parser
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(config.ScheduleParser()),
			cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})),
		),
		log:     log,
		entries: make(map[string]entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule. An empty or "off" schedule
// keeps the job available to RunNow without scheduling it. Schedule examples:
//   - "@every 15m"     - Every 15 minutes
//   - "0 */5 * * * *"  - Every 5 minutes, on the minute
//   - "30 3 * * *"     - 03:30 every day
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	return s.register(schedule, job)
}

// Reschedule moves a registered job to a new schedule. "off" unschedules it
// but keeps it known so that a later call can turn it back on.
func (s *Scheduler) Reschedule(name, schedule string) error {
	if err := config.ValidateSchedule(schedule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("job %s is not registered", name)
	}
	if current.schedule == schedule {
		return nil
	}

	if current.id != 0 {
		s.cron.Remove(current.id)
	}
	delete(s.entries, name)

	if err := s.register(schedule, current.job); err != nil {
		return err
	}

	s.log.Info().Str("job", name).Str("from", current.schedule).Str("to", schedule).Msg("Job rescheduled")
	return nil
}

// Next returns the next run time of a job, false when it is not scheduled
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok || e.id == 0 {
		return time.Time{}, false
	}

	next := s.cron.Entry(e.id).Next
	return next, !next.IsZero()
}

// Lookup returns a registered job by name
func (s *Scheduler) Lookup(name string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return e.job, ok
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

// register must be called with s.mu held
func (s *Scheduler) register(schedule string, job Job) error {
	if schedule == "" || schedule == config.ScheduleDisabled {
		s.entries[job.Name()] = entry{schedule: schedule, job: job}
		s.log.Info().Str("job", job.Name()).Msg("Job registered without schedule")
		return nil
	}

	id, err := s.cron.AddFunc(schedule, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	s.entries[job.Name()] = entry{id: id, schedule: schedule, job: job}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

func (s *Scheduler) run(job Job) {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	if err := job.Run(); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
	} else {
		s.log.Debug().Str("job", job.Name()).Msg("Job completed")
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
