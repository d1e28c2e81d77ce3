// Package scheduler runs background jobs on cron expressions, primarily the
// recurring baseline simulation that doubles as an end-to-end self check.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of background work. Run must be safe to invoke again
// on the next tick even if the previous invocation failed.
type Job interface {
	Run() error
	Name() string
}

// Scheduler dispatches registered jobs. A simulation can take minutes, so
// Stop waits for in-flight jobs rather than interrupting them.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a scheduler. Expressions use six fields (seconds first).
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins dispatching jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop blocks until any running job completes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job on a cron schedule, e.g. "0 0 2 * * *" for a daily
// 02:00 baseline run or "@every 1h" for hourly re-checks.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		started := time.Now()
		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Dur("elapsed", time.Since(started)).
				Msg("Scheduled job failed")
			return
		}
		s.log.Info().
			Str("job", job.Name()).
			Dur("elapsed", time.Since(started)).
			Msg("Scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("register job %s: %w", job.Name(), err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job scheduled")
	return nil
}
