package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

// Scheduler wraps gocron scheduler for managing periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
	}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts down the scheduler and waits for running jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs fn every interval, first run one interval from now. A run that is
// still in progress when the next one is due delays it rather than overlapping.
// Returns the job ID for later management.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive: %s", interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic job %s: %w", name, err)
	}
	return job.ID().String(), nil
}

// ScheduleCron runs fn on a standard five-field cron expression.
func (s *Scheduler) ScheduleCron(name, expr string, fn func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create cron job %s: %w", name, err)
	}
	return job.ID().String(), nil
}

// NextRun returns the next scheduled run of the job with the given ID.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	for _, job := range s.scheduler.Jobs() {
		if job.ID().String() != id {
			continue
		}
		next, err := job.NextRun()
		if err != nil {
			return time.Time{}, false
		}
		return next, true
	}
	return time.Time{}, false
}

// run is called by gocron to execute a scheduled task.
func (s *Scheduler) run(name string, fn func()) {
	slog.Debug("Executing scheduled job", logfields.ScheduleName(name))
	fn()
}
