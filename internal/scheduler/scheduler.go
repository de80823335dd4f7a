// Package scheduler runs the pipeline once at startup and then daily at a
// fixed local time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
)

// Job is one pipeline run.
type Job func(ctx context.Context) error

// Scheduler triggers a Job on a daily cron entry. Missed triggers are not
// caught up.
type Scheduler struct {
	hour     int
	minute   int
	job      Job
	logger   *slog.Logger
	cron     *cron.Cron
	schedule cron.Schedule
}

// New creates a Scheduler for hour:minute in the local time zone.
func New(hour, minute int, job Job, logger *slog.Logger) (*Scheduler, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid schedule time %02d:%02d", hour, minute)
	}
	s := &Scheduler{hour: hour, minute: minute, job: job, logger: logger}

	schedule, err := cron.ParseStandard(s.Spec())
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", s.Spec(), err)
	}
	s.schedule = schedule

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	s.cron = cron.New(
		cron.WithLocation(time.Local),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	return s, nil
}

// Spec is the five-field cron expression for the daily trigger.
func (s *Scheduler) Spec() string {
	return fmt.Sprintf("%d %d * * *", s.minute, s.hour)
}

// Next returns the first trigger time strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start runs the job once and returns its error if it fails. Otherwise it
// registers the daily trigger and blocks until ctx is cancelled, then waits
// for any running job to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.job(ctx); err != nil {
		return fmt.Errorf("initial pipeline run: %w", err)
	}

	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.runScheduled(ctx) }))
	s.cron.Start()
	s.logger.Info("scheduler started",
		"schedule", fmt.Sprintf("%02d:%02d", s.hour, s.minute),
		"next_run", s.Next(time.Now()),
	)

	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// runScheduled runs one triggered job. Failures are logged; the schedule
// keeps going.
func (s *Scheduler) runScheduled(ctx context.Context) {
	start := time.Now()
	err := s.job(ctx)
	switch {
	case err == nil:
		s.logger.Info("scheduled run finished", "duration", time.Since(start))
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Warn("scheduled run skipped", "reason", err)
	default:
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start))
	}
}
