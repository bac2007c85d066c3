// Package scheduler re-runs batch analysis on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/keagan/momentforge/internal/logging"
)

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler wraps a cron instance that runs a single job. A run that is
// still going when the next one is due causes that next run to be skipped.
type Scheduler struct {
	logger zerolog.Logger
	cron   *cron.Cron
	spec   string
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses spec (six fields, seconds first) and registers job.
func New(logger zerolog.Logger, spec string, job Job) (*Scheduler, error) {
	if spec == "" {
		return nil, fmt.Errorf("cron schedule is empty")
	}

	logger = logging.WithComponent(logger, "scheduler")
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{logger: logger, cron: c, spec: spec, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc(spec, func() { job(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	logger.Info().Str("schedule", spec).Msg("job registered")
	return s, nil
}

// Next returns when the job runs next, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Run starts the scheduler and blocks until ctx is done, then stops it and
// waits up to grace for a running job to finish.
func (s *Scheduler) Run(ctx context.Context, grace time.Duration) {
	s.cron.Start()
	s.logger.Info().Time("next", s.Next()).Msg("scheduler started")

	<-ctx.Done()
	s.Stop(grace)
}

// Stop cancels running jobs and waits up to grace for them to return.
func (s *Scheduler) Stop(grace time.Duration) {
	s.logger.Info().Msg("stopping scheduler")
	s.cancel()
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		s.logger.Info().Msg("scheduler stopped")
	case <-time.After(grace):
		s.logger.Warn().Dur("grace", grace).Msg("scheduler stop timed out, a job may still be running")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
