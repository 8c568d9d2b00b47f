// Package schedule runs cron-triggered jobs on top of gocron. Every job runs
// in singleton mode so a slow run is never overlapped by its own next tick.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Static errors for job registration.
var (
	ErrEmptyJobName = errors.New("empty job name")
	ErrNilJob       = errors.New("nil job function")
)

const (
	logFieldJob      = "job"
	logFieldCron     = "cron"
	logFieldNextRun  = "next_run"
	logFieldDuration = "duration_ms"

	slowJobThreshold = 5 * time.Minute
)

// Job is a scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a gocron scheduler bound to a root context.
type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	logger    *zerolog.Logger
}

// New creates a scheduler in UTC. Jobs receive ctx and stop when it is canceled.
func New(ctx context.Context, logger *zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogAdapter{logger: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{scheduler: s, ctx: ctx, logger: logger}, nil
}

// AddJob registers a cron job. An empty expression disables the job and returns false.
func (s *Scheduler) AddJob(name, cronExpr string, job Job) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, ErrEmptyJobName
	}

	if job == nil {
		return false, ErrNilJob
	}

	cronExpr = strings.TrimSpace(cronExpr)
	if cronExpr == "" {
		s.logger.Info().Str(logFieldJob, name).Msg("job disabled, no cron expression")

		return false, nil
	}

	scheduled, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(s.wrap(name, job)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return false, fmt.Errorf("schedule job %s: %w", name, err)
	}

	event := s.logger.Info().Str(logFieldJob, name).Str(logFieldCron, cronExpr)
	if next, err := scheduled.NextRun(); err == nil && !next.IsZero() {
		event = event.Time(logFieldNextRun, next)
	}

	event.Msg("job scheduled")

	return true, nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		if s.ctx.Err() != nil {
			return
		}

		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Str(logFieldJob, name).Msg("scheduled job panicked")
			}
		}()

		start := time.Now()

		if err := job(s.ctx); err != nil {
			s.logger.Error().Err(err).Str(logFieldJob, name).Msg("scheduled job failed")
		}

		if d := time.Since(start); d > slowJobThreshold {
			s.logger.Warn().Str(logFieldJob, name).Int64(logFieldDuration, d.Milliseconds()).Msg("slow scheduled job")
		}
	}
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Stop shuts the scheduler down and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}

	return nil
}

type gocronLogAdapter struct {
	logger *zerolog.Logger
}

func (l *gocronLogAdapter) Debug(msg string, args ...any) {
	l.logger.Debug().Fields(args).Msg(msg)
}

func (l *gocronLogAdapter) Info(msg string, args ...any) {
	l.logger.Info().Fields(args).Msg(msg)
}

func (l *gocronLogAdapter) Warn(msg string, args ...any) {
	l.logger.Warn().Fields(args).Msg(msg)
}

func (l *gocronLogAdapter) Error(msg string, args ...any) {
	l.logger.Error().Fields(args).Msg(msg)
}
