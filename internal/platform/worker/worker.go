// Package worker provides the poll loop and small helpers shared by the
// ingestion pollers, the run reclaimer and the scheduler jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker    = "worker"
	logFieldOperation = "operation"
	logFieldFailures  = "consecutive_failures"

	// maxBackoffShift caps the poll interval growth at 8x after repeated failures.
	maxBackoffShift = 3
)

// ProcessFunc is called each iteration to process work items.
// It should return quickly if no work is available.
type ProcessFunc func(ctx context.Context) error

// Config configures the worker loop behavior.
type Config struct {
	// Name identifies the worker for logging.
	Name string

	// PollInterval is the time between process iterations.
	PollInterval time.Duration

	// Process is called each iteration to do the main work.
	Process ProcessFunc

	// OnError is called when Process returns an error.
	// Return true to continue, false to exit the loop.
	OnError func(err error) bool

	// BackoffOnError stretches the wait after consecutive failures.
	BackoffOnError bool

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Loop runs Process every PollInterval until the context is canceled.
// Returns a wrapped context error on cancellation, or the first fatal error.
func Loop(ctx context.Context, cfg Config) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")

	defer func() {
		logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")
	}()

	failures := 0

	for {
		if err := checkCanceled(ctx, cfg.Name); err != nil {
			return err
		}

		err := runProcessStep(ctx, cfg, logger)
		if err != nil {
			if cfg.OnError != nil && !cfg.OnError(err) {
				return err
			}

			failures++

			logger.Warn().Err(err).Str(logFieldWorker, cfg.Name).Int(logFieldFailures, failures).Msg("process error")
		} else {
			failures = 0
		}

		if err := Wait(ctx, nextInterval(cfg, failures)); err != nil {
			return err
		}
	}
}

func nextInterval(cfg Config, failures int) time.Duration {
	if !cfg.BackoffOnError || failures == 0 {
		return cfg.PollInterval
	}

	return cfg.PollInterval << min(failures, maxBackoffShift)
}

func runProcessStep(ctx context.Context, cfg Config, logger *zerolog.Logger) (err error) {
	if cfg.Process == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str(logFieldWorker, cfg.Name).Msg("recovered from panic")
			err = fmt.Errorf("worker %s panicked: %v", cfg.Name, r) //nolint:err113 // panic value is dynamic
		}
	}()

	return cfg.Process(ctx)
}

func checkCanceled(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("worker loop %s: %w", name, ctx.Err())
	default:
		return nil
	}
}

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RunWithTimeout runs fn with a timeout derived from the parent context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(timeoutCtx)
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		getLogger(logger).Error().
			Interface("panic", r).
			Str(logFieldOperation, operation).
			Msg("recovered from panic")
	}
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
