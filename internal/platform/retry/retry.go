// Package retry runs an operation with exponential backoff and jitter,
// retrying only errors classified as transient.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	retrygo "github.com/avast/retry-go/v4"

	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
	jitterFraction      = 0.2
)

// Classifier reports whether an error is transient.
type Classifier func(err error) bool

// Config configures retry behavior.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Retryable    Classifier
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   defaultMaxRetries,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Retryable:    IsTransient,
	}
}

func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}

	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}

	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}

	if c.Retryable == nil {
		c.Retryable = IsTransient
	}

	return c
}

// Do calls fn until it succeeds, returns a permanent error, or retries are exhausted.
// Exhaustion wraps both ErrRetriesExhausted and the last error.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()
	attempts := uint(cfg.MaxRetries) + 1 //nolint:gosec // normalized to non-negative
	jitter := max(time.Duration(float64(cfg.InitialDelay)*jitterFraction), time.Nanosecond)

	var zero T

	val, err := retrygo.DoWithData(
		func() (T, error) { return fn(ctx) },
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.Delay(cfg.InitialDelay),
		retrygo.MaxDelay(cfg.MaxDelay),
		retrygo.MaxJitter(jitter),
		retrygo.DelayType(retrygo.CombineDelay(retrygo.BackOffDelay, retrygo.RandomDelay)),
		retrygo.RetryIf(retrygo.RetryIfFunc(cfg.Retryable)),
		retrygo.LastErrorOnly(true),
	)
	if err == nil {
		return val, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, fmt.Errorf("retry interrupted: %w", ctxErr)
	}

	if cfg.Retryable(err) {
		return zero, fmt.Errorf("%w after %d attempts: %w", apperrors.ErrRetriesExhausted, attempts, err)
	}

	return zero, err
}

// StatusError carries an HTTP status code from a remote call.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= http.StatusInternalServerError
}

// IsTransient is the default classifier: timeouts, rate limits, open circuits and 5xx.
// Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, apperrors.ErrRateLimited) ||
		errors.Is(err, apperrors.ErrCircuitBreakerOpen) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return IsRetryableStatus(statusErr.Status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
