// Package coordinator admits pipeline runs. Manual and scheduled triggers
// coordinate only through the persisted run table: stuck runs are reclaimed
// first, then admission is one atomic check-and-insert.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
)

const (
	defaultStuckTimeout = time.Hour

	// ErrMsgInterrupted is stored on runs stopped by a shutdown signal.
	ErrMsgInterrupted = "interrupted"

	logKeyRunID    = "run_id"
	logKeyTrigger  = "trigger"
	logKeySource   = "source"
	logKeyStatus   = "status"
	logKeyConflict = "conflict_run_id"
)

// Rejection reasons.
const (
	ReasonManualActive = "a manual run is active, wait for completion"
	ReasonCronActive   = "a scheduled run is active, manual must wait"
	ReasonCronFamily   = "a scheduled run of the same source family is active"
	ReasonKeyHeld      = "exclusion key is held by a running run"
)

// Request describes a run to admit.
type Request struct {
	Trigger domain.Trigger
	Source  domain.SourceFamily
	Reason  string
	// SourceID narrows the run, e.g. to one chat.
	SourceID string
}

// RejectionError reports a refused admission. It wraps ErrRunRejected.
type RejectionError struct {
	Request       Request
	ConflictRunID string
	Reason        string
	Err           error
}

func (e *RejectionError) Error() string {
	if e.ConflictRunID != "" {
		return fmt.Sprintf("%s run rejected: %s (run %s)", e.Request.Trigger, e.Reason, e.ConflictRunID)
	}

	return fmt.Sprintf("%s run rejected: %s", e.Request.Trigger, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}

	return apperrors.ErrRunRejected
}

// Is makes errors.Is(err, ErrRunRejected) hold when Err is a store error.
func (e *RejectionError) Is(target error) bool {
	return target == apperrors.ErrRunRejected
}

// Config configures the coordinator.
type Config struct {
	StuckTimeout time.Duration
}

// Coordinator owns the lifecycle of run records.
type Coordinator struct {
	runs         ports.RunStore
	stuckTimeout time.Duration
	now          func() time.Time
	logger       *zerolog.Logger
}

// New creates a coordinator.
func New(runs ports.RunStore, cfg Config, logger *zerolog.Logger) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = defaultStuckTimeout
	}

	return &Coordinator{
		runs:         runs,
		stuckTimeout: cfg.StuckTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// Reclaim force-fails runs that have been running longer than the stuck timeout.
func (c *Coordinator) Reclaim(ctx context.Context) ([]domain.RunRecord, error) {
	reason := fmt.Sprintf("timeout: running longer than %s", c.stuckTimeout)

	reclaimed, err := c.runs.ReclaimStuckRuns(ctx, c.now().Add(-c.stuckTimeout), reason)
	if err != nil {
		return nil, fmt.Errorf("reclaim stuck runs: %w", err)
	}

	for _, r := range reclaimed {
		observability.RunsReclaimed.Inc()
		observability.RunsTotal.WithLabelValues(string(r.TriggeredBy), string(domain.RunStatusFailed)).Inc()
		c.logger.Warn().
			Str(logKeyRunID, r.ID).
			Str(logKeyTrigger, string(r.TriggeredBy)).
			Time("started_at", r.StartedAt).
			Msg("reclaimed stuck run")
	}

	return reclaimed, nil
}

// Begin reclaims stuck runs and admits req. The returned record is already
// persisted as running. A refusal is a *RejectionError.
func (c *Coordinator) Begin(ctx context.Context, req Request) (domain.RunRecord, error) {
	if _, ok := domain.ParseTrigger(string(req.Trigger)); !ok {
		return domain.RunRecord{}, fmt.Errorf("%w: trigger %q", apperrors.ErrInvalidInput, req.Trigger)
	}

	if req.Source == "" {
		req.Source = domain.SourceAll
	}

	if _, err := c.Reclaim(ctx); err != nil {
		return domain.RunRecord{}, err
	}

	rec := domain.RunRecord{
		ID:           uuid.NewString(),
		Status:       domain.RunStatusRunning,
		StartedAt:    c.now(),
		TriggeredBy:  req.Trigger,
		Source:       req.Source,
		ExclusionKey: domain.ExclusionKey(req.Trigger, req.Source),
		Reason:       req.Reason,
		SourceID:     req.SourceID,
	}

	if err := c.runs.StartRunExclusive(ctx, rec, Admit(req)); err != nil {
		var rejection *RejectionError

		switch {
		case errors.As(err, &rejection):
		case errors.Is(err, apperrors.ErrRunRejected):
			rejection = &RejectionError{Request: req, Reason: ReasonKeyHeld, Err: err}
		default:
			return domain.RunRecord{}, fmt.Errorf("start run: %w", err)
		}

		c.logger.Info().
			Str(logKeyTrigger, string(req.Trigger)).
			Str(logKeySource, string(req.Source)).
			Str(logKeyConflict, rejection.ConflictRunID).
			Msg(rejection.Reason)

		return domain.RunRecord{}, rejection
	}

	c.logger.Info().
		Str(logKeyRunID, rec.ID).
		Str(logKeyTrigger, string(rec.TriggeredBy)).
		Str(logKeySource, string(rec.Source)).
		Msg("run started")

	return rec, nil
}

// Admit returns the admission policy for req. Operator runs (manual and
// backfill) wait for any operator or scheduled run. Scheduled runs defer to
// operator runs and to scheduled runs of an overlapping source family.
func Admit(req Request) ports.AdmitFunc {
	return func(running []domain.RunRecord) error {
		for _, r := range running {
			if reason := conflict(req, r); reason != "" {
				return &RejectionError{Request: req, ConflictRunID: r.ID, Reason: reason}
			}
		}

		return nil
	}
}

func conflict(req Request, r domain.RunRecord) string {
	if req.Trigger.IsOperator() {
		if r.TriggeredBy.IsOperator() {
			return ReasonManualActive
		}

		return ReasonCronActive
	}

	if r.TriggeredBy.IsOperator() {
		return ReasonManualActive
	}

	if familiesOverlap(req.Source, r.Source) {
		return ReasonCronFamily
	}

	return ""
}

func familiesOverlap(a, b domain.SourceFamily) bool {
	return a == b || a == domain.SourceAll || b == domain.SourceAll || a == "" || b == ""
}

// UpdateProgress persists the counters of a running run.
func (c *Coordinator) UpdateProgress(ctx context.Context, runID string, counters domain.RunCounters) error {
	if err := c.runs.UpdateRunCounters(ctx, runID, counters); err != nil {
		return fmt.Errorf("update run %s progress: %w", runID, err)
	}

	return nil
}

// Finish finalizes rec as completed, or failed when runErr is set. It uses a
// context detached from cancellation so a shutdown still records the outcome.
func (c *Coordinator) Finish(ctx context.Context, rec domain.RunRecord, counters domain.RunCounters, runErr error) error {
	ctx = context.WithoutCancel(ctx)

	status := domain.RunStatusCompleted
	errMsg := ""

	if runErr != nil {
		status = domain.RunStatusFailed
		errMsg = runErr.Error()

		if errors.Is(runErr, context.Canceled) {
			errMsg = ErrMsgInterrupted
		}
	}

	observability.RunDurationSeconds.Observe(c.now().Sub(rec.StartedAt).Seconds())

	if err := c.runs.FinishRun(ctx, rec.ID, status, counters, errMsg); err != nil {
		if errors.Is(err, apperrors.ErrRunNotRunning) {
			c.logger.Warn().Str(logKeyRunID, rec.ID).Msg("run was finalized elsewhere, likely reclaimed as stuck")

			return nil
		}

		return fmt.Errorf("finish run %s: %w", rec.ID, err)
	}

	observability.RunsTotal.WithLabelValues(string(rec.TriggeredBy), string(status)).Inc()

	c.logger.Info().
		Str(logKeyRunID, rec.ID).
		Str(logKeyStatus, string(status)).
		Int("messages_read", counters.MessagesRead).
		Int("groups_formed", counters.GroupsFormed).
		Int("products_created", counters.ProductsCreated).
		Int("products_deleted", counters.ProductsDeleted).
		Int("messages_skipped", counters.MessagesSkipped).
		Msg("run finished")

	return nil
}

// Running lists running runs.
func (c *Coordinator) Running(ctx context.Context) ([]domain.RunRecord, error) {
	runs, err := c.runs.ListRunningRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}

	return runs, nil
}

// Recent lists the latest runs, newest first.
func (c *Coordinator) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	runs, err := c.runs.ListRecentRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}

	return runs, nil
}
