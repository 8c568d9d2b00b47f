// Package pipeline is the batch loop of one run: admit, page, group,
// deduplicate and assemble until the pool is exhausted.
package pipeline

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
	"github.com/lueurxax/supplier-catalog/internal/platform/settings"
	"github.com/lueurxax/supplier-catalog/internal/process/assembly"
	"github.com/lueurxax/supplier-catalog/internal/process/batch"
	"github.com/lueurxax/supplier-catalog/internal/process/coordinator"
	"github.com/lueurxax/supplier-catalog/internal/process/dedup"
	"github.com/lueurxax/supplier-catalog/internal/process/grouping"
)

// Repository is the message and category storage the runner reads.
type Repository interface {
	ports.MessageStore
	ports.CategoryStore
}

// Config holds the env defaults a run starts from.
type Config struct {
	Defaults       settings.Thresholds
	MaxLLMMessages int
}

// Report summarizes a finished run.
type Report struct {
	Run      domain.RunRecord
	Counters domain.RunCounters
	Batches  int
}

// Runner executes runs.
type Runner struct {
	cfg         Config
	coordinator *coordinator.Coordinator
	database    Repository
	settings    ports.SettingsReader
	enricher    ports.Enricher
	guard       *dedup.Guard
	assembler   *assembly.Assembler
	logger      *zerolog.Logger
	now         func() time.Time
}

// New creates a runner. settings may be nil.
func New(cfg Config, coord *coordinator.Coordinator, database Repository, settingsReader ports.SettingsReader,
	enricher ports.Enricher, guard *dedup.Guard, assembler *assembly.Assembler, logger *zerolog.Logger,
) *Runner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Runner{
		cfg:         cfg,
		coordinator: coord,
		database:    database,
		settings:    settingsReader,
		enricher:    enricher,
		guard:       guard,
		assembler:   assembler,
		logger:      logger,
		now:         time.Now,
	}
}

// runState is the per-run working set. Nothing in it outlives the run.
type runState struct {
	rec        domain.RunRecord
	params     Params
	thresholds settings.Thresholds
	extender   *batch.Extender
	engine     *grouping.Engine
	assembler  *assembly.Assembler
	categories []domain.Category
	counters   domain.RunCounters
	logger     zerolog.Logger
}

// Run admits and executes one run. It returns a *coordinator.RejectionError
// when admission is refused, and ErrInvalidInput for bad parameters. Both
// happen before any message is touched.
func (r *Runner) Run(ctx context.Context, params Params) (Report, error) {
	if err := params.Validate(); err != nil {
		return Report{}, err
	}

	thresholds := settings.Load(ctx, r.settings, r.cfg.Defaults, r.logger)
	if params.PageSize > 0 {
		thresholds.PageSize = params.PageSize
	}

	if params.LookbackHours > 0 {
		thresholds.Lookback = params.lookback()
	}

	categories, err := r.database.ListActiveCategories(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load categories: %w", err)
	}

	rec, err := r.coordinator.Begin(ctx, coordinator.Request{
		Trigger:  params.Trigger,
		Source:   params.source(),
		Reason:   params.Reason,
		SourceID: params.ChatID,
	})
	if err != nil {
		return Report{}, err //nolint:wrapcheck // rejection is returned as is
	}

	st := &runState{
		rec:        rec,
		params:     params,
		thresholds: thresholds,
		categories: categories,
		logger:     r.logger.With().Str(LogFieldRunID, rec.ID).Str(LogFieldSource, string(params.source())).Logger(),
	}

	st.extender = batch.NewExtender(r.database, rec.ID, batch.Config{
		PageSize:        thresholds.PageSize,
		Lookback:        thresholds.Lookback,
		ContinuationGap: thresholds.ContinuationGap,
		Source:          params.source(),
		ChatID:          params.ChatID,
	}, r.now(), &st.logger)

	st.engine = grouping.NewEngine(grouping.Config{
		TextWindow:     thresholds.TextWindow,
		MaxTypeChanges: thresholds.MaxTypeChanges,
		MinConfidence:  thresholds.MinConfidence,
		MaxLLMMessages: r.cfg.MaxLLMMessages,
	}, thresholds.GroupingMode, r.enricher, &st.logger)

	st.assembler = r.assembler.WithDefaultCategory(thresholds.DefaultCategorySlug)

	st.logger.Info().
		Str("trigger", string(params.Trigger)).
		Str("grouping_mode", st.engine.Mode()).
		Int("page_size", st.extender.PageSize()).
		Time("since", st.extender.Since()).
		Msg("run started")

	batches, runErr := r.loop(ctx, st)

	if err := r.coordinator.Finish(ctx, rec, st.counters, runErr); err != nil {
		st.logger.Error().Err(err).Msg("failed to finalize run")

		runErr = errors.Join(runErr, err)
	}

	report := Report{Run: rec, Counters: st.counters, Batches: batches}

	if runErr != nil {
		return report, fmt.Errorf("run %s: %w", rec.ID, runErr)
	}

	return report, nil
}

func (r *Runner) loop(ctx context.Context, st *runState) (int, error) {
	batches := 0
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return batches, fmt.Errorf("run loop: %w", err)
		}

		page, err := st.extender.Fetch(ctx, offset)
		if err != nil {
			return batches, err //nolint:wrapcheck // already wrapped with offset
		}

		if len(page.Messages) > 0 {
			batches++

			if err := r.processBatch(ctx, st, page, offset); err != nil {
				return batches, err
			}
		}

		if page.Exhausted {
			return batches, nil
		}

		offset = page.NextOffset
	}
}

func (r *Runner) processBatch(ctx context.Context, st *runState, page batch.Page, offset int) error {
	correlationID := uuid.New().String()
	logger := st.logger.With().Str(LogFieldCorrelationID, correlationID).Logger()

	logger.Info().Int(LogFieldOffset, offset).Int(LogFieldCount, len(page.Messages)).Msg("processing batch")

	st.counters.MessagesRead += len(page.Messages)

	result := st.engine.Group(ctx, page.Messages)

	logger.Debug().
		Int(LogFieldGrouped, result.GroupedCount()).
		Int(LogFieldSkipped, len(result.Skipped)).
		Int(LogFieldDeferred, len(result.Tail)).
		Msg("batch grouped")

	if err := r.skip(ctx, st, result.Skipped); err != nil {
		return err
	}

	if len(result.Tail) > 0 {
		observability.MessagesDeferred.Add(float64(len(result.Tail)))
		logger.Debug().Int(LogFieldCount, len(result.Tail)).Msg("ungrouped tail left for the next run")
	}

	groups := dedup.DeduplicateGroups(result.Groups, &logger)
	st.counters.GroupsFormed += len(groups)

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			r.saveProgress(ctx, st)

			return fmt.Errorf("batch %s: %w", correlationID, err)
		}

		r.processGroup(ctx, st, logger, group)
	}

	r.saveProgress(ctx, st)
	r.updateBacklog(ctx, st, logger)

	return nil
}

func (r *Runner) skip(ctx context.Context, st *runState, msgs []domain.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	n, err := r.database.MarkSkipped(ctx, st.rec.ID, ids)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}

	st.counters.MessagesSkipped += int(n)
	observability.MessagesSkipped.Add(float64(n))

	return nil
}

// processGroup never fails the run: every group outcome is logged and counted.
func (r *Runner) processGroup(ctx context.Context, st *runState, logger zerolog.Logger, group domain.MessageGroup) {
	glog := logger.With().Str(LogFieldGroupID, group.ID).Logger()

	if err := r.guard.Check(ctx, group); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrDuplicateProduct):
			// A product already covers this exact set; consume the leftovers.
			glog.Info().Err(err).Msg("group already has a product")

			if err := r.skip(ctx, st, group.Messages); err != nil {
				glog.Warn().Err(err).Msg("failed to consume duplicate group")
			}
		case errors.Is(err, apperrors.ErrAlreadyConsumed):
			glog.Info().Err(err).Msg("group lost a claim race")
		default:
			glog.Error().Err(err).Msg("deduplication check failed")
		}

		return
	}

	out, err := st.assembler.Assemble(ctx, st.rec.ID, group, st.categories)
	if err != nil {
		var stageErr *assembly.StageError
		if errors.As(err, &stageErr) && stageErr.Stage != assembly.StageDraft {
			st.counters.ProductsDeleted++
		}

		glog.Warn().Err(err).Msg("group not assembled")

		return
	}

	st.counters.ProductsCreated++

	glog.Info().Str(LogFieldProductID, out.ProductID).Int("images", out.Images).Msg("product created")
}

// saveProgress persists counters even after cancellation so a killed run
// keeps partial counts.
func (r *Runner) saveProgress(ctx context.Context, st *runState) {
	if err := r.coordinator.UpdateProgress(context.WithoutCancel(ctx), st.rec.ID, st.counters); err != nil {
		st.logger.Warn().Err(err).Msg("failed to persist run progress")
	}
}

func (r *Runner) updateBacklog(ctx context.Context, st *runState, logger zerolog.Logger) {
	source := st.params.source()

	backlog, err := r.database.CountBacklog(ctx, source, st.extender.Since())
	if err != nil {
		logger.Warn().Err(err).Msg("failed to count backlog")

		return
	}

	observability.Backlog.WithLabelValues(string(source)).Set(float64(backlog))
	logger.Info().Int(LogFieldBacklog, backlog).Msg("pipeline backlog")
}
