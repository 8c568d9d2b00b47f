// Package assembly turns a validated message group into a catalog product.
//
// Assembly is a saga, not a transaction. The draft claims its messages in
// stage 1; every fatal failure after that deletes the draft and releases the
// messages so a later run can retry them.
package assembly

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
)

const (
	logKeyGroupID   = "group_id"
	logKeyProductID = "product_id"
	logKeyMsgID     = "msg_id"
	logKeyStage     = "stage"
	logKeyMissing   = "missing"
	logKeyImages    = "images"
	logKeyReason    = "reason"
	logKeyURL       = "url"

	defaultImageConcurrency = 3
)

// Stage names used in logs and errors.
const (
	StageDraft      = "draft"
	StageText       = "text_enrichment"
	StageMedia      = "media"
	StageImage      = "image_enrichment"
	StageActivation = "activation"
)

// Repository is the product storage the saga needs.
type Repository interface {
	CreateDraft(ctx context.Context, p domain.Product, runID string) error
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) error
	AddImage(ctx context.Context, img domain.ProductImage) (domain.ProductImage, error)
	UpdateImageColor(ctx context.Context, imageID, color string) error
	ActivateProduct(ctx context.Context, id string) error
	DeleteDraft(ctx context.Context, id string, messageIDs []string) error
}

// Config tunes the saga.
type Config struct {
	// ImageConcurrency bounds parallel downloads and per-image enrichment.
	ImageConcurrency int
	// DefaultCategorySlug is used when enrichment names no known category.
	DefaultCategorySlug string
}

// StageError reports which saga stage failed fatally.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Outcome describes an assembled product.
type Outcome struct {
	ProductID string
	Images    int
	Failed    int
}

// Assembler runs the product saga.
type Assembler struct {
	cfg      Config
	store    Repository
	enricher ports.Enricher
	fetcher  ports.MediaFetcher
	objects  ports.ObjectStore
	logger   *zerolog.Logger
	newID    func() string
}

// New creates an assembler.
func New(cfg Config, store Repository, enricher ports.Enricher, fetcher ports.MediaFetcher, objects ports.ObjectStore, logger *zerolog.Logger) *Assembler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = defaultImageConcurrency
	}

	return &Assembler{
		cfg:      cfg,
		store:    store,
		enricher: enricher,
		fetcher:  fetcher,
		objects:  objects,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
	}
}

// WithDefaultCategory returns a copy that falls back to slug.
func (a *Assembler) WithDefaultCategory(slug string) *Assembler {
	cp := *a
	cp.cfg.DefaultCategorySlug = slug

	return &cp
}

// Assemble creates, enriches and activates the product for group. On any
// fatal failure the draft is deleted and the group's messages are released
// before the error is returned.
func (a *Assembler) Assemble(ctx context.Context, runID string, group domain.MessageGroup, categories []domain.Category) (Outcome, error) {
	if err := validateGroup(group); err != nil {
		return Outcome{}, err
	}

	product := domain.NewDraft(a.newID(), group)
	logger := a.logger.With().Str(logKeyGroupID, group.ID).Str(logKeyProductID, product.ID).Logger()

	// Stage 1: the draft claims every member in one transaction.
	if err := a.store.CreateDraft(ctx, product, runID); err != nil {
		return Outcome{}, &StageError{Stage: StageDraft, Err: err}
	}

	out := Outcome{ProductID: product.ID}

	// Stage 2: text enrichment must supply price and sizes.
	if err := a.enrichText(ctx, &product, group, categories); err != nil {
		reason := observability.ReasonEnrichmentFailed
		if errors.Is(err, apperrors.ErrMissingRequiredFields) {
			reason = observability.ReasonMissingTextFields
		}

		return out, a.compensate(ctx, logger, product, group, StageText, reason, err)
	}

	// Stage 3: media materialization. Failures here are per image.
	images := a.materializeMedia(ctx, logger, product.ID, group)
	out.Failed = len(group.ImageMessages()) - len(images)

	for _, img := range images {
		product.Images = append(product.Images, img.ProductImage)
	}

	// Stage 4: per-image enrichment, best effort.
	a.enrichImages(ctx, logger, &product, images, categories)
	a.applyDefaultCategory(ctx, logger, &product, categories)

	// Stage 5: re-validate and activate.
	if missing := product.MissingRequired(); len(missing) > 0 {
		logger.Info().Strs(logKeyMissing, missing).Msg("product incomplete at activation")

		err := fmt.Errorf("%w: %v", apperrors.ErrMissingRequiredFields, missing)

		return out, a.compensate(ctx, logger, product, group, StageActivation, observability.ReasonMissingRequired, err)
	}

	if err := a.store.ActivateProduct(ctx, product.ID); err != nil {
		reason := observability.ReasonEnrichmentFailed
		if errors.Is(err, apperrors.ErrDuplicateProduct) {
			reason = observability.ReasonDuplicate
		}

		return out, a.compensate(ctx, logger, product, group, StageActivation, reason, err)
	}

	out.Images = len(product.Images)
	observability.ProductsCreated.Inc()

	logger.Info().Int(logKeyImages, out.Images).Msg("product activated")

	return out, nil
}

func validateGroup(group domain.MessageGroup) error {
	hasText := false

	for _, m := range group.Messages {
		if m.IsTextTyped() {
			hasText = true

			break
		}
	}

	if !hasText || len(group.ImageMessages()) == 0 {
		return fmt.Errorf("group %s: %w", group.ID, apperrors.ErrInvalidGroup)
	}

	return nil
}

func (a *Assembler) enrichText(ctx context.Context, product *domain.Product, group domain.MessageGroup, categories []domain.Category) error {
	attrs, err := a.enricher.AnalyzeText(ctx, domain.TextAnalysisRequest{
		Text:       group.DescriptiveText(),
		Context:    group.Context,
		Categories: categories,
	})
	if err != nil {
		return fmt.Errorf("analyze text: %w", err)
	}

	patch := textPatch(attrs, group, categories)

	candidate := *product
	patch.ApplyTo(&candidate)

	if missing := candidate.MissingTextFields(); len(missing) > 0 {
		return fmt.Errorf("%w: %v", apperrors.ErrMissingRequiredFields, missing)
	}

	if err := a.store.UpdateProduct(ctx, product.ID, patch); err != nil {
		return fmt.Errorf("save text attributes: %w", err)
	}

	*product = candidate

	return nil
}

// compensate deletes the draft, releases its messages and removes the images
// already stored for it. It runs on a context that survives cancellation of
// the run.
func (a *Assembler) compensate(ctx context.Context, logger zerolog.Logger, product domain.Product, group domain.MessageGroup, stage, reason string, cause error) error {
	cleanupCtx := context.WithoutCancel(ctx)

	logger.Warn().Err(cause).Str(logKeyStage, stage).Str(logKeyReason, reason).Msg("assembly failed, deleting draft")

	stageErr := &StageError{Stage: stage, Err: cause}

	if err := a.store.DeleteDraft(cleanupCtx, product.ID, group.MessageIDs()); err != nil {
		logger.Error().Err(err).Msg("failed to delete draft")

		return errors.Join(stageErr, fmt.Errorf("delete draft %s: %w", product.ID, err))
	}

	observability.ProductsDeleted.WithLabelValues(reason).Inc()

	urls := make([]string, 0, len(product.Images))
	for _, img := range product.Images {
		urls = append(urls, img.URL)
	}

	a.deleteObjects(cleanupCtx, logger, urls)

	return stageErr
}
