// Package dedup keeps products unique by their source-message fingerprint.
package dedup

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
)

// Repository is the storage the guard checks against.
type Repository interface {
	AnyProcessed(ctx context.Context, ids []string) (bool, error)
	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
}

// CleanupRepository deletes duplicate products.
type CleanupRepository interface {
	DeleteDuplicateProducts(ctx context.Context) ([]string, error)
}

// Guard rejects groups whose work was already done.
type Guard struct {
	database Repository
	logger   *zerolog.Logger
}

// NewGuard creates a deduplication guard.
func NewGuard(database Repository, logger *zerolog.Logger) *Guard {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Guard{database: database, logger: logger}
}

// Check returns ErrAlreadyConsumed if any member is processed, or
// ErrDuplicateProduct if a product with the same fingerprint exists. The
// processed check runs first; it is cheaper and catches most races.
func (g *Guard) Check(ctx context.Context, group domain.MessageGroup) error {
	ids := group.MessageIDs()

	consumed, err := g.database.AnyProcessed(ctx, ids)
	if err != nil {
		return fmt.Errorf("check processed: %w", err)
	}

	if consumed {
		return fmt.Errorf("group %s: %w", group.ID, apperrors.ErrAlreadyConsumed)
	}

	fingerprint := group.Fingerprint()

	exists, err := g.database.FingerprintExists(ctx, fingerprint)
	if err != nil {
		return fmt.Errorf("check fingerprint: %w", err)
	}

	if exists {
		return fmt.Errorf("group %s fingerprint %s: %w", group.ID, fingerprint[:12], apperrors.ErrDuplicateProduct)
	}

	return nil
}

// Cleaner removes duplicate products, keeping the earliest per fingerprint.
type Cleaner struct {
	database CleanupRepository
	logger   *zerolog.Logger
}

// NewCleaner creates a cleaner.
func NewCleaner(database CleanupRepository, logger *zerolog.Logger) *Cleaner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Cleaner{database: database, logger: logger}
}

// Cleanup deletes duplicates and returns their ids. Running it again is a no-op.
func (c *Cleaner) Cleanup(ctx context.Context) ([]string, error) {
	removed, err := c.database.DeleteDuplicateProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("delete duplicate products: %w", err)
	}

	observability.ProductsDeleted.WithLabelValues(observability.ReasonCleanup).Add(float64(len(removed)))

	for _, id := range removed {
		c.logger.Debug().Str(logKeySkippedID, id).Msg("deleted duplicate product")
	}

	c.logger.Info().Int("deleted", len(removed)).Msg("duplicate product cleanup finished")

	return removed, nil
}
