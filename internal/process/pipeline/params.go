package pipeline

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
)

var validate = validator.New()

// Params are the operator-facing inputs of one run. Zero values fall back
// to the configured thresholds.
type Params struct {
	Trigger       domain.Trigger      `validate:"required,oneof=manual cron backfill"`
	Source        domain.SourceFamily `validate:"omitempty,oneof=telegram whatsapp all"`
	ChatID        string              `validate:"omitempty,max=128"`
	Reason        string              `validate:"max=256"`
	PageSize      int                 `validate:"gte=0,lte=1000"`
	LookbackHours int                 `validate:"gte=0,lte=2160"`
}

// Validate reports malformed parameters as ErrInvalidInput.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	return nil
}

func (p Params) lookback() time.Duration {
	return time.Duration(p.LookbackHours) * time.Hour
}

func (p Params) source() domain.SourceFamily {
	if p.Source == "" {
		return domain.SourceAll
	}

	return p.Source
}
