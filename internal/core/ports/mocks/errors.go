package mocks

import (
	"fmt"

	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
)

var (
	// ErrSettingNotFound is returned when a setting key doesn't exist.
	ErrSettingNotFound = fmt.Errorf("setting %w", apperrors.ErrNotFound)

	// ErrObjectNotFound is returned when an object URL is unknown.
	ErrObjectNotFound = fmt.Errorf("object %w", apperrors.ErrNotFound)
)
