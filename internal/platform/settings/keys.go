// Package settings reads runtime overrides of pipeline thresholds from the
// settings table. Missing or malformed values fall back to the env config.
package settings

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

// Setting keys.
const (
	SettingBatchPageSize          = "batch_page_size"
	SettingBatchLookback          = "batch_lookback"
	SettingBatchContinuationGap   = "batch_continuation_gap"
	SettingGroupingMode           = "grouping_mode"
	SettingGroupingTextWindow     = "grouping_text_window"
	SettingGroupingMaxTypeChanges = "grouping_max_type_changes"
	SettingGroupingMinConfidence  = "grouping_min_confidence"
	SettingDefaultCategorySlug    = "default_category_slug"
)

// Thresholds are the tunables a run reads once at start.
type Thresholds struct {
	PageSize            int
	Lookback            time.Duration
	ContinuationGap     time.Duration
	GroupingMode        string
	TextWindow          time.Duration
	MaxTypeChanges      int
	MinConfidence       float64
	DefaultCategorySlug string
}

// Load overlays stored settings on defaults. A nil reader returns defaults.
func Load(ctx context.Context, reader ports.SettingsReader, defaults Thresholds, logger *zerolog.Logger) Thresholds {
	if reader == nil {
		return defaults
	}

	l := loader{ctx: ctx, reader: reader, logger: logger}
	t := defaults

	l.positiveInt(SettingBatchPageSize, &t.PageSize)
	l.duration(SettingBatchLookback, &t.Lookback)
	l.duration(SettingBatchContinuationGap, &t.ContinuationGap)
	l.str(SettingGroupingMode, &t.GroupingMode)
	l.duration(SettingGroupingTextWindow, &t.TextWindow)
	l.nonNegativeInt(SettingGroupingMaxTypeChanges, &t.MaxTypeChanges)
	l.fraction(SettingGroupingMinConfidence, &t.MinConfidence)
	l.str(SettingDefaultCategorySlug, &t.DefaultCategorySlug)

	return t
}

type loader struct {
	ctx    context.Context
	reader ports.SettingsReader
	logger *zerolog.Logger
}

func (l loader) get(key string, target interface{}) bool {
	if err := l.reader.GetSetting(l.ctx, key, target); err != nil {
		if l.logger != nil {
			l.logger.Debug().Err(err).Str("key", key).Msg("could not get setting from DB")
		}

		return false
	}

	return true
}

func (l loader) str(key string, target *string) {
	var v string
	if l.get(key, &v) && v != "" {
		*target = v
	}
}

func (l loader) positiveInt(key string, target *int) {
	var v int
	if l.get(key, &v) && v > 0 {
		*target = v
	}
}

func (l loader) nonNegativeInt(key string, target *int) {
	var v int
	if l.get(key, &v) && v >= 0 {
		*target = v
	}
}

func (l loader) fraction(key string, target *float64) {
	var v float64
	if l.get(key, &v) && v >= 0 && v <= 1 {
		*target = v
	}
}

// duration accepts a Go duration string such as "90s" or "48h".
func (l loader) duration(key string, target *time.Duration) {
	var raw string
	if !l.get(key, &raw) {
		return
	}

	if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
		*target = parsed
	}
}
