package dedup

import (
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

// Log key constants for deduplication.
const (
	logKeySkippedID   = "skipped_id"
	logKeyDuplicateOf = "duplicate_of"
)

// DeduplicateBy keeps the first item per key and drops later ones.
// Items with an empty key are always kept.
func DeduplicateBy[T any](items []T, key func(T) string, id func(T) string, logger *zerolog.Logger) []T {
	if len(items) == 0 {
		return items
	}

	result := make([]T, 0, len(items))
	firstByKey := make(map[string]string, len(items))

	for _, item := range items {
		k := key(item)
		if k == "" {
			result = append(result, item)

			continue
		}

		if kept, ok := firstByKey[k]; ok {
			if logger != nil {
				logger.Debug().
					Str(logKeySkippedID, id(item)).
					Str(logKeyDuplicateOf, kept).
					Msg("Skipping duplicate")
			}

			continue
		}

		firstByKey[k] = id(item)
		result = append(result, item)
	}

	return result
}

// DeduplicateGroups drops groups whose message set repeats an earlier group.
func DeduplicateGroups(groups []domain.MessageGroup, logger *zerolog.Logger) []domain.MessageGroup {
	return DeduplicateBy(groups,
		func(g domain.MessageGroup) string { return g.Fingerprint() },
		func(g domain.MessageGroup) string { return g.ID },
		logger)
}
