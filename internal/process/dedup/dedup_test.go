package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports/mocks"
)

var errStore = errors.New("store down")

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func msg(id string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  "s1",
		Timestamp: baseTime,
		Kind:      domain.KindImage,
		MediaRef:  "tgfile:" + id,
	}
}

func group(id string, msgIDs ...string) domain.MessageGroup {
	g := domain.MessageGroup{ID: id, ChatID: "chat-1", SenderID: "s1", Source: domain.SourceTelegram}
	for _, m := range msgIDs {
		g.Messages = append(g.Messages, msg(m))
	}

	return g
}

type failingRepo struct {
	processedErr   error
	fingerprintErr error
}

func (r failingRepo) AnyProcessed(context.Context, []string) (bool, error) {
	return false, r.processedErr
}

func (r failingRepo) FingerprintExists(context.Context, string) (bool, error) {
	return false, r.fingerprintErr
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	tests := []struct {
		name    string
		setup   func(*mocks.CatalogStore)
		group   domain.MessageGroup
		wantErr error
	}{
		{
			name:  "fresh group passes",
			setup: func(*mocks.CatalogStore) {},
			group: group("g1", "a", "b"),
		},
		{
			name: "consumed message",
			setup: func(s *mocks.CatalogStore) {
				_, _ = s.MarkSkipped(ctx, "run-0", []string{"b"})
			},
			group:   group("g1", "a", "b"),
			wantErr: apperrors.ErrAlreadyConsumed,
		},
		{
			name: "fingerprint already has a product",
			setup: func(s *mocks.CatalogStore) {
				s.SeedProduct(domain.Product{ID: "p0", Fingerprint: domain.Fingerprint([]string{"b", "a"})})
			},
			group:   group("g1", "a", "b"),
			wantErr: apperrors.ErrDuplicateProduct,
		},
		{
			name: "subset fingerprint is not a duplicate",
			setup: func(s *mocks.CatalogStore) {
				s.SeedProduct(domain.Product{ID: "p0", Fingerprint: domain.Fingerprint([]string{"a"})})
			},
			group: group("g1", "a", "b"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewCatalogStore()
			store.AddMessages(msg("a"), msg("b"))
			tt.setup(store)

			err := NewGuard(store, &logger).Check(ctx, tt.group)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestGuard_CheckConsumedBeforeFingerprint(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewCatalogStore()
	store.AddMessages(msg("a"))
	store.SeedProduct(domain.Product{ID: "p0", Fingerprint: domain.Fingerprint([]string{"a"})})
	_, err := store.MarkSkipped(ctx, "run-0", []string{"a"})
	require.NoError(t, err)

	err = NewGuard(store, nil).Check(ctx, group("g1", "a"))
	require.ErrorIs(t, err, apperrors.ErrAlreadyConsumed)
	assert.NotErrorIs(t, err, apperrors.ErrDuplicateProduct)
}

func TestGuard_StoreErrors(t *testing.T) {
	ctx := context.Background()

	err := NewGuard(failingRepo{processedErr: errStore}, nil).Check(ctx, group("g1", "a"))
	require.ErrorIs(t, err, errStore)

	err = NewGuard(failingRepo{fingerprintErr: errStore}, nil).Check(ctx, group("g1", "a"))
	require.ErrorIs(t, err, errStore)
}

func TestCleaner_KeepsEarliestAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewCatalogStore()
	fp := domain.Fingerprint([]string{"a", "b"})

	store.SeedProduct(domain.Product{ID: "late", Fingerprint: fp, CreatedAt: baseTime.Add(time.Hour)})
	store.SeedProduct(domain.Product{ID: "early", Fingerprint: fp, CreatedAt: baseTime})
	store.SeedProduct(domain.Product{ID: "other", Fingerprint: domain.Fingerprint([]string{"c"}), CreatedAt: baseTime})

	cleaner := NewCleaner(store, nil)

	removed, err := cleaner.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, removed)

	remaining := make([]string, 0)
	for _, p := range store.Products() {
		remaining = append(remaining, p.ID)
	}

	assert.ElementsMatch(t, []string{"early", "other"}, remaining)

	removed, err = cleaner.Cleanup(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, store.Products(), 2)
}
