package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports/mocks"
	"github.com/lueurxax/supplier-catalog/internal/platform/settings"
	"github.com/lueurxax/supplier-catalog/internal/process/assembly"
	"github.com/lueurxax/supplier-catalog/internal/process/coordinator"
	"github.com/lueurxax/supplier-catalog/internal/process/dedup"
)

type harness struct {
	catalog  *mocks.CatalogStore
	runs     *mocks.RunStore
	enricher *mocks.Enricher
	fetcher  *mocks.MediaFetcher
	settings *mocks.SettingsStore
	runner   *Runner
	base     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := zerolog.Nop()
	h := &harness{
		catalog:  mocks.NewCatalogStore(),
		runs:     mocks.NewRunStore(),
		enricher: mocks.NewEnricher(),
		fetcher:  mocks.NewMediaFetcher(),
		settings: mocks.NewSettingsStore(),
		base:     time.Now().Add(-time.Hour).Truncate(time.Second),
	}

	h.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
		return domain.TextAttributes{Name: "Dress", Price: 1500, Currency: "RUB", Sizes: []string{"M"}}, nil
	}

	coord := coordinator.New(h.runs, coordinator.Config{StuckTimeout: time.Hour}, &logger)
	asm := assembly.New(assembly.Config{}, h.catalog, h.enricher, h.fetcher, mocks.NewObjectStore(), &logger)

	h.runner = New(Config{
		Defaults: settings.Thresholds{
			PageSize:        100,
			Lookback:        48 * time.Hour,
			ContinuationGap: 5 * time.Minute,
			GroupingMode:    "rules",
			TextWindow:      time.Minute,
			MaxTypeChanges:  1,
			MinConfidence:   0.5,
		},
		MaxLLMMessages: 60,
	}, coord, h.catalog, h.settings, h.enricher, dedup.NewGuard(h.catalog, &logger), asm, &logger)

	return h
}

func (h *harness) image(id, sender string, sec int) domain.ChatMessage {
	m := domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  sender,
		Timestamp: h.base.Add(time.Duration(sec) * time.Second),
		Kind:      domain.KindImage,
		MediaRef:  "tgfile:" + id,
	}
	h.fetcher.Set(m.MediaRef, []byte("jpeg"))

	return m
}

func (h *harness) text(id, sender string, sec int) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  sender,
		Timestamp: h.base.Add(time.Duration(sec) * time.Second),
		Kind:      domain.KindText,
		Text:      "dress " + id,
	}
}

func (h *harness) processed(t *testing.T, id string) bool {
	t.Helper()

	m, ok := h.catalog.Message(id)
	require.True(t, ok)

	return m.Processed
}

func manual() Params {
	return Params{Trigger: domain.TriggerManual}
}

func TestRun_OneGroupOfFour(t *testing.T) {
	h := newHarness(t)
	h.catalog.AddMessages(h.image("a", "s1", 0), h.image("b", "s1", 5), h.text("c", "s1", 8), h.text("d", "s1", 40))

	report, err := h.runner.Run(context.Background(), manual())
	require.NoError(t, err)

	assert.Equal(t, domain.RunCounters{MessagesRead: 4, GroupsFormed: 1, ProductsCreated: 1}, report.Counters)
	assert.Equal(t, 1, report.Batches)

	products := h.catalog.Products()
	require.Len(t, products, 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, products[0].SourceMessageIDs)
	assert.True(t, products[0].IsActive)

	runs := h.runs.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, report.Counters, runs[0].Counters)

	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, report.Run.ID, h.catalog.ProcessedBy(id))
	}
}

func TestRun_ImageWithLateTextStaysUnprocessed(t *testing.T) {
	h := newHarness(t)
	h.catalog.AddMessages(h.image("a", "s1", 0), h.text("b", "s1", 70))

	report, err := h.runner.Run(context.Background(), manual())
	require.NoError(t, err)

	assert.Zero(t, report.Counters.GroupsFormed)
	assert.Equal(t, 1, report.Counters.MessagesSkipped)
	assert.False(t, h.processed(t, "a"))
	assert.True(t, h.processed(t, "b"))
	assert.Empty(t, h.catalog.Products())
}

func TestRun_ZeroPriceReleasesMessages(t *testing.T) {
	h := newHarness(t)
	h.catalog.AddMessages(h.image("a", "s1", 0), h.text("b", "s1", 8))

	h.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
		return domain.TextAttributes{Price: 0, Sizes: []string{"M"}}, nil
	}

	report, err := h.runner.Run(context.Background(), manual())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counters.GroupsFormed)
	assert.Equal(t, 1, report.Counters.ProductsDeleted)
	assert.Zero(t, report.Counters.ProductsCreated)
	assert.False(t, h.processed(t, "a"))
	assert.False(t, h.processed(t, "b"))

	_, _, imageCalls := h.enricher.Calls()
	assert.Zero(t, imageCalls)
}

func TestRun_RejectedRunTouchesNothing(t *testing.T) {
	h := newHarness(t)
	h.catalog.AddMessages(h.image("a", "s1", 0), h.text("b", "s1", 8))
	h.runs.Seed(domain.RunRecord{
		ID:           "cron-1",
		Status:       domain.RunStatusRunning,
		StartedAt:    time.Now(),
		TriggeredBy:  domain.TriggerCron,
		Source:       domain.SourceTelegram,
		ExclusionKey: domain.ExclusionKey(domain.TriggerCron, domain.SourceTelegram),
	})

	_, err := h.runner.Run(context.Background(), manual())
	require.ErrorIs(t, err, apperrors.ErrRunRejected)

	var rejection *coordinator.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "cron-1", rejection.ConflictRunID)

	assert.False(t, h.processed(t, "a"))
	assert.False(t, h.processed(t, "b"))
	assert.Len(t, h.runs.Runs(), 1)
}

func TestRun_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{name: "missing trigger", params: Params{}},
		{name: "unknown trigger", params: Params{Trigger: "hourly"}},
		{name: "unknown source", params: Params{Trigger: domain.TriggerManual, Source: "signal"}},
		{name: "page too large", params: Params{Trigger: domain.TriggerManual, PageSize: 5000}},
		{name: "negative lookback", params: Params{Trigger: domain.TriggerManual, LookbackHours: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.runner.Run(context.Background(), tt.params)
			require.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Empty(t, h.runs.Runs())
		})
	}
}

func TestRun_PagesDoNotOverlap(t *testing.T) {
	h := newHarness(t)
	h.catalog.AddMessages(
		h.image("a1", "s1", 0), h.text("a2", "s1", 8),
		h.image("b1", "s2", 600), h.text("b2", "s2", 612),
		h.image("c1", "s3", 1200), h.text("c2", "s3", 1225),
	)

	report, err := h.runner.Run(context.Background(), Params{Trigger: domain.TriggerManual, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 6, report.Counters.MessagesRead)
	assert.Equal(t, 3, report.Counters.ProductsCreated)

	seen := make(map[string]string)

	for _, p := range h.catalog.Products() {
		for _, id := range p.SourceMessageIDs {
			prev, dup := seen[id]
			assert.False(t, dup, "message %s in %s and %s", id, prev, p.ID)
			seen[id] = p.ID
		}
	}

	assert.Len(t, seen, 6)
}

func TestRun_SettingsPageSizeKeepsSequenceWhole(t *testing.T) {
	h := newHarness(t)
	h.settings.Set(settings.SettingBatchPageSize, 1)
	h.catalog.AddMessages(h.image("a", "s1", 0), h.image("b", "s1", 5), h.text("c", "s1", 8), h.text("d", "s1", 40))

	report, err := h.runner.Run(context.Background(), manual())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Batches)
	assert.Equal(t, 4, report.Counters.MessagesRead)
	require.Len(t, h.catalog.Products(), 1)
	assert.Len(t, h.catalog.Products()[0].SourceMessageIDs, 4)
}

func TestRun_CancellationFinalizesAsInterrupted(t *testing.T) {
	h := newHarness(t)
	h.catalog.AddMessages(
		h.image("a1", "s1", 0), h.text("a2", "s1", 8),
		h.image("b1", "s2", 20), h.text("b2", "s2", 28),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
		cancel()

		return domain.TextAttributes{Price: 10, Sizes: []string{"S"}}, nil
	}

	report, err := h.runner.Run(ctx, manual())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Counters.ProductsCreated)

	runs := h.runs.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunStatusFailed, runs[0].Status)
	assert.Equal(t, coordinator.ErrMsgInterrupted, runs[0].Error)
	assert.Equal(t, 1, runs[0].Counters.ProductsCreated)

	assert.False(t, h.processed(t, "b1"))
	assert.False(t, h.processed(t, "b2"))
}

func TestRun_DuplicateGroupIsConsumed(t *testing.T) {
	h := newHarness(t)
	h.catalog.AddMessages(h.image("a", "s1", 0), h.text("b", "s1", 8))
	h.catalog.SeedProduct(domain.Product{ID: "old", Fingerprint: domain.Fingerprint([]string{"a", "b"}), IsActive: true})

	report, err := h.runner.Run(context.Background(), manual())
	require.NoError(t, err)

	assert.Zero(t, report.Counters.ProductsCreated)
	assert.Equal(t, 2, report.Counters.MessagesSkipped)
	assert.True(t, h.processed(t, "a"))
	assert.Len(t, h.catalog.Products(), 1)
}

func TestRun_NothingToDo(t *testing.T) {
	h := newHarness(t)

	report, err := h.runner.Run(context.Background(), Params{Trigger: domain.TriggerCron, Source: domain.SourceWhatsApp})
	require.NoError(t, err)

	assert.Zero(t, report.Batches)
	assert.Equal(t, domain.RunCounters{}, report.Counters)
	assert.Equal(t, domain.RunStatusCompleted, h.runs.Runs()[0].Status)
}
