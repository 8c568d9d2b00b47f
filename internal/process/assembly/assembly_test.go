package assembly

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports/mocks"
)

const testRunID = "run-1"

var (
	baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	errBoom  = errors.New("boom")
)

type fixture struct {
	store    *mocks.CatalogStore
	enricher *mocks.Enricher
	fetcher  *mocks.MediaFetcher
	objects  *mocks.ObjectStore
	asm      *Assembler
	cats     []domain.Category
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	f := &fixture{
		store:    mocks.NewCatalogStore(),
		enricher: mocks.NewEnricher(),
		fetcher:  mocks.NewMediaFetcher(),
		objects:  mocks.NewObjectStore(),
		cats: []domain.Category{
			{ID: "cat-dress", Slug: "dresses", Name: "Dresses", IsActive: true},
			{ID: "cat-coat", Slug: "coats", Name: "Coats", IsActive: true},
			{ID: "cat-misc", Slug: "misc", Name: "Other", IsActive: true},
		},
	}

	f.asm = New(cfg, f.store, f.enricher, f.fetcher, f.objects, &logger)

	seq := 0
	f.asm.newID = func() string {
		seq++

		return fmt.Sprintf("prod-%d", seq)
	}

	return f
}

func image(id string, sec int) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  "s1",
		Timestamp: baseTime.Add(time.Duration(sec) * time.Second),
		Kind:      domain.KindImage,
		MediaRef:  "tgfile:" + id,
	}
}

func text(id string, sec int, body string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  "s1",
		Timestamp: baseTime.Add(time.Duration(sec) * time.Second),
		Kind:      domain.KindText,
		Text:      body,
	}
}

// seedGroup stores the messages, registers image payloads and returns the group.
func (f *fixture) seedGroup(msgs ...domain.ChatMessage) domain.MessageGroup {
	f.store.AddMessages(msgs...)

	for _, m := range msgs {
		if m.MediaRef != "" {
			f.fetcher.Set(m.MediaRef, []byte("jpeg-"+m.ID))
		}
	}

	return domain.MessageGroup{
		ID:         "g-1",
		ChatID:     "chat-1",
		SenderID:   "s1",
		Source:     domain.SourceTelegram,
		Messages:   msgs,
		Provenance: domain.ProvenanceRules,
		Confidence: 1,
	}
}

func (f *fixture) assertReleased(t *testing.T, group domain.MessageGroup) {
	t.Helper()

	for _, id := range group.MessageIDs() {
		m, ok := f.store.Message(id)
		require.True(t, ok)
		assert.False(t, m.Processed, "message %s should be released", id)
		assert.Empty(t, m.AssignedGroupID)
	}

	assert.Empty(t, f.store.Products())
}

func completeText(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
	return domain.TextAttributes{
		Name:         "black silk dress",
		Price:        1200,
		Currency:     "rub",
		Sizes:        []string{"s", "m", " m "},
		Material:     "silk",
		Gender:       "women",
		Season:       "summer",
		CategoryName: "dresses",
	}, nil
}

func TestAssemble_HappyPath(t *testing.T) {
	f := newFixture(t, Config{ImageConcurrency: 2})
	group := f.seedGroup(image("a", 0), image("b", 5), text("c", 8, "Black silk dress 1200"))

	f.enricher.AnalyzeTextFn = completeText
	f.enricher.AnalyzeImageFn = func(_ context.Context, req domain.ImageAnalysisRequest) (domain.ImageAttributes, error) {
		if string(req.Image) == "jpeg-a" {
			return domain.ImageAttributes{Color: "Black"}, nil
		}

		return domain.ImageAttributes{}, errBoom
	}

	out, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.NoError(t, err)
	assert.Equal(t, "prod-1", out.ProductID)
	assert.Equal(t, 2, out.Images)
	assert.Zero(t, out.Failed)

	products := f.store.Products()
	require.Len(t, products, 1)

	p := products[0]
	assert.True(t, p.IsActive)
	assert.Equal(t, "Black Silk Dress", p.Name)
	assert.InDelta(t, 1200.0, p.Price, 0.001)
	assert.Equal(t, "RUB", p.Currency)
	assert.Equal(t, []string{"S", "M"}, p.Sizes)
	assert.Equal(t, domain.GenderWomen, p.Gender)
	assert.Equal(t, domain.SeasonSummer, p.Season)
	assert.Equal(t, "cat-dress", p.CategoryID)
	assert.Equal(t, group.Fingerprint(), p.Fingerprint)

	require.Len(t, p.Images, 2)
	assert.Equal(t, "a", p.Images[0].SourceMessageID)
	assert.Equal(t, "black", p.Images[0].Color)
	assert.Equal(t, 0, p.Images[0].Position)
	assert.Equal(t, "b", p.Images[1].SourceMessageID)
	assert.Empty(t, p.Images[1].Color)
	assert.Equal(t, 1, p.Images[1].Position)
	assert.Equal(t, 2, f.objects.Len())

	for _, id := range group.MessageIDs() {
		m, _ := f.store.Message(id)
		assert.True(t, m.Processed)
		assert.Equal(t, testRunID, f.store.ProcessedBy(id))
	}
}

func TestAssemble_ZeroPriceCompensatesBeforeMedia(t *testing.T) {
	f := newFixture(t, Config{})
	group := f.seedGroup(image("a", 0), text("b", 8, "nice coat, sizes M"))

	f.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
		return domain.TextAttributes{Name: "Coat", Price: 0, Sizes: []string{"M"}}, nil
	}

	_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.ErrorIs(t, err, apperrors.ErrMissingRequiredFields)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageText, stageErr.Stage)

	_, textCalls, imageCalls := f.enricher.Calls()
	assert.Equal(t, 1, textCalls)
	assert.Zero(t, imageCalls)
	assert.Zero(t, f.objects.Len())
	assert.Equal(t, []string{"prod-1"}, f.store.DeletedProducts())
	f.assertReleased(t, group)
}

func TestAssemble_MissingSizesCompensates(t *testing.T) {
	f := newFixture(t, Config{})
	group := f.seedGroup(image("a", 0), text("b", 8, "coat 5000"))

	f.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
		return domain.TextAttributes{Price: 5000, Sizes: []string{" ", ""}}, nil
	}

	_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.ErrorIs(t, err, apperrors.ErrMissingRequiredFields)
	f.assertReleased(t, group)
}

func TestAssemble_CompensationCompleteness(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture)
		wantErr   error
		wantStage string
	}{
		{
			name: "text enrichment error",
			setup: func(f *fixture) {
				f.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
					return domain.TextAttributes{}, errBoom
				}
			},
			wantErr:   errBoom,
			wantStage: StageText,
		},
		{
			name: "text attributes not saved",
			setup: func(f *fixture) {
				f.enricher.AnalyzeTextFn = completeText
				f.store.UpdateProductFn = func(context.Context, string, domain.ProductPatch) error { return errBoom }
			},
			wantErr:   errBoom,
			wantStage: StageText,
		},
		{
			name: "every download fails",
			setup: func(f *fixture) {
				f.enricher.AnalyzeTextFn = completeText
				f.fetcher.Fail("tgfile:a", errBoom)
				f.fetcher.Fail("tgfile:b", errBoom)
			},
			wantErr:   apperrors.ErrMissingRequiredFields,
			wantStage: StageActivation,
		},
		{
			name: "object store rejects every image",
			setup: func(f *fixture) {
				f.enricher.AnalyzeTextFn = completeText
				f.objects.PutFn = func(context.Context, string, []byte, string) (string, error) { return "", errBoom }
			},
			wantErr:   apperrors.ErrMissingRequiredFields,
			wantStage: StageActivation,
		},
		{
			name: "active duplicate appears before activation",
			setup: func(f *fixture) {
				f.enricher.AnalyzeTextFn = completeText
				f.store.SeedProduct(domain.Product{
					ID:          "existing",
					Fingerprint: domain.Fingerprint([]string{"a", "b", "c"}),
					IsActive:    true,
				})
			},
			wantErr:   apperrors.ErrDuplicateProduct,
			wantStage: StageActivation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			group := f.seedGroup(image("a", 0), image("b", 5), text("c", 8, "dress"))
			tt.setup(f)

			_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
			require.ErrorIs(t, err, tt.wantErr)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.wantStage, stageErr.Stage)

			assert.Contains(t, f.store.DeletedProducts(), "prod-1")

			for _, p := range f.store.Products() {
				assert.NotEqual(t, "prod-1", p.ID)
			}

			for _, id := range group.MessageIDs() {
				m, _ := f.store.Message(id)
				assert.False(t, m.Processed, "message %s should be released", id)
			}

			assert.Zero(t, f.objects.Len(), "stored images should be removed")
		})
	}
}

func TestAssemble_UnattachedImageIsRemoved(t *testing.T) {
	f := newFixture(t, Config{})
	group := f.seedGroup(image("a", 0), image("b", 5), text("c", 8, "dress"))
	f.enricher.AnalyzeTextFn = completeText
	f.store.AddImageFn = func(_ context.Context, img domain.ProductImage) (domain.ProductImage, error) {
		if img.SourceMessageID == "b" {
			return domain.ProductImage{}, errBoom
		}

		return img, nil
	}

	out, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Images)
	assert.Equal(t, 1, f.objects.Len())
}

func TestAssemble_PartialMediaFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Config{})
	group := f.seedGroup(image("a", 0), image("b", 5), text("c", 8, "dress"))

	f.enricher.AnalyzeTextFn = completeText
	f.fetcher.Fail("tgfile:a", errBoom)

	out, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Images)
	assert.Equal(t, 1, out.Failed)

	p := f.store.Products()[0]
	require.Len(t, p.Images, 1)
	assert.Equal(t, "b", p.Images[0].SourceMessageID)
	assert.Equal(t, 0, p.Images[0].Position)
}

func TestAssemble_AlreadyConsumed(t *testing.T) {
	f := newFixture(t, Config{})
	group := f.seedGroup(image("a", 0), text("b", 8, "dress"))

	_, err := f.store.MarkSkipped(context.Background(), "other-run", []string{"b"})
	require.NoError(t, err)

	_, err = f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.ErrorIs(t, err, apperrors.ErrAlreadyConsumed)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDraft, stageErr.Stage)

	assert.Empty(t, f.store.Products())
	assert.Empty(t, f.store.DeletedProducts())
	assert.Equal(t, "other-run", f.store.ProcessedBy("b"))
	assert.Empty(t, f.store.ProcessedBy("a"))
}

func TestAssemble_InvalidGroup(t *testing.T) {
	f := newFixture(t, Config{})
	group := f.seedGroup(image("a", 0), image("b", 3))

	_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.ErrorIs(t, err, apperrors.ErrInvalidGroup)

	_, textCalls, _ := f.enricher.Calls()
	assert.Zero(t, textCalls)
}

func TestAssemble_CategoryFromImageThenDefault(t *testing.T) {
	t.Run("image fills missing category", func(t *testing.T) {
		f := newFixture(t, Config{DefaultCategorySlug: "misc"})
		group := f.seedGroup(image("a", 0), text("b", 8, "coat"))

		f.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
			return domain.TextAttributes{Price: 10, Sizes: []string{"L"}, CategoryID: "bogus"}, nil
		}
		f.enricher.AnalyzeImageFn = func(context.Context, domain.ImageAnalysisRequest) (domain.ImageAttributes, error) {
			return domain.ImageAttributes{CategoryID: "cat-coat", Season: "winter"}, nil
		}

		_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
		require.NoError(t, err)

		p := f.store.Products()[0]
		assert.Equal(t, "cat-coat", p.CategoryID)
		assert.Equal(t, domain.SeasonWinter, p.Season)
	})

	t.Run("default slug when nothing resolves", func(t *testing.T) {
		f := newFixture(t, Config{DefaultCategorySlug: "misc"})
		group := f.seedGroup(image("a", 0), text("b", 8, "thing"))

		f.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
			return domain.TextAttributes{Price: 10, Sizes: []string{"L"}, CategoryName: "spaceships"}, nil
		}

		_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
		require.NoError(t, err)
		assert.Equal(t, "cat-misc", f.store.Products()[0].CategoryID)
	})

	t.Run("no default leaves category empty", func(t *testing.T) {
		f := newFixture(t, Config{})
		group := f.seedGroup(image("a", 0), text("b", 8, "thing"))

		f.enricher.AnalyzeTextFn = func(context.Context, domain.TextAnalysisRequest) (domain.TextAttributes, error) {
			return domain.TextAttributes{Price: 10, Sizes: []string{"L"}, CategoryID: "unknown"}, nil
		}

		_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
		require.NoError(t, err)
		assert.Empty(t, f.store.Products()[0].CategoryID)
	})
}

func TestAssemble_TextRequestCarriesGroupContext(t *testing.T) {
	f := newFixture(t, Config{})
	group := f.seedGroup(image("a", 0), text("b", 8, "  red coat  "), text("c", 20, "sizes S M"))
	group.Context = "winter coat"

	var got domain.TextAnalysisRequest

	f.enricher.AnalyzeTextFn = func(_ context.Context, req domain.TextAnalysisRequest) (domain.TextAttributes, error) {
		got = req

		return domain.TextAttributes{Price: 10, Sizes: []string{"S"}}, nil
	}

	_, err := f.asm.Assemble(context.Background(), testRunID, group, f.cats)
	require.NoError(t, err)
	assert.Equal(t, "red coat\nsizes S M", got.Text)
	assert.Equal(t, "winter coat", got.Context)
	assert.Len(t, got.Categories, 3)

	p := f.store.Products()[0]
	assert.Equal(t, "red coat\nsizes S M", p.Description)
}
