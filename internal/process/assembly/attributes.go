package assembly

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

var validate = validator.New()

const (
	priceRule    = "gt=0,lt=100000000"
	currencyRule = "iso4217"
)

// textPatch converts untrusted text attributes into a product patch.
func textPatch(attrs domain.TextAttributes, group domain.MessageGroup, categories []domain.Category) domain.ProductPatch {
	var patch domain.ProductPatch

	if name := normalizeName(attrs.Name); name != "" {
		patch.Name = domain.Set(name)
	}

	description := strings.TrimSpace(attrs.Description)
	if description == "" {
		description = group.DescriptiveText()
	}

	if description != "" {
		patch.Description = domain.Set(description)
	}

	if validate.Var(attrs.Price, priceRule) == nil {
		patch.Price = domain.Set(attrs.Price)
	}

	if currency := strings.ToUpper(strings.TrimSpace(attrs.Currency)); validate.Var(currency, currencyRule) == nil {
		patch.Currency = domain.Set(currency)
	}

	if sizes := cleanSizes(attrs.Sizes); len(sizes) > 0 {
		patch.Sizes = domain.Set(sizes)
	}

	if material := strings.TrimSpace(attrs.Material); material != "" {
		patch.Material = domain.Set(material)
	}

	if g := domain.ParseGender(attrs.Gender); g != domain.GenderUnknown {
		patch.Gender = domain.Set(g)
	}

	if s := domain.ParseSeason(attrs.Season); s != domain.SeasonUnknown {
		patch.Season = domain.Set(s)
	}

	if id := ResolveCategory(categories, attrs.CategoryID, attrs.CategoryName, ""); id != "" {
		patch.CategoryID = domain.Set(id)
	}

	return patch
}

// ResolveCategory validates an adapter category against the active set:
// exact id, then slug or name match, then the default slug. It returns ""
// when nothing matches.
func ResolveCategory(categories []domain.Category, id, name, defaultSlug string) string {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)

	if id != "" {
		for _, c := range categories {
			if c.ID == id {
				return c.ID
			}
		}
	}

	for _, candidate := range []string{name, id} {
		if candidate == "" {
			continue
		}

		for _, c := range categories {
			if strings.EqualFold(c.Slug, candidate) || strings.EqualFold(c.Name, candidate) {
				return c.ID
			}
		}
	}

	if defaultSlug != "" {
		for _, c := range categories {
			if c.Slug == defaultSlug {
				return c.ID
			}
		}
	}

	return ""
}

// normalizeName collapses whitespace and title-cases names that arrive in a
// single case.
func normalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}

	hasUpper, hasLower := false, false

	for _, r := range name {
		hasUpper = hasUpper || unicode.IsUpper(r)
		hasLower = hasLower || unicode.IsLower(r)
	}

	if hasUpper && hasLower {
		return name
	}

	return cases.Title(language.Und).String(strings.ToLower(name))
}

func cleanSizes(sizes []string) []string {
	out := make([]string, 0, len(sizes))
	seen := make(map[string]struct{}, len(sizes))

	for _, s := range sizes {
		s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
		if s == "" {
			continue
		}

		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// enrichImages analyzes every stored image. Colors are written per image;
// category, gender and season only fill attributes text enrichment left empty,
// taking the first image that supplies them.
func (a *Assembler) enrichImages(ctx context.Context, logger zerolog.Logger, product *domain.Product, images []materialized, categories []domain.Category) {
	if len(images) == 0 {
		return
	}

	results := make([]*domain.ImageAttributes, len(images))
	description := strings.TrimSpace(product.Name + "\n" + product.Description)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.ImageConcurrency)

	for i, img := range images {
		g.Go(func() error {
			attrs, err := a.enricher.AnalyzeImage(gctx, domain.ImageAnalysisRequest{
				Image:       img.data,
				ContentType: img.contentType,
				Description: description,
				Categories:  categories,
			})
			if err != nil {
				logger.Warn().Err(err).Str(logKeyMsgID, img.SourceMessageID).Msg("image enrichment failed")

				return nil
			}

			results[i] = &attrs

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	var patch domain.ProductPatch

	for i, attrs := range results {
		if attrs == nil {
			continue
		}

		if color := strings.ToLower(strings.TrimSpace(attrs.Color)); color != "" {
			if err := a.store.UpdateImageColor(ctx, images[i].ID, color); err != nil {
				logger.Warn().Err(err).Str(logKeyMsgID, images[i].SourceMessageID).Msg("failed to save image color")
			} else {
				product.Images[i].Color = color
			}
		}

		patch = fillFromImage(patch, *product, *attrs, categories)
	}

	if patch.IsEmpty() {
		return
	}

	if err := a.store.UpdateProduct(ctx, product.ID, patch); err != nil {
		logger.Warn().Err(err).Msg("failed to save image attributes")

		return
	}

	patch.ApplyTo(product)
}

func fillFromImage(patch domain.ProductPatch, product domain.Product, attrs domain.ImageAttributes, categories []domain.Category) domain.ProductPatch {
	if product.CategoryID == "" && patch.CategoryID.IsUnset() {
		if id := ResolveCategory(categories, attrs.CategoryID, attrs.CategoryName, ""); id != "" {
			patch.CategoryID = domain.Set(id)
		}
	}

	if product.Gender == domain.GenderUnknown && patch.Gender.IsUnset() {
		if g := domain.ParseGender(attrs.Gender); g != domain.GenderUnknown {
			patch.Gender = domain.Set(g)
		}
	}

	if product.Season == domain.SeasonUnknown && patch.Season.IsUnset() {
		if s := domain.ParseSeason(attrs.Season); s != domain.SeasonUnknown {
			patch.Season = domain.Set(s)
		}
	}

	return patch
}

// applyDefaultCategory sets the configured default when neither text nor
// images resolved a category.
func (a *Assembler) applyDefaultCategory(ctx context.Context, logger zerolog.Logger, product *domain.Product, categories []domain.Category) {
	if product.CategoryID != "" || a.cfg.DefaultCategorySlug == "" {
		return
	}

	id := ResolveCategory(categories, "", "", a.cfg.DefaultCategorySlug)
	if id == "" {
		return
	}

	patch := domain.ProductPatch{CategoryID: domain.Set(id)}

	if err := a.store.UpdateProduct(ctx, product.ID, patch); err != nil {
		logger.Warn().Err(err).Msg("failed to save default category")

		return
	}

	patch.ApplyTo(product)
}
