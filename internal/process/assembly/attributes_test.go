package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

func TestResolveCategory(t *testing.T) {
	cats := []domain.Category{
		{ID: "1", Slug: "dresses", Name: "Dresses"},
		{ID: "2", Slug: "outerwear", Name: "Coats and jackets"},
		{ID: "3", Slug: "misc", Name: "Other"},
	}

	tests := []struct {
		name        string
		id          string
		catName     string
		defaultSlug string
		want        string
	}{
		{name: "known id", id: "2", want: "2"},
		{name: "unknown id falls back to name", id: "99", catName: "coats and jackets", want: "2"},
		{name: "slug given as id", id: "dresses", want: "1"},
		{name: "slug given as name", catName: "OUTERWEAR", want: "2"},
		{name: "unknown uses default", id: "99", catName: "boats", defaultSlug: "misc", want: "3"},
		{name: "unknown default slug", catName: "boats", defaultSlug: "nope", want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveCategory(cats, tt.id, tt.catName, tt.defaultSlug))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: "black  silk\tdress", want: "Black Silk Dress"},
		{in: "ПАЛЬТО ЗИМНЕЕ", want: "Пальто Зимнее"},
		{in: "iPhone case", want: "iPhone case"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeName(tt.in))
		})
	}
}

func TestTextPatch_RejectsInvalidScalars(t *testing.T) {
	attrs := domain.TextAttributes{
		Price:    -5,
		Currency: "rubles",
		Gender:   "aliens",
		Season:   "monsoon",
	}

	patch := textPatch(attrs, domain.MessageGroup{}, nil)

	assert.True(t, patch.Price.IsUnset())
	assert.True(t, patch.Currency.IsUnset())
	assert.True(t, patch.Gender.IsUnset())
	assert.True(t, patch.Season.IsUnset())
	assert.True(t, patch.Description.IsUnset())
}

func TestTextPatch_AcceptsValidScalars(t *testing.T) {
	patch := textPatch(domain.TextAttributes{Price: 99.5, Currency: " usd ", Sizes: []string{"xl", "XL", "42"}}, domain.MessageGroup{}, nil)

	price, ok := patch.Price.Value()
	assert.True(t, ok)
	assert.InDelta(t, 99.5, price, 0.001)

	currency, _ := patch.Currency.Value()
	assert.Equal(t, "USD", currency)

	sizes, _ := patch.Sizes.Value()
	assert.Equal(t, []string{"XL", "42"}, sizes)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "products/p1/00-tg_42_7.jpg", objectKey("p1", 0, "tg:42/7", "image/jpeg"))
	assert.Equal(t, "products/p1/03-m.bin", objectKey("p1", 3, "m", "application/octet-stream"))
}
