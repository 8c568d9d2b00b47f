package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "", SanitizeUTF8(""))
	assert.Equal(t, "платье", SanitizeUTF8("платье"))
	assert.Equal(t, "ab", SanitizeUTF8("a\xffb"))
	assert.Equal(t, "ab", SanitizeUTF8("a\x00b"))
}

func TestSourceFilter(t *testing.T) {
	assert.Equal(t, "all", sourceFilter(""))
	assert.Equal(t, "all", sourceFilter(domain.SourceAll))
	assert.Equal(t, "whatsapp", sourceFilter(domain.SourceWhatsApp))
}

func TestUUIDRoundTrip(t *testing.T) {
	id := uuid.NewString()

	assert.Equal(t, id, fromUUID(toUUID(id)))
	assert.False(t, toUUID("not-a-uuid").Valid)
	assert.Equal(t, "", fromUUID(pgtype.UUID{}))
}

func TestBuildProductUpdate(t *testing.T) {
	id := uuid.NewString()
	patch := domain.ProductPatch{
		Name:       domain.Set("Dress"),
		Material:   domain.Null[string](),
		Price:      domain.Set(250.0),
		CategoryID: domain.Null[string](),
	}

	query, args := buildProductUpdate(id, patch)

	assert.Equal(t,
		"UPDATE products SET name = $1, price = $2, material = $3, category_id = $4, updated_at = now() WHERE id = $5",
		query)
	require.Len(t, args, 5)
	assert.Equal(t, "Dress", args[0])
	assert.InDelta(t, 250.0, args[1], 0.001)
	assert.Equal(t, "", args[2])
	assert.Equal(t, pgtype.UUID{}, args[3])
	assert.Equal(t, toUUID(id), args[4])
}
