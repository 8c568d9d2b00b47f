package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_OrderAndDuplicatesIgnored(t *testing.T) {
	a := Fingerprint([]string{"m3", "m1", "m2"})
	b := Fingerprint([]string{"m1", "m2", "m3", "m1"})
	c := Fingerprint([]string{"m1", "m2"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestNewDraft_SortsSourceIDs(t *testing.T) {
	g := MessageGroup{
		ID:     "g1",
		ChatID: "chat",
		Messages: []ChatMessage{
			{ID: "b"}, {ID: "a"}, {ID: "c"},
		},
	}

	p := NewDraft("p1", g)

	assert.Equal(t, []string{"a", "b", "c"}, p.SourceMessageIDs)
	assert.Equal(t, g.Fingerprint(), p.Fingerprint)
	assert.False(t, p.IsActive)
	assert.ElementsMatch(t, []string{FieldPrice, FieldSizes, FieldImages}, p.MissingRequired())
}

func TestProductPatch_UnsetNullValue(t *testing.T) {
	prod := Product{Name: "old", Material: "cotton", Price: 100}

	first := ProductPatch{Name: Set("Dress"), Price: Set(250.0)}
	second := ProductPatch{Material: Null[string](), Price: Set(300.0)}

	merged := first.Merge(second)
	merged.ApplyTo(&prod)

	assert.Equal(t, "Dress", prod.Name)
	assert.Empty(t, prod.Material)
	assert.InDelta(t, 300.0, prod.Price, 0.001)

	v, ok := merged.Name.Value()
	require.True(t, ok)
	assert.Equal(t, "Dress", v)
	assert.True(t, merged.Material.IsNull())
	assert.True(t, merged.Season.IsUnset())
	assert.False(t, merged.IsEmpty())
	assert.True(t, ProductPatch{}.IsEmpty())
}

func TestExclusionKey(t *testing.T) {
	assert.Equal(t, "manual", ExclusionKey(TriggerManual, SourceTelegram))
	assert.Equal(t, "manual", ExclusionKey(TriggerBackfill, SourceWhatsApp))
	assert.Equal(t, "cron:telegram", ExclusionKey(TriggerCron, SourceTelegram))
	assert.Equal(t, "cron:all", ExclusionKey(TriggerCron, ""))
}

func TestChatMessage_TextNotions(t *testing.T) {
	emptyText := ChatMessage{Kind: KindText, Text: "   "}
	captioned := ChatMessage{Kind: KindImage, MediaRef: "tgfile:x", Text: "180₽"}

	assert.True(t, emptyText.IsTextTyped())
	assert.False(t, emptyText.HasDescriptiveText())
	assert.False(t, captioned.IsTextTyped())
	assert.True(t, captioned.HasDescriptiveText())
	assert.True(t, captioned.IsImageEligible())
	assert.False(t, ChatMessage{Kind: KindImage}.IsImageEligible())
	assert.False(t, ChatMessage{Kind: KindOther, MediaRef: "tgfile:y"}.IsImageEligible())
	assert.True(t, ChatMessage{Kind: KindText, MediaRef: "tgfile:z"}.IsImageEligible())
}
