package htmlutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 5, utf16Len("hello"))
	assert.Equal(t, 2, utf16Len("🚫"))
	assert.Equal(t, 3, utf16Len("ok✅"))
}

func TestUTF16Slice(t *testing.T) {
	assert.Equal(t, "ab", utf16Slice("abc", 2))
	assert.Equal(t, "a", utf16Slice("a🚫", 2))
	assert.Equal(t, "a🚫", utf16Slice("a🚫", 3))
}

func TestSplitHTML_ShortTextUnchanged(t *testing.T) {
	text := "<b>Runs</b>\n• <code>abc</code>"
	assert.Equal(t, []string{text}, SplitHTML(text, 100))
}

func TestSplitHTML_SplitsAtLines(t *testing.T) {
	text := "line one\nline two\nline three"

	parts := SplitHTML(text, 18)
	require.Len(t, parts, 2)
	assert.Equal(t, "line one\nline two", parts[0])
	assert.Equal(t, "line three", parts[1])
}

func TestSplitHTML_ReopensTags(t *testing.T) {
	text := "<i>first line\nsecond line</i>"

	parts := SplitHTML(text, 15)
	require.Len(t, parts, 2)
	assert.Equal(t, "<i>first line\n</i>", parts[0])
	assert.Equal(t, "<i>second line</i>", parts[1])
}

func TestSplitHTML_CutsLongLine(t *testing.T) {
	text := "<code>" + strings.Repeat("x", 25) + "</code>"

	parts := SplitHTML(text, 10)
	require.Len(t, parts, 3)

	for _, p := range parts {
		assert.LessOrEqual(t, utf16Len(StripTags(p)), 10)
		assert.True(t, strings.HasPrefix(p, "<code>"), p)
		assert.True(t, strings.HasSuffix(p, "</code>"), p)
	}

	joined := ""
	for _, p := range parts {
		joined += StripTags(p)
	}

	assert.Equal(t, strings.Repeat("x", 25), joined)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Run 42 done", StripTags("<b>Run</b> <code>42</code> done"))
}
