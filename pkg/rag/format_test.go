package rag

import (
	"strings"
	"testing"

	"github.com/go-go-golems/waldo/pkg/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatContext(t *testing.T) {
	t.Run("empty documents produce header and footer only", func(t *testing.T) {
		out := FormatContext(nil, 0)
		assert.Equal(t, ContextHeader+"\n"+ContextFooter+"\n", out)
	})

	t.Run("numbered entries with score and metadata", func(t *testing.T) {
		docs := []Document{
			{
				Content:  "Drink plenty of fluids.",
				Score:    helpers.Ptr(float32(0.91234)),
				Metadata: map[string]string{"source": "webmd", "question": "flu"},
			},
			{Content: "Rest helps recovery."},
		}
		out := FormatContext(docs, 500)

		expected := ContextHeader + "\n" +
			"[1] (score=0.9123) [source=webmd, q=flu]\n" +
			"Drink plenty of fluids.\n\n" +
			"[2] (score=n/a)\n" +
			"Rest helps recovery.\n\n" +
			ContextFooter + "\n"
		assert.Equal(t, expected, out)
	})

	t.Run("irrelevant metadata is not printed", func(t *testing.T) {
		docs := []Document{{Content: "x", Metadata: map[string]string{"index": "4"}}}
		out := FormatContext(docs, 500)
		assert.Contains(t, out, "[1] (score=n/a)\nx\n")
	})

	t.Run("long passages are truncated", func(t *testing.T) {
		content := strings.Repeat("word ", 200)
		out := FormatContext([]Document{{Content: content}}, 50)
		lines := strings.Split(out, "\n")
		require.True(t, len(lines) > 2)
		snippet := lines[2]
		assert.True(t, strings.HasSuffix(snippet, Ellipsis))
		assert.LessOrEqual(t, len([]rune(snippet)), 50+len(Ellipsis))
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		limit    int
		expected string
	}{
		{name: "short content untouched", content: "hello world", limit: 20, expected: "hello world"},
		{name: "surrounding whitespace trimmed", content: "  hello  ", limit: 20, expected: "hello"},
		{name: "exact length untouched", content: "hello", limit: 5, expected: "hello"},
		{name: "cut at word boundary", content: "hello world again", limit: 8, expected: "hello..."},
		{name: "limit falls on space", content: "hello world again", limit: 11, expected: "hello world..."},
		{name: "single long word hard cut", content: "abcdefghijkl", limit: 5, expected: "abcde..."},
		{name: "multibyte runes counted once", content: "héllo wörld ünïcode", limit: 11, expected: "héllo wörld..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truncate(tt.content, tt.limit))
		})
	}
}
