package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// letterEmbed maps text to letter frequencies plus a bias so no vector is zero.
func letterEmbed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 27)
	v[26] = 0.1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v, nil
}

func TestChromemStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty collection returns no documents", func(t *testing.T) {
		store, err := NewChromemStore(StoreConfig{}, letterEmbed)
		require.NoError(t, err)

		docs, err := store.Search(ctx, "anything", 3)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("search ranks by similarity and clamps k", func(t *testing.T) {
		store, err := NewChromemStore(StoreConfig{Collection: "test"}, letterEmbed)
		require.NoError(t, err)

		err = store.Add(ctx, []IndexedDocument{
			{ID: "a", Content: "aaaa aaaa", Metadata: map[string]string{"source": "x"}},
			{ID: "z", Content: "zzzz zzzz"},
		}, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, store.Count())

		docs, err := store.Search(ctx, "aaa", 5)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "aaaa aaaa", docs[0].Content)
		assert.Equal(t, "x", docs[0].Metadata["source"])
		require.NotNil(t, docs[0].Score)
		require.NotNil(t, docs[1].Score)
		assert.Greater(t, *docs[0].Score, *docs[1].Score)
	})

	t.Run("embedding failure is a retrieval error", func(t *testing.T) {
		calls := 0
		embed := func(ctx context.Context, text string) ([]float32, error) {
			calls++
			if calls > 1 {
				return nil, assert.AnError
			}
			return letterEmbed(ctx, text)
		}
		store, err := NewChromemStore(StoreConfig{}, embed)
		require.NoError(t, err)
		require.NoError(t, store.Add(ctx, []IndexedDocument{{ID: "1", Content: "hello"}}, 1))

		_, err = store.Search(ctx, "hello", 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRetrieval)
	})

	t.Run("missing embedding function", func(t *testing.T) {
		_, err := NewChromemStore(StoreConfig{}, nil)
		assert.Error(t, err)
	})
}
