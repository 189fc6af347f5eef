package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeaviateGet(t *testing.T) {
	get := map[string]interface{}{
		"WebMD": []interface{}{
			map[string]interface{}{
				"content":  "Fever is common with flu.",
				"source":   "webmd",
				"question": "flu",
				"_additional": map[string]interface{}{
					"distance": 0.25,
				},
			},
			map[string]interface{}{
				"content": "No distance reported.",
			},
			"garbage",
		},
	}

	docs, err := parseWeaviateGet(get, "WebMD")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	require.NotNil(t, docs[0].Score)
	assert.InDelta(t, 0.75, *docs[0].Score, 1e-6)
	assert.Equal(t, "webmd", docs[0].Metadata["source"])
	assert.Equal(t, "flu", docs[0].Metadata["question"])

	assert.Nil(t, docs[1].Score)
	assert.Equal(t, "No distance reported.", docs[1].Content)
}

func TestParseWeaviateGetShapes(t *testing.T) {
	_, err := parseWeaviateGet("nope", "WebMD")
	assert.Error(t, err)

	docs, err := parseWeaviateGet(map[string]interface{}{}, "WebMD")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestNewWeaviateRetrieverValidation(t *testing.T) {
	_, err := NewWeaviateRetriever(WeaviateConfig{}, &fakeProvider{})
	assert.Error(t, err)

	_, err = NewWeaviateRetriever(WeaviateConfig{Host: "localhost:8080"}, nil)
	assert.Error(t, err)
}
