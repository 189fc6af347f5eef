package embeddings

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// CachedProvider wraps an embedding provider with an LRU cache keyed by text.
// Repeated user questions ("can you repeat that?") hit the cache instead of the API.
type CachedProvider struct {
	provider Provider
	cache    *lru.Cache[string, []float32]
	maxSize  int
}

var _ Provider = &CachedProvider{}

// NewCachedProvider creates a new cached wrapper around an embedding provider.
// maxSize determines how many embeddings to keep in cache (default 1000).
func NewCachedProvider(provider Provider, maxSize int) (*CachedProvider, error) {
	if maxSize <= 0 {
		maxSize = 1000
	}
	cache, err := lru.New[string, []float32](maxSize)
	if err != nil {
		return nil, errors.Wrap(err, "create embeddings cache")
	}
	return &CachedProvider{
		provider: provider,
		cache:    cache,
		maxSize:  maxSize,
	}, nil
}

// GenerateEmbedding returns cached embeddings if available, otherwise generates new ones
func (c *CachedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if embedding, ok := c.cache.Get(text); ok {
		return embedding, nil
	}

	embedding, err := c.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, embedding)
	return embedding, nil
}

// GenerateBatchEmbeddings only asks the wrapped provider for the texts that miss the cache.
func (c *CachedProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var (
		missTexts   []string
		missIndices []int
	)
	for i, text := range texts {
		if embedding, ok := c.cache.Get(text); ok {
			results[i] = embedding
			continue
		}
		missTexts = append(missTexts, text)
		missIndices = append(missIndices, i)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	generated, err := c.provider.GenerateBatchEmbeddings(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(generated) != len(missTexts) {
		return nil, errors.Errorf("provider returned %d embeddings for %d texts", len(generated), len(missTexts))
	}
	for j, idx := range missIndices {
		results[idx] = generated[j]
		c.cache.Add(missTexts[j], generated[j])
	}
	return results, nil
}

// GetModel delegates to the underlying provider
func (c *CachedProvider) GetModel() EmbeddingModel {
	return c.provider.GetModel()
}

// ClearCache removes all cached embeddings
func (c *CachedProvider) ClearCache() {
	c.cache.Purge()
}

// Size returns the current number of cached embeddings
func (c *CachedProvider) Size() int {
	return c.cache.Len()
}

func (c *CachedProvider) MaxSize() int {
	return c.maxSize
}
