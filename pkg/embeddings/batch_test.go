package embeddings

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider embeds text as {len(text), 1, 2} and counts calls per text.
type mockProvider struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func newMockProvider() *mockProvider {
	return &mockProvider{calls: map[string]int{}}
}

func (m *mockProvider) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls[text]++
	m.mu.Unlock()
	if text == m.fail {
		return nil, errors.New("boom")
	}
	return []float32{float32(len(text)), 1.0, 2.0}, nil
}

func (m *mockProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return DefaultGenerateBatchEmbeddings(ctx, m, texts)
}

func (m *mockProvider) GetModel() EmbeddingModel {
	return EmbeddingModel{Name: "mock", Dimensions: 3}
}

func (m *mockProvider) callCount(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[text]
}

func TestBatchProcessing(t *testing.T) {
	t.Run("default sequential implementation", func(t *testing.T) {
		provider := newMockProvider()
		results, err := DefaultGenerateBatchEmbeddings(context.Background(), provider, []string{"one", "two", "three"})
		require.NoError(t, err)
		require.Equal(t, 3, len(results))

		assert.Equal(t, []float32{3.0, 1.0, 2.0}, results[0])
		assert.Equal(t, []float32{3.0, 1.0, 2.0}, results[1])
		assert.Equal(t, []float32{5.0, 1.0, 2.0}, results[2])
	})

	t.Run("parallel implementation keeps order", func(t *testing.T) {
		provider := newMockProvider()
		results, err := ParallelGenerateBatchEmbeddings(context.Background(), provider, []string{"one", "two", "three", "four", "five"}, 2)
		require.NoError(t, err)
		require.Equal(t, 5, len(results))

		assert.Equal(t, []float32{3.0, 1.0, 2.0}, results[0])
		assert.Equal(t, []float32{5.0, 1.0, 2.0}, results[2])
		assert.Equal(t, []float32{4.0, 1.0, 2.0}, results[3])
	})

	t.Run("parallel implementation surfaces errors", func(t *testing.T) {
		provider := newMockProvider()
		provider.fail = "two"
		_, err := ParallelGenerateBatchEmbeddings(context.Background(), provider, []string{"one", "two", "three"}, 2)
		require.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		provider := newMockProvider()

		results1, err := DefaultGenerateBatchEmbeddings(context.Background(), provider, []string{})
		require.NoError(t, err)
		assert.Equal(t, 0, len(results1))

		results2, err := ParallelGenerateBatchEmbeddings(context.Background(), provider, []string{}, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, len(results2))
	})
}

func TestCachedProvider(t *testing.T) {
	t.Run("single embeddings are cached", func(t *testing.T) {
		provider := newMockProvider()
		cached, err := NewCachedProvider(provider, 10)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			v, err := cached.GenerateEmbedding(context.Background(), "headache")
			require.NoError(t, err)
			assert.Equal(t, []float32{8.0, 1.0, 2.0}, v)
		}
		assert.Equal(t, 1, provider.callCount("headache"))
		assert.Equal(t, 1, cached.Size())

		cached.ClearCache()
		assert.Equal(t, 0, cached.Size())
	})

	t.Run("partial cache hit", func(t *testing.T) {
		provider := newMockProvider()
		cached, err := NewCachedProvider(provider, 100)
		require.NoError(t, err)

		_, err = cached.GenerateBatchEmbeddings(context.Background(), []string{"one", "two"})
		require.NoError(t, err)

		results, err := cached.GenerateBatchEmbeddings(context.Background(), []string{"one", "three", "two"})
		require.NoError(t, err)
		require.Equal(t, 3, len(results))

		assert.Equal(t, []float32{3.0, 1.0, 2.0}, results[0])
		assert.Equal(t, []float32{5.0, 1.0, 2.0}, results[1])
		assert.Equal(t, []float32{3.0, 1.0, 2.0}, results[2])
		assert.Equal(t, 1, provider.callCount("one"))
		assert.Equal(t, 3, cached.Size())
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		provider := newMockProvider()
		cached, err := NewCachedProvider(provider, 2)
		require.NoError(t, err)

		ctx := context.Background()
		_, _ = cached.GenerateEmbedding(ctx, "a")
		_, _ = cached.GenerateEmbedding(ctx, "b")
		_, _ = cached.GenerateEmbedding(ctx, "c")
		_, _ = cached.GenerateEmbedding(ctx, "a")

		assert.Equal(t, 2, provider.callCount("a"))
		assert.Equal(t, 2, cached.Size())
	})
}

func TestAsEmbeddingFunc(t *testing.T) {
	f := AsEmbeddingFunc(newMockProvider())
	v, err := f(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4.0, 1.0, 2.0}, v)
}
