package embeddings

import "context"

// EmbeddingModel contains metadata about the embedding model
type EmbeddingModel struct {
	Name       string
	Dimensions int
}

// Provider defines the interface for generating embeddings
type Provider interface {
	// GenerateEmbedding creates an embedding vector for the given text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateBatchEmbeddings creates embedding vectors for multiple texts at once
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// GetModel returns information about the embedding model being used
	GetModel() EmbeddingModel
}

// EmbeddingFunc is the shape vector stores expect for on-demand embedding.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// AsEmbeddingFunc exposes p as an EmbeddingFunc.
func AsEmbeddingFunc(p Provider) EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return p.GenerateEmbedding(ctx, text)
	}
}
