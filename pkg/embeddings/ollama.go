package embeddings

import (
	"context"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
)

type OllamaProvider struct {
	client     *api.Client
	model      string
	dimensions int
}

var _ Provider = &OllamaProvider{}

// NewOllamaProvider talks to the Ollama server named by OLLAMA_HOST
// (http://127.0.0.1:11434 when unset).
func NewOllamaProvider(model string, dimensions int) (*OllamaProvider, error) {
	if model == "" {
		model = "all-minilm"
	}
	if dimensions <= 0 {
		dimensions = 384 // all-minilm
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "ollama client from environment")
	}

	return &OllamaProvider{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}, nil
}

func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  p.model,
		Prompt: text,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ollama embeddings")
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("no embedding data received from Ollama")
	}

	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// GenerateBatchEmbeddings fans out single requests since the embeddings endpoint takes one
// prompt at a time.
func (p *OllamaProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return ParallelGenerateBatchEmbeddings(ctx, p, texts, 4)
}

func (p *OllamaProvider) GetModel() EmbeddingModel {
	return EmbeddingModel{
		Name:       p.model,
		Dimensions: p.dimensions,
	}
}
