package embeddings

import (
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

const (
	TypeOpenAI = "openai"
	TypeOllama = "ollama"
)

// Settings selects and configures an embedding provider.
type Settings struct {
	Type       string `mapstructure:"type" yaml:"type"`
	Engine     string `mapstructure:"engine" yaml:"engine"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
	APIKey     string `mapstructure:"api-key" yaml:"api-key"`
	BaseURL    string `mapstructure:"base-url" yaml:"base-url"`
	// CacheSize > 0 wraps the provider in a CachedProvider.
	CacheSize int `mapstructure:"cache-size" yaml:"cache-size"`
}

// NewProvider builds the provider described by s.
func NewProvider(s Settings) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch s.Type {
	case TypeOpenAI, "":
		if s.APIKey == "" {
			return nil, errors.New("missing openai api key for embeddings")
		}
		p = NewOpenAIProvider(s.APIKey, s.BaseURL, openai.EmbeddingModel(s.Engine), s.Dimensions)
	case TypeOllama:
		p, err = NewOllamaProvider(s.Engine, s.Dimensions)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unsupported embeddings type: %s", s.Type)
	}

	if s.CacheSize > 0 {
		return NewCachedProvider(p, s.CacheSize)
	}
	return p, nil
}
