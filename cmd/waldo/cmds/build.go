package cmds

import (
	"github.com/go-go-golems/waldo/pkg/config"
	"github.com/go-go-golems/waldo/pkg/embeddings"
	"github.com/go-go-golems/waldo/pkg/rag"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

// buildRetriever opens the knowledge base selected by the settings. The embedding provider
// must be the one the index was built with.
func buildRetriever(s *config.Settings, provider embeddings.Provider) (rag.Retriever, error) {
	switch s.Retrieval.Backend {
	case config.BackendWeaviate:
		return rag.NewWeaviateRetriever(s.Retrieval.Weaviate, provider)
	case config.BackendChromem, "":
		return rag.NewChromemStore(s.Retrieval.Store, embeddings.AsEmbeddingFunc(provider))
	default:
		return nil, errors.Errorf("unknown retrieval backend %q", s.Retrieval.Backend)
	}
}
