package rag

import (
	"context"
	"strings"

	"github.com/go-go-golems/waldo/pkg/embeddings"
	"github.com/go-go-golems/waldo/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
)

// WeaviateConfig points at a Weaviate class holding the knowledge base. Objects carry a
// "content" property and optionally "source" and "question".
type WeaviateConfig struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Scheme string `mapstructure:"scheme" yaml:"scheme"`
	APIKey string `mapstructure:"api-key" yaml:"api-key"`
	Class  string `mapstructure:"class" yaml:"class"`
}

// WeaviateRetriever searches a Weaviate class with nearVector, embedding the query with
// the same provider used to build the index.
type WeaviateRetriever struct {
	client   *weaviate.Client
	class    string
	provider embeddings.Provider
}

var _ Retriever = &WeaviateRetriever{}

func NewWeaviateRetriever(cfg WeaviateConfig, provider embeddings.Provider) (*WeaviateRetriever, error) {
	if cfg.Host == "" {
		return nil, errors.New("weaviate host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Class == "" {
		cfg.Class = "WebMD"
	}
	if provider == nil {
		return nil, errors.New("weaviate retriever needs an embeddings provider")
	}

	wcfg := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, errors.Wrap(err, "create weaviate client")
	}

	return &WeaviateRetriever{
		client:   client,
		class:    cfg.Class,
		provider: provider,
	}, nil
}

func (w *WeaviateRetriever) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	vector, err := w.provider.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, wrapRetrieval("weaviate", errors.Wrap(err, "embed query"))
	}

	gql := w.client.GraphQL()
	nearVector := gql.NearVectorArgBuilder().WithVector(vector)
	resp, err := gql.Get().
		WithClassName(w.class).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "question"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
		).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, wrapRetrieval("weaviate", err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, wrapRetrieval("weaviate", errors.New(strings.Join(msgs, "; ")))
	}

	docs, err := parseWeaviateGet(resp.Data["Get"], w.class)
	if err != nil {
		return nil, wrapRetrieval("weaviate", err)
	}
	return docs, nil
}

// parseWeaviateGet turns the "Get" section of a GraphQL response into documents. Cosine
// distance is reported as score 1 - distance.
func parseWeaviateGet(get interface{}, class string) ([]Document, error) {
	byClass, ok := get.(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected weaviate response shape")
	}
	items, ok := byClass[class].([]interface{})
	if !ok {
		return []Document{}, nil
	}

	docs := make([]Document, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := obj["content"].(string)
		doc := Document{
			Content:  content,
			Metadata: map[string]string{},
		}
		for _, key := range []string{"source", "question"} {
			if v, ok := obj[key].(string); ok && v != "" {
				doc.Metadata[key] = v
			}
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				doc.Score = helpers.Ptr(float32(1 - distance))
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
