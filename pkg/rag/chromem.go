package rag

import (
	"context"

	"github.com/go-go-golems/waldo/pkg/embeddings"
	"github.com/go-go-golems/waldo/pkg/helpers"
	"github.com/pkg/errors"
	chromem "github.com/philippgille/chromem-go"
)

const DefaultCollection = "webmd"

// StoreConfig describes where the knowledge base index lives.
type StoreConfig struct {
	// PersistPath is the directory of the persisted index. Empty keeps the index in memory.
	PersistPath string `mapstructure:"persist-path" yaml:"persist-path"`
	Collection  string `mapstructure:"collection" yaml:"collection"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ChromemStore is the knowledge base index backed by chromem-go. It is built once at
// startup and shared read-only by every turn.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

var _ Retriever = &ChromemStore{}

// NewChromemStore opens (or creates) the persisted collection. embed computes query
// embeddings and must match the model used when the index was built.
func NewChromemStore(cfg StoreConfig, embed embeddings.EmbeddingFunc) (*ChromemStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if embed == nil {
		return nil, errors.New("chromem store needs an embedding function")
	}

	var db *chromem.DB
	if cfg.PersistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, errors.Wrapf(err, "open persistent index at %s", cfg.PersistPath)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, errors.Wrapf(err, "open collection %s", cfg.Collection)
	}

	return &ChromemStore{db: db, collection: collection}, nil
}

// Search returns up to k passages ordered by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	count := s.collection.Count()
	if count == 0 {
		return []Document{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, wrapRetrieval("chromem", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, Document{
			Content:  r.Content,
			Score:    helpers.Ptr(r.Similarity),
			Metadata: cloneMetadata(r.Metadata),
		})
	}
	return docs, nil
}

// Add stores passages in the collection. Passages without an embedding are embedded by
// the collection's embedding function.
func (s *ChromemStore) Add(ctx context.Context, docs []IndexedDocument, concurrency int) error {
	if len(docs) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	cdocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		cdocs = append(cdocs, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Embedding: d.Embedding,
			Metadata:  cloneMetadata(d.Metadata),
		})
	}
	if err := s.collection.AddDocuments(ctx, cdocs, concurrency); err != nil {
		return errors.Wrap(err, "add documents to index")
	}
	return nil
}

// Count returns the number of indexed passages.
func (s *ChromemStore) Count() int {
	return s.collection.Count()
}
