package rag

import (
	"context"
	"strconv"

	"github.com/go-go-golems/waldo/pkg/embeddings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// IndexedDocument is a passage ready to be stored in the index.
type IndexedDocument struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// DocumentStore is the write side of the knowledge base index.
type DocumentStore interface {
	Add(ctx context.Context, docs []IndexedDocument, concurrency int) error
	Count() int
}

// Indexer embeds records in batches and writes them to a DocumentStore. This is the
// offline build step; the agent only reads the resulting index.
type Indexer struct {
	store       DocumentStore
	provider    embeddings.Provider
	batchSize   int
	concurrency int
}

type IndexerOption func(*Indexer)

func WithBatchSize(n int) IndexerOption {
	return func(i *Indexer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

func WithConcurrency(n int) IndexerOption {
	return func(i *Indexer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

func NewIndexer(store DocumentStore, provider embeddings.Provider, options ...IndexerOption) *Indexer {
	ret := &Indexer{
		store:       store,
		provider:    provider,
		batchSize:   64,
		concurrency: 4,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Build indexes records and returns the number of passages written. Record positions are
// stored under the "index" metadata key; records without an ID get "doc-<index>".
func (i *Indexer) Build(ctx context.Context, records []Record) (int, error) {
	written := 0
	for start := 0; start < len(records); start += i.batchSize {
		end := start + i.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for j, r := range batch {
			texts[j] = r.Content
		}
		vectors, err := i.provider.GenerateBatchEmbeddings(ctx, texts)
		if err != nil {
			return written, errors.Wrapf(err, "embed records %d-%d", start, end-1)
		}
		if len(vectors) != len(batch) {
			return written, errors.Errorf("embedded %d of %d records", len(vectors), len(batch))
		}

		docs := make([]IndexedDocument, len(batch))
		for j, r := range batch {
			idx := start + j
			docs[j] = toIndexedDocument(idx, r, vectors[j])
		}
		if err := i.store.Add(ctx, docs, i.concurrency); err != nil {
			return written, err
		}
		written += len(docs)

		log.Debug().
			Int("written", written).
			Int("total", len(records)).
			Msg("Indexed batch")
	}
	return written, nil
}

func toIndexedDocument(idx int, r Record, vector []float32) IndexedDocument {
	meta := cloneMetadata(r.Metadata)
	meta["index"] = strconv.Itoa(idx)
	if r.Source != "" {
		meta["source"] = r.Source
	}
	if r.Question != "" {
		meta["question"] = r.Question
	}
	id := r.ID
	if id == "" {
		id = "doc-" + strconv.Itoa(idx)
	}
	return IndexedDocument{
		ID:        id,
		Content:   r.Content,
		Embedding: vector,
		Metadata:  meta,
	}
}
