package rag

import (
	"context"
	"maps"

	"github.com/pkg/errors"
)

// DefaultTopK is the number of passages retrieved for a single turn.
const DefaultTopK = 3

// ErrRetrieval wraps every failure returned by a Retriever.
var ErrRetrieval = errors.New("retrieval failed")

// Document is a passage returned by a Retriever. Documents are ordered by relevance,
// index 0 being the most relevant one.
type Document struct {
	Content string
	// Score is nil when the backend does not report one.
	Score    *float32
	Metadata map[string]string
}

// Retriever searches the knowledge base for passages relevant to query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string, k int) ([]Document, error)

func (f RetrieverFunc) Search(ctx context.Context, query string, k int) ([]Document, error) {
	return f(ctx, query, k)
}

type retrievalError struct {
	backend string
	err     error
}

func (e *retrievalError) Error() string {
	return "retrieval failed (" + e.backend + "): " + e.err.Error()
}

func (e *retrievalError) Unwrap() error { return e.err }

func (e *retrievalError) Is(target error) bool { return target == ErrRetrieval }

// wrapRetrieval tags err so that errors.Is(err, ErrRetrieval) holds while keeping the cause.
func wrapRetrieval(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &retrievalError{backend: backend, err: err}
}

// cloneMetadata never returns nil so callers can add keys to the copy.
func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	return maps.Clone(src)
}
