package store

import (
	"context"
	"fmt"
)

// QueryEmbedder turns query text into a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentLookup resolves chunk IDs to documents.
type DocumentLookup interface {
	Get(ctx context.Context, ids []string) (map[string]Document, error)
}

// VectorBackend answers similarity searches by embedding the query, querying
// the vector index and resolving hits through the corpus. Safe for
// concurrent use when its collaborators are.
type VectorBackend struct {
	embedder QueryEmbedder
	vectors  VectorIndex
	docs     DocumentLookup
}

// NewVectorBackend wires the three collaborators together.
func NewVectorBackend(embedder QueryEmbedder, vectors VectorIndex, docs DocumentLookup) (*VectorBackend, error) {
	switch {
	case embedder == nil:
		return nil, fmt.Errorf("vector backend: embedder is required")
	case vectors == nil:
		return nil, fmt.Errorf("vector backend: vector index is required")
	case docs == nil:
		return nil, fmt.Errorf("vector backend: document lookup is required")
	}
	return &VectorBackend{embedder: embedder, vectors: vectors, docs: docs}, nil
}

// SimilaritySearchWithScore returns up to k documents, most similar first.
// Vector hits whose ID is missing from the corpus are skipped.
func (b *VectorBackend) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := b.vectors.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(matches) == 0 {
		return []ScoredDocument{}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	found, err := b.docs.Get(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve documents: %w", err)
	}

	out := make([]ScoredDocument, 0, len(matches))
	for _, m := range matches {
		d, ok := found[m.ID]
		if !ok {
			continue
		}
		out = append(out, ScoredDocument{Document: d, Score: float64(m.Score)})
	}
	return out, nil
}
