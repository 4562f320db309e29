package search

import (
	"context"
	"fmt"
	"log/slog"
)

// DenseRetriever adapts a SimilarityBackend to the Retriever contract.
// Hits keep the backend's order; fusion only looks at rank.
type DenseRetriever struct {
	backend SimilarityBackend
}

// NewDenseRetriever wraps backend. The backend is shared, not owned.
func NewDenseRetriever(backend SimilarityBackend) (*DenseRetriever, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: similarity backend is required", ErrNilDependency)
	}
	return &DenseRetriever{backend: backend}, nil
}

type denseOutcome struct {
	hits []RawHit
	err  error
}

// Search runs the backend call on its own goroutine so a blocking backend
// never holds the caller past ctx. No retries.
func (d *DenseRetriever) Search(ctx context.Context, query string, k int) ([]RawHit, error) {
	if k <= 0 {
		return []RawHit{}, nil
	}
	done := make(chan denseOutcome, 1)

	go func() {
		docs, err := d.backend.SimilaritySearchWithScore(ctx, query, k)
		if err != nil {
			done <- denseOutcome{err: err}
			return
		}
		hits := make([]RawHit, 0, min(len(docs), k))
		for _, sd := range docs {
			if len(hits) == k {
				break
			}
			hits = append(hits, newHit(sd.Document.ID, sd.Document.Content, sd.Document.Meta(), sd.Score, SourceDense))
		}
		done <- denseOutcome{hits: hits}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		slog.Debug("dense_search_complete",
			slog.String("query", query),
			slog.Int("k", k),
			slog.Int("hits", len(out.hits)))
		return out.hits, nil
	}
}

var _ Retriever = (*DenseRetriever)(nil)
