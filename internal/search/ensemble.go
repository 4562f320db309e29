package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// SearchEvent describes one finished ensemble search for observers.
type SearchEvent struct {
	Query        SearchQuery
	Classified   QueryType
	Weights      RetrievalWeights
	Adaptive     bool // weights were resolved from the query text
	Results      int
	Elapsed      time.Duration
	Err          error
	FailedSource Source
}

// Observer receives an event after every Search call, successful or not.
type Observer interface {
	ObserveSearch(ev SearchEvent)
}

// ServiceOption configures an EnsembleRetrievalService.
type ServiceOption func(*EnsembleRetrievalService)

// WithTimeout bounds each Search call. Zero means no deadline beyond the
// caller's context.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *EnsembleRetrievalService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithObserver attaches a search observer such as a metrics recorder.
func WithObserver(o Observer) ServiceOption {
	return func(s *EnsembleRetrievalService) {
		s.observer = o
	}
}

// WithRRFConstant overrides K.
func WithRRFConstant(k int) ServiceOption {
	return func(s *EnsembleRetrievalService) {
		s.fusion = NewRRFFusionWithK(k)
	}
}

// EnsembleRetrievalService runs the dense and sparse retrievers concurrently
// and fuses their hits with weighted RRF. Both retrievers are shared,
// read-only resources for the service's lifetime.
type EnsembleRetrievalService struct {
	dense    Retriever
	sparse   Retriever
	fusion   *RRFFusion
	timeout  time.Duration
	observer Observer
}

// NewEnsembleRetrievalService requires a dense retriever. sparse may be nil
// when no corpus has been indexed; Search then returns ErrSparseUnavailable.
func NewEnsembleRetrievalService(dense, sparse Retriever, opts ...ServiceOption) (*EnsembleRetrievalService, error) {
	if dense == nil {
		return nil, fmt.Errorf("%w: dense retriever is required", ErrNilDependency)
	}
	s := &EnsembleRetrievalService{
		dense:  dense,
		sparse: sparse,
		fusion: NewRRFFusion(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SparseAvailable reports whether the service can serve ensemble searches.
func (s *EnsembleRetrievalService) SparseAvailable() bool {
	return s.sparse != nil
}

// Search retrieves k hits from each retriever, then fuses them. weights nil
// selects a preset from the query text. Any retriever failure fails the whole
// call with a *RetrievalError; there is no single-retriever fallback. The
// fused list holds the union of both hit sets and is not cut back to k.
func (s *EnsembleRetrievalService) Search(ctx context.Context, q SearchQuery, k int, weights *RetrievalWeights) (*SearchResult, error) {
	start := time.Now()
	ev := SearchEvent{Query: q, Classified: q.Classify(), Adaptive: weights == nil}
	defer func() {
		ev.Elapsed = time.Since(start)
		if s.observer != nil {
			s.observer.ObserveSearch(ev)
		}
	}()

	res, err := s.search(ctx, q, k, weights, &ev)
	if err != nil {
		ev.Err = err
		var re *RetrievalError
		if errors.As(err, &re) {
			ev.FailedSource = re.Source
		}
		slog.Warn("ensemble_search_failed",
			slog.String("query", q.Text),
			slog.String("query_type", string(q.typeTag())),
			slog.String("conversation_id", q.ConversationID),
			slog.String("error", err.Error()))
		return nil, err
	}
	ev.Results = res.TotalResults()
	return res, nil
}

func (s *EnsembleRetrievalService) search(ctx context.Context, q SearchQuery, k int, weights *RetrievalWeights, ev *SearchEvent) (*SearchResult, error) {
	start := time.Now()

	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrQueryEmpty
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	w, err := ResolveWeights(q, weights)
	if err != nil {
		return nil, err
	}
	ev.Weights = w

	if s.sparse == nil {
		return nil, ErrSparseUnavailable
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var denseHits, sparseHits []RawHit
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := s.dense.Search(gctx, q.Text, k)
		if err != nil {
			return &RetrievalError{Source: SourceDense, Query: q.Text, Err: err}
		}
		denseHits = hits
		return nil
	})

	g.Go(func() error {
		hits, err := s.sparse.Search(gctx, q.Text, k)
		if err != nil {
			return &RetrievalError{Source: SourceSparse, Query: q.Text, Err: err}
		}
		sparseHits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := s.fusion.Fuse(denseHits, sparseHits, w)

	docs := make([]RawHit, len(fused))
	scores := make([]float64, len(fused))
	for i, fh := range fused {
		docs[i] = fh.Hit
		scores[i] = fh.Score
	}

	res := &SearchResult{
		Documents: docs,
		Scores:    scores,
		Method:    MethodEnsembleRRF,
		Weights:   w,
		Elapsed:   time.Since(start),
	}

	slog.Debug("ensemble_search_complete",
		slog.String("query", q.Text),
		slog.String("query_type", string(q.typeTag())),
		slog.String("classified", string(ev.Classified)),
		slog.Int("k", k),
		slog.Int("dense_hits", len(denseHits)),
		slog.Int("sparse_hits", len(sparseHits)),
		slog.Int("fused", len(docs)),
		slog.Float64("dense_weight", w.Dense),
		slog.Float64("sparse_weight", w.Sparse),
		slog.Duration("elapsed", res.Elapsed))

	return res, nil
}
