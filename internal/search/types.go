package search

import (
	"context"
	"fmt"

	cerrors "github.com/Aman-CERP/coderag/internal/errors"
	"github.com/Aman-CERP/coderag/internal/store"
)

// DefaultRRFConstant is the RRF smoothing constant K.
const DefaultRRFConstant = 60

// MethodEnsembleRRF is the method tag attached to every fused result.
const MethodEnsembleRRF = "ensemble_rrf"

// fallbackIDLength is how many characters of content identify a hit that
// has no explicit ID. Distinct documents sharing a prefix collide.
const fallbackIDLength = 50

// Source identifies which retriever produced a hit.
type Source string

const (
	SourceDense  Source = "dense"
	SourceSparse Source = "sparse"
)

// RawHit is one retriever's output unit. Fusion identifies documents by ID
// only; score and metadata never affect identity.
type RawHit struct {
	ID       string         `json:"id"`
	Content  string         `json:"page_content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
	Source   Source         `json:"source"`
}

// newHit builds a hit, deriving the ID from content when id is empty.
func newHit(id, content string, metadata map[string]any, score float64, source Source) RawHit {
	if id == "" {
		id = contentPrefix(content)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return RawHit{ID: id, Content: content, Metadata: metadata, Score: score, Source: source}
}

func contentPrefix(content string) string {
	r := []rune(content)
	if len(r) > fallbackIDLength {
		r = r[:fallbackIDLength]
	}
	return string(r)
}

// Retriever returns at most k hits for a query, best first.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]RawHit, error)
}

// SimilarityBackend is a vector similarity index. Calls may block and must be
// safe for concurrent reads.
type SimilarityBackend interface {
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]store.ScoredDocument, error)
}

var (
	// ErrNilDependency is returned when a required constructor argument is nil.
	ErrNilDependency = cerrors.New(cerrors.ErrCodeInternal, "required dependency is nil", nil)

	// ErrEmptyCorpus is returned by NewSparseRetriever for a corpus with no
	// documents. Callers omit the sparse retriever in that case.
	ErrEmptyCorpus = cerrors.New(cerrors.ErrCodeIndexMissing, "sparse retriever: corpus is empty", nil).
			WithSuggestion("run 'coderag index' to build the corpus")

	// ErrSparseUnavailable is returned by EnsembleRetrievalService.Search when
	// the service was built without a sparse retriever.
	ErrSparseUnavailable = cerrors.New(cerrors.ErrCodeSparseUnavailable, "sparse index unavailable", nil).
				WithSuggestion("index the repository, then restart the service")

	// ErrQueryEmpty is returned for blank query text.
	ErrQueryEmpty = cerrors.New(cerrors.ErrCodeQueryEmpty, "query text is empty", nil)

	// ErrInvalidK is returned for a non-positive result count.
	ErrInvalidK = cerrors.New(cerrors.ErrCodeInvalidQuery, "k must be positive", nil)
)

// RetrievalError tags a retriever failure with its source and query so a
// higher layer can log and retry the whole search.
type RetrievalError struct {
	Source Source
	Query  string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("%s retrieval failed for query %q: %v", e.Source, e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
