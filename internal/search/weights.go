package search

import (
	"fmt"
	"math"

	cerrors "github.com/Aman-CERP/coderag/internal/errors"
)

// weightSumTolerance is how far Dense+Sparse may drift from 1.0.
const weightSumTolerance = 0.001

// ErrInvalidWeights matches any weight pair rejected by NewRetrievalWeights.
var ErrInvalidWeights = cerrors.New(cerrors.ErrCodeInvalidWeights, "invalid retrieval weights", nil)

// RetrievalWeights is the per-retriever multiplier used during fusion.
// Dense and Sparse are non-negative and sum to 1.0 within 0.001.
type RetrievalWeights struct {
	Dense  float64 `json:"dense"`
	Sparse float64 `json:"sparse"`
}

// NewRetrievalWeights validates and returns a weight pair.
func NewRetrievalWeights(dense, sparse float64) (RetrievalWeights, error) {
	w := RetrievalWeights{Dense: dense, Sparse: sparse}
	if err := w.Validate(); err != nil {
		return RetrievalWeights{}, err
	}
	return w, nil
}

// Validate checks the non-negative and sum-to-one invariants.
func (w RetrievalWeights) Validate() error {
	if math.IsNaN(w.Dense) || math.IsNaN(w.Sparse) || w.Dense < 0 || w.Sparse < 0 {
		return cerrors.New(cerrors.ErrCodeInvalidWeights,
			fmt.Sprintf("weights must be non-negative (dense=%g, sparse=%g)", w.Dense, w.Sparse), nil).
			WithSuggestion("use values between 0 and 1")
	}
	if sum := w.Dense + w.Sparse; math.Abs(sum-1.0) > weightSumTolerance {
		return cerrors.New(cerrors.ErrCodeInvalidWeights,
			fmt.Sprintf("weights must sum to 1.0 (dense=%g + sparse=%g = %g)", w.Dense, w.Sparse, sum), nil).
			WithSuggestion("e.g. dense 0.6, sparse 0.4")
	}
	return nil
}

// DefaultRetrievalWeights is the unbiased pair exposed to tool callers.
func DefaultRetrievalWeights() RetrievalWeights {
	return RetrievalWeights{Dense: 0.6, Sparse: 0.4}
}

// CodeWeights favors exact identifier matches.
func CodeWeights() RetrievalWeights {
	return RetrievalWeights{Dense: 0.4, Sparse: 0.6}
}

// SemanticWeights favors embedding similarity.
func SemanticWeights() RetrievalWeights {
	return RetrievalWeights{Dense: 0.8, Sparse: 0.2}
}

// ResolveWeights returns explicit unchanged after validation, or the preset
// for the query's heuristic classification when explicit is nil.
func ResolveWeights(q SearchQuery, explicit *RetrievalWeights) (RetrievalWeights, error) {
	if explicit != nil {
		if err := explicit.Validate(); err != nil {
			return RetrievalWeights{}, err
		}
		return *explicit, nil
	}
	if q.IsCodeQuery() {
		return CodeWeights(), nil
	}
	return SemanticWeights(), nil
}
