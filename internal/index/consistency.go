package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/coderag/internal/store"
)

// InconsistencyType categorizes a mismatch between the corpus and the
// vector index.
type InconsistencyType int

const (
	// InconsistencyMissingVector is a corpus document without a vector.
	InconsistencyMissingVector InconsistencyType = iota
	// InconsistencyOrphanVectors counts vectors with no corpus document.
	InconsistencyOrphanVectors
	// InconsistencyModelMismatch means the index was built by another embedder.
	InconsistencyModelMismatch
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyOrphanVectors:
		return "orphan_vectors"
	case InconsistencyModelMismatch:
		return "model_mismatch"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected issue.
type Inconsistency struct {
	Type    InconsistencyType
	ID      string // document ID, when the issue concerns one document
	Details string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	Documents       int
	Vectors         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether no issue was found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// VectorLookup is the part of the vector index the checker needs.
type VectorLookup interface {
	Contains(id string) bool
	Count() int
}

// CheckConsistency compares every corpus document against the vector index
// and the recorded embedding model. Both stores are written by the same
// build, so any issue means the build was interrupted or the files were
// edited by hand; a rebuild fixes it.
func CheckConsistency(ctx context.Context, corpus *store.CorpusStore, vectors VectorLookup, model string) (*CheckResult, error) {
	start := time.Now()

	docs, err := corpus.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	res := &CheckResult{Documents: len(docs), Vectors: vectors.Count()}
	matched := 0
	for _, d := range docs {
		if vectors.Contains(d.ID) {
			matched++
			continue
		}
		res.Inconsistencies = append(res.Inconsistencies, Inconsistency{
			Type:    InconsistencyMissingVector,
			ID:      d.ID,
			Details: fmt.Sprintf("%s chunk %d has no vector", d.Path, d.ChunkIndex),
		})
	}
	if orphans := res.Vectors - matched; orphans > 0 {
		res.Inconsistencies = append(res.Inconsistencies, Inconsistency{
			Type:    InconsistencyOrphanVectors,
			Details: fmt.Sprintf("%d vectors have no corpus document", orphans),
		})
	}

	recorded, err := corpus.GetState(ctx, store.StateKeyEmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("failed to read index state: %w", err)
	}
	if recorded != "" && model != "" && recorded != model {
		res.Inconsistencies = append(res.Inconsistencies, Inconsistency{
			Type:    InconsistencyModelMismatch,
			Details: fmt.Sprintf("index built with %s, current embedder is %s", recorded, model),
		})
	}

	res.Duration = time.Since(start)
	if !res.Consistent() {
		slog.Warn("index_inconsistent",
			slog.Int("documents", res.Documents),
			slog.Int("vectors", res.Vectors),
			slog.Int("issues", len(res.Inconsistencies)))
	}
	return res, nil
}
