// Package store persists the indexed repository: the chunk corpus in SQLite
// and chunk embeddings in an HNSW graph. VectorBackend joins the two into the
// similarity search used by dense retrieval.
package store

import (
	"context"
	"fmt"
)

// State keys recorded by the indexer.
const (
	StateKeyEmbeddingModel     = "embedding_model"
	StateKeyEmbeddingDimension = "embedding_dimension"
	StateKeyIndexedAt          = "indexed_at"
	StateKeyRootPath           = "root_path"
)

// File names inside the data directory.
const (
	CorpusFileName = "corpus.db"
	VectorFileName = "vectors.hnsw"
)

// Document is one indexed chunk of a repository file.
type Document struct {
	ID         string // sha256(path + "\x00" + content), hex
	Path       string // relative to the repository root
	ChunkIndex int    // position of the chunk within its file
	Content    string
	Metadata   map[string]any // extra attributes, JSON-encoded at rest
}

// Meta returns a fresh metadata map including source and chunk.
func (d Document) Meta() map[string]any {
	m := make(map[string]any, len(d.Metadata)+2)
	for k, v := range d.Metadata {
		m[k] = v
	}
	if d.Path != "" {
		m["source"] = d.Path
		m["chunk"] = d.ChunkIndex
	}
	return m
}

// ScoredDocument pairs a document with a backend-defined similarity score.
type ScoredDocument struct {
	Document Document
	Score    float64
}

// VectorMatch is one nearest-neighbour hit.
type VectorMatch struct {
	ID       string
	Distance float32
	Score    float32 // similarity in [0,1], higher is closer
}

// VectorIndexConfig configures the HNSW graph.
type VectorIndexConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// DefaultVectorIndexConfig returns cosine settings for dims-sized vectors.
func DefaultVectorIndexConfig(dims int) VectorIndexConfig {
	return VectorIndexConfig{Dimensions: dims, Metric: "cos", M: 16, EfSearch: 64}
}

// VectorIndex stores embeddings by chunk ID.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]VectorMatch, error)
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch is returned when a vector does not match the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index has %d, got %d", e.Expected, e.Got)
}
