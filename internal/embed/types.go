// Package embed turns text into vectors for the dense index. Embeddings are
// computed locally; no model server is contacted.
package embed

import (
	"context"
	"math"
)

const (
	// DefaultDimensions is the vector size of the static embedder.
	DefaultDimensions = 256

	// DefaultBatchSize is how many chunks the indexer embeds per call.
	DefaultBatchSize = 64
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the length of every vector this embedder produces.
	Dimensions() int

	// ModelName identifies the embedding scheme. Indexes built with one
	// model must not be queried with another.
	ModelName() string

	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector returns v scaled to unit length. Zero vectors are returned as is.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
