package search

import (
	"encoding/json"
	"time"
)

// SearchResult is the fused output of one ensemble search. Documents and
// Scores are parallel and sorted by descending fused score. It is built once
// per query and not modified afterwards.
type SearchResult struct {
	Documents []RawHit
	Scores    []float64
	Method    string
	Weights   RetrievalWeights
	Elapsed   time.Duration
}

// TotalResults is the number of fused documents.
func (r *SearchResult) TotalResults() int {
	return len(r.Documents)
}

// ToMap projects the result onto the transport shape used by tool responses.
func (r *SearchResult) ToMap() map[string]any {
	docs := make([]map[string]any, len(r.Documents))
	for i, d := range r.Documents {
		docs[i] = map[string]any{
			"id":           d.ID,
			"page_content": d.Content,
			"metadata":     d.Metadata,
			"score":        d.Score,
			"source":       string(d.Source),
		}
	}
	scores := r.Scores
	if scores == nil {
		scores = []float64{}
	}
	return map[string]any{
		"documents": docs,
		"scores":    scores,
		"method":    r.Method,
		"weights": map[string]float64{
			"dense":  r.Weights.Dense,
			"sparse": r.Weights.Sparse,
		},
		"processing_time": r.Elapsed.Seconds(),
		"total_results":   len(r.Documents),
	}
}

// MarshalJSON encodes the ToMap projection.
func (r *SearchResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}
