package mcp

import (
	"time"

	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/telemetry"
)

// Tool names.
const (
	ToolEnsembleSearch = "ensemble_search"
	ToolAdaptiveSearch = "adaptive_search"
	ToolIndexStatus    = "index_status"
)

// EnsembleSearchInput defines the input schema for the ensemble_search tool.
// Omitted weights fall back to the configured pair.
type EnsembleSearchInput struct {
	Query          string   `json:"query" jsonschema:"the search query to execute"`
	K              int      `json:"k,omitempty" jsonschema:"results requested from each retriever, default 5"`
	DenseWeight    *float64 `json:"dense_weight,omitempty" jsonschema:"weight of the embedding retriever, default 0.6"`
	SparseWeight   *float64 `json:"sparse_weight,omitempty" jsonschema:"weight of the BM25 retriever, default 0.4"`
	ConversationID string   `json:"conversation_id,omitempty" jsonschema:"caller conversation, logged with the query"`
}

// AdaptiveSearchInput defines the input schema for the adaptive_search tool.
type AdaptiveSearchInput struct {
	Query          string `json:"query" jsonschema:"the search query to execute"`
	K              int    `json:"k,omitempty" jsonschema:"results requested from each retriever, default 5"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"caller conversation, logged with the query"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// SearchOutput is the fused result of one search.
type SearchOutput struct {
	Documents      []DocumentOutput `json:"documents" jsonschema:"fused documents, best first"`
	Scores         []float64        `json:"scores" jsonschema:"fused RRF score of each document"`
	Method         string           `json:"method"`
	Weights        WeightsOutput    `json:"weights"`
	ProcessingTime float64          `json:"processing_time" jsonschema:"seconds spent retrieving and fusing"`
	TotalResults   int              `json:"total_results"`

	// Set by adaptive_search only.
	AutoOptimized bool   `json:"auto_optimized,omitempty"`
	QueryType     string `json:"query_type,omitempty" jsonschema:"code or semantic"`
}

// DocumentOutput is one fused document. Score is the score the contributing
// retriever reported, not the fused score.
type DocumentOutput struct {
	ID          string         `json:"id"`
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
	Score       float64        `json:"score"`
	Source      string         `json:"source" jsonschema:"dense or sparse"`
}

// WeightsOutput is the weight pair a search used.
type WeightsOutput struct {
	Dense  float64 `json:"dense"`
	Sparse float64 `json:"sparse"`
}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Index      IndexStats     `json:"index"`
	Embeddings EmbeddingInfo  `json:"embeddings"`
	Queries    *QueryActivity `json:"queries,omitempty"`
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	RootPath         string `json:"root_path"`
	PersistDirectory string `json:"persist_directory"`
	TotalChunks      int    `json:"total_chunks"`
	Vectors          int    `json:"vectors"`
	IndexedAt        string `json:"indexed_at,omitempty"`
	SparseAvailable  bool   `json:"sparse_available"`
	Consistent       bool   `json:"consistent"`
}

// EmbeddingInfo describes the embedder the server queries with.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	IndexModel string `json:"index_model" jsonschema:"model recorded when the index was built"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status" jsonschema:"ready or unavailable"`
}

// QueryActivity summarizes searches served since startup.
type QueryActivity struct {
	TotalQueries      int64                 `json:"total_queries"`
	FailedQueries     int64                 `json:"failed_queries"`
	ZeroResultQueries []string              `json:"zero_result_queries"`
	QueryTypes        map[string]int64      `json:"query_types"`
	TopTerms          []telemetry.TermCount `json:"top_terms"`
	Since             string                `json:"since"`
}

// toSearchOutput copies a fused result into the tool schema.
func toSearchOutput(res *search.SearchResult) SearchOutput {
	out := SearchOutput{
		Documents:      make([]DocumentOutput, 0, len(res.Documents)),
		Scores:         make([]float64, 0, len(res.Scores)),
		Method:         res.Method,
		Weights:        WeightsOutput{Dense: res.Weights.Dense, Sparse: res.Weights.Sparse},
		ProcessingTime: res.Elapsed.Seconds(),
		TotalResults:   res.TotalResults(),
	}
	for _, d := range res.Documents {
		meta := d.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		out.Documents = append(out.Documents, DocumentOutput{
			ID:          d.ID,
			PageContent: d.Content,
			Metadata:    meta,
			Score:       d.Score,
			Source:      string(d.Source),
		})
	}
	out.Scores = append(out.Scores, res.Scores...)
	return out
}

func toIndexStats(st *index.Stats) IndexStats {
	return IndexStats{
		RootPath:         st.Root,
		PersistDirectory: st.DataDir,
		TotalChunks:      st.TotalChunks,
		Vectors:          st.Vectors,
		IndexedAt:        st.IndexedAt,
		SparseAvailable:  st.SparseAvailable,
		Consistent:       st.Consistent,
	}
}

func toQueryActivity(snap telemetry.QueryStatsSnapshot) *QueryActivity {
	qa := &QueryActivity{
		TotalQueries:      snap.TotalQueries,
		FailedQueries:     snap.FailedQueries,
		ZeroResultQueries: snap.ZeroResultQueries,
		QueryTypes:        snap.QueryTypes,
		TopTerms:          snap.TopTerms,
		Since:             snap.Since.Format(time.RFC3339),
	}
	if qa.ZeroResultQueries == nil {
		qa.ZeroResultQueries = []string{}
	}
	if qa.QueryTypes == nil {
		qa.QueryTypes = map[string]int64{}
	}
	if qa.TopTerms == nil {
		qa.TopTerms = []telemetry.TermCount{}
	}
	return qa
}
