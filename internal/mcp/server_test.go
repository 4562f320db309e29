package mcp

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/telemetry"
)

// fakeIndex records the last search and returns canned results.
type fakeIndex struct {
	mu       sync.Mutex
	calls    int
	lastText string
	lastK    int
	lastW    *search.RetrievalWeights
	lastConv string

	result   *search.SearchResult
	err      error
	stats    *index.Stats
	statsErr error
	embedder embed.Embedder
}

func (f *fakeIndex) Search(_ context.Context, text string, k int, w *search.RetrievalWeights, conv string) (*search.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText, f.lastK, f.lastW, f.lastConv = text, k, w, conv
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	var applied search.RetrievalWeights
	switch {
	case w != nil:
		applied = *w
	case search.NewSearchQuery(text).IsCodeQuery():
		applied = search.CodeWeights()
	default:
		applied = search.SemanticWeights()
	}
	return &search.SearchResult{
		Documents: []search.RawHit{
			{ID: "a", Content: "func parseConfig() {}", Metadata: map[string]any{"source": "config.go"}, Score: 0.9, Source: search.SourceDense},
			{ID: "b", Content: "README", Score: 3.2, Source: search.SourceSparse},
		},
		Scores:  []float64{0.0164, 0.0066},
		Method:  search.MethodEnsembleRRF,
		Weights: applied,
		Elapsed: 12 * time.Millisecond,
	}, nil
}

func (f *fakeIndex) Stats(context.Context) (*index.Stats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats != nil {
		return f.stats, nil
	}
	return &index.Stats{Root: "/repo", DataDir: "/repo/.coderag", TotalChunks: 2, Vectors: 2,
		EmbeddingModel: "static-hash-16", Dimensions: 16, SparseAvailable: true, Consistent: true}, nil
}

func (f *fakeIndex) Embedder() embed.Embedder { return f.embedder }

func newTestServer(t *testing.T, idx Index, stats *telemetry.QueryStats) *Server {
	t.Helper()
	s, err := NewServer(idx, config.NewConfig(), stats)
	require.NoError(t, err)
	return s
}

func callSearch(t *testing.T, s *Server, tool string, args map[string]any) *SearchOutput {
	t.Helper()
	out, err := s.CallTool(context.Background(), tool, args)
	require.NoError(t, err)
	res, ok := out.(*SearchOutput)
	require.True(t, ok, "unexpected output type %T", out)
	return res
}

func TestServer_New(t *testing.T) {
	_, err := NewServer(nil, config.NewConfig(), nil)
	assert.Error(t, err)

	s, err := NewServer(&fakeIndex{}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.MCPServer())
	assert.Equal(t, 0.6, s.config.Search.DenseWeight)
}

func TestServer_ListTools(t *testing.T) {
	s := newTestServer(t, &fakeIndex{}, nil)

	names := make([]string, 0, 3)
	for _, tool := range s.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	assert.Equal(t, []string{ToolEnsembleSearch, ToolAdaptiveSearch, ToolIndexStatus}, names)
}

func TestServer_CallTool_UnknownTool(t *testing.T) {
	s := newTestServer(t, &fakeIndex{}, nil)

	_, err := s.CallTool(context.Background(), "grep", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_EnsembleSearch_DefaultWeights(t *testing.T) {
	// Given: a server with default configuration
	idx := &fakeIndex{}
	s := newTestServer(t, idx, nil)

	// When: searching without weights or k
	out := callSearch(t, s, ToolEnsembleSearch, map[string]any{
		"query":           "where is the config parsed",
		"conversation_id": "conv-1",
	})

	// Then: the configured weights and default k are used
	require.NotNil(t, idx.lastW)
	assert.Equal(t, search.RetrievalWeights{Dense: 0.6, Sparse: 0.4}, *idx.lastW)
	assert.Equal(t, 5, idx.lastK)
	assert.Equal(t, "conv-1", idx.lastConv)

	// And: the output mirrors the fused result
	assert.Equal(t, search.MethodEnsembleRRF, out.Method)
	assert.Equal(t, 2, out.TotalResults)
	require.Len(t, out.Documents, 2)
	assert.Equal(t, "a", out.Documents[0].ID)
	assert.Equal(t, "func parseConfig() {}", out.Documents[0].PageContent)
	assert.Equal(t, "dense", out.Documents[0].Source)
	assert.NotNil(t, out.Documents[1].Metadata)
	assert.Equal(t, []float64{0.0164, 0.0066}, out.Scores)
	assert.InDelta(t, 0.012, out.ProcessingTime, 1e-9)
	assert.False(t, out.AutoOptimized)
	assert.Empty(t, out.QueryType)
}

func TestServer_EnsembleSearch_ExplicitWeights(t *testing.T) {
	idx := &fakeIndex{}
	s := newTestServer(t, idx, nil)

	out := callSearch(t, s, ToolEnsembleSearch, map[string]any{
		"query":         "parseConfig",
		"dense_weight":  0.3,
		"sparse_weight": 0.7,
		"k":             8,
	})

	assert.Equal(t, search.RetrievalWeights{Dense: 0.3, Sparse: 0.7}, *idx.lastW)
	assert.Equal(t, 8, idx.lastK)
	assert.Equal(t, WeightsOutput{Dense: 0.3, Sparse: 0.7}, out.Weights)
}

func TestServer_EnsembleSearch_InvalidWeights(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"do not sum to one", map[string]any{"query": "q", "dense_weight": 0.5, "sparse_weight": 0.6}},
		{"negative", map[string]any{"query": "q", "dense_weight": -0.2, "sparse_weight": 1.2}},
		{"one weight only", map[string]any{"query": "q", "dense_weight": 0.9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndex{}
			s := newTestServer(t, idx, nil)

			_, err := s.CallTool(context.Background(), ToolEnsembleSearch, tt.args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
			assert.Zero(t, idx.calls, "index must not be queried")
		})
	}
}

func TestServer_Search_EmptyQuery(t *testing.T) {
	for _, tool := range []string{ToolEnsembleSearch, ToolAdaptiveSearch} {
		t.Run(tool, func(t *testing.T) {
			idx := &fakeIndex{}
			s := newTestServer(t, idx, nil)

			for _, args := range []map[string]any{{}, {"query": ""}, {"query": "   "}} {
				_, err := s.CallTool(context.Background(), tool, args)

				var mcpErr *MCPError
				require.ErrorAs(t, err, &mcpErr)
				assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
			}
			assert.Zero(t, idx.calls)
		})
	}
}

func TestServer_Search_ClampsK(t *testing.T) {
	tests := []struct {
		k    int
		want int
	}{
		{0, 5},
		{-3, 5},
		{12, 12},
		{500, 50},
	}

	for _, tt := range tests {
		idx := &fakeIndex{}
		s := newTestServer(t, idx, nil)

		callSearch(t, s, ToolAdaptiveSearch, map[string]any{"query": "q", "k": tt.k})

		assert.Equal(t, tt.want, idx.lastK, "k=%d", tt.k)
	}
}

func TestServer_AdaptiveSearch(t *testing.T) {
	tests := []struct {
		query     string
		queryType string
		weights   WeightsOutput
	}{
		{"implement a function to sort a list", "code", WeightsOutput{Dense: 0.4, Sparse: 0.6}},
		{"why does the server retry failed requests", "semantic", WeightsOutput{Dense: 0.8, Sparse: 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.queryType, func(t *testing.T) {
			idx := &fakeIndex{}
			s := newTestServer(t, idx, nil)

			out := callSearch(t, s, ToolAdaptiveSearch, map[string]any{"query": tt.query})

			assert.Nil(t, idx.lastW, "adaptive search leaves weight selection to the retriever")
			assert.True(t, out.AutoOptimized)
			assert.Equal(t, tt.queryType, out.QueryType)
			assert.Equal(t, tt.weights, out.Weights)
		})
	}
}

func TestServer_Search_MapsIndexErrors(t *testing.T) {
	idx := &fakeIndex{err: search.ErrSparseUnavailable}
	s := newTestServer(t, idx, nil)

	_, err := s.CallTool(context.Background(), ToolEnsembleSearch, map[string]any{"query": "q"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexNotFound, mcpErr.Code)
}

func TestServer_IndexStatus(t *testing.T) {
	// Given: a server with query stats that have seen one search
	stats := telemetry.NewQueryStats(10, 10)
	stats.ObserveSearch(search.SearchEvent{
		Query:      search.NewSearchQuery("parse config"),
		Classified: search.QueryTypeSemantic,
		Results:    0,
	})
	idx := &fakeIndex{embedder: embed.NewStaticEmbedder(16)}
	s := newTestServer(t, idx, stats)

	// When: requesting status
	out, err := s.CallTool(context.Background(), ToolIndexStatus, nil)
	require.NoError(t, err)
	status, ok := out.(*IndexStatusOutput)
	require.True(t, ok)

	// Then: index, embedder and query activity are reported
	assert.Equal(t, 2, status.Index.TotalChunks)
	assert.Equal(t, "/repo/.coderag", status.Index.PersistDirectory)
	assert.True(t, status.Index.SparseAvailable)
	assert.Equal(t, "static", status.Embeddings.Provider)
	assert.Equal(t, "static-hash-16", status.Embeddings.Model)
	assert.Equal(t, "static-hash-16", status.Embeddings.IndexModel)
	assert.Equal(t, 16, status.Embeddings.Dimensions)
	assert.Equal(t, "ready", status.Embeddings.Status)

	require.NotNil(t, status.Queries)
	assert.Equal(t, int64(1), status.Queries.TotalQueries)
	assert.Equal(t, []string{"parse config"}, status.Queries.ZeroResultQueries)
	assert.NotEmpty(t, status.Queries.Since)
}

func TestServer_IndexStatus_NoEmbedderNoStats(t *testing.T) {
	s := newTestServer(t, &fakeIndex{}, nil)

	out, err := s.CallTool(context.Background(), ToolIndexStatus, nil)
	require.NoError(t, err)
	status := out.(*IndexStatusOutput)

	assert.Equal(t, "unavailable", status.Embeddings.Status)
	assert.Nil(t, status.Queries)
}

func TestServer_Serve_UnknownTransport(t *testing.T) {
	s := newTestServer(t, &fakeIndex{}, nil)

	err := s.Serve(context.Background(), "sse")

	assert.ErrorContains(t, err, "unknown transport")
}

func TestServer_ConcurrentRequests_RaceSafe(t *testing.T) {
	idx := &fakeIndex{}
	s := newTestServer(t, idx, telemetry.NewQueryStats(10, 10))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CallTool(context.Background(), ToolAdaptiveSearch, map[string]any{"query": "class Parser"})
			assert.NoError(t, err)
			_, err = s.CallTool(context.Background(), ToolIndexStatus, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, idx.calls)
}

func TestServer_EndToEnd_WithIndexService(t *testing.T) {
	// Given: a small indexed repository
	root := t.TempDir()
	files := map[string]string{
		"config.go": "package main\n\n// parseConfig reads the settings file.\nfunc parseConfig() string {\n\treturn \"ok\"\n}\n",
		"README.md": "# Demo\n\nA tiny program that prints its configuration.\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}

	cfg := config.NewConfig()
	emb, err := index.NewEmbedder(cfg)
	require.NoError(t, err)
	ix, err := index.NewIndexer(cfg, emb)
	require.NoError(t, err)
	_, err = ix.Run(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, emb.Close())

	stats := telemetry.NewQueryStats(10, 10)
	svc, err := index.Open(context.Background(), cfg, root, stats)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	s, err := NewServer(svc, cfg, stats)
	require.NoError(t, err)

	// When: searching through the tool layer
	out := callSearch(t, s, ToolAdaptiveSearch, map[string]any{"query": "function parseConfig"})

	// Then: the Go file is found and code weights were applied
	require.NotEmpty(t, out.Documents)
	assert.Equal(t, "code", out.QueryType)
	assert.Equal(t, WeightsOutput{Dense: 0.4, Sparse: 0.6}, out.Weights)
	var found bool
	for _, d := range out.Documents {
		if d.Metadata["source"] == "config.go" {
			found = true
		}
	}
	assert.True(t, found, "config.go should be retrieved")

	// And: index_status reflects the index and the observed query
	raw, err := s.CallTool(context.Background(), ToolIndexStatus, nil)
	require.NoError(t, err)
	status := raw.(*IndexStatusOutput)
	assert.Equal(t, 2, status.Index.TotalChunks)
	assert.True(t, status.Index.Consistent)
	assert.Equal(t, int64(1), status.Queries.TotalQueries)
}
