package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/embed"
	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/search"
	"github.com/Aman-CERP/coderag/internal/telemetry"
	"github.com/Aman-CERP/coderag/pkg/version"
)

// Index is the opened index a server answers from. *index.Service
// implements it.
type Index interface {
	Search(ctx context.Context, text string, k int, weights *search.RetrievalWeights, conversationID string) (*search.SearchResult, error)
	Stats(ctx context.Context) (*index.Stats, error)
	Embedder() embed.Embedder
}

// Server is the MCP server. It bridges AI clients with the ensemble
// retriever.
type Server struct {
	mcp    *mcp.Server
	index  Index
	config *config.Config
	stats  *telemetry.QueryStats
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolEnsembleSearch,
		Description: "Search the indexed repository with both an embedding retriever and a BM25 keyword retriever, " +
			"merged by weighted Reciprocal Rank Fusion. Optional dense_weight and sparse_weight must sum to 1.",
	},
	{
		Name: ToolAdaptiveSearch,
		Description: "Like ensemble_search, but picks the weights from the query: code-like queries favor keyword " +
			"matching (0.4/0.6), natural-language questions favor embeddings (0.8/0.2).",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report index size, the embedder in use and recent query activity. Use before searching to check the index is built.",
	},
}

// NewServer creates a new MCP server. stats may be nil.
func NewServer(idx Index, cfg *config.Config, stats *telemetry.QueryStats) (*Server, error) {
	if idx == nil {
		return nil, errors.New("index is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		index:  idx,
		config: cfg,
		stats:  stats,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments. It is the
// in-process equivalent of a tools/call request.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}

	switch name {
	case ToolEnsembleSearch:
		var in EnsembleSearchInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		return s.ensembleSearch(ctx, in)
	case ToolAdaptiveSearch:
		var in AdaptiveSearchInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		return s.adaptiveSearch(ctx, in)
	case ToolIndexStatus:
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolEnsembleSearch, Description: tools[0].Description}, s.mcpEnsembleSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAdaptiveSearch, Description: tools[1].Description}, s.mcpAdaptiveSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpEnsembleSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input EnsembleSearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, err := s.ensembleSearch(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, *out, nil
}

func (s *Server) mcpAdaptiveSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input AdaptiveSearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, err := s.adaptiveSearch(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, *out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// ensembleSearch searches with the caller's weights, falling back to the
// configured pair for whichever weight is omitted.
func (s *Server) ensembleSearch(ctx context.Context, in EnsembleSearchInput) (*SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	dense, sparse := s.config.Search.DenseWeight, s.config.Search.SparseWeight
	if in.DenseWeight != nil {
		dense = *in.DenseWeight
	}
	if in.SparseWeight != nil {
		sparse = *in.SparseWeight
	}
	w, err := search.NewRetrievalWeights(dense, sparse)
	if err != nil {
		return nil, MapError(err)
	}

	res, err := s.run(ctx, ToolEnsembleSearch, in.Query, in.K, &w, in.ConversationID)
	if err != nil {
		return nil, err
	}
	out := toSearchOutput(res)
	return &out, nil
}

// adaptiveSearch lets the retriever pick weights from the query text.
func (s *Server) adaptiveSearch(ctx context.Context, in AdaptiveSearchInput) (*SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	res, err := s.run(ctx, ToolAdaptiveSearch, in.Query, in.K, nil, in.ConversationID)
	if err != nil {
		return nil, err
	}
	out := toSearchOutput(res)
	out.AutoOptimized = true
	out.QueryType = string(search.NewSearchQuery(in.Query).Classify())
	return &out, nil
}

func (s *Server) run(ctx context.Context, tool, query string, k int, w *search.RetrievalWeights, conversationID string) (*search.SearchResult, error) {
	start := time.Now()
	requestID := uuid.NewString()
	k = s.config.ClampK(k)

	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.String("query", query),
		slog.Int("k", k),
		slog.String("conversation_id", conversationID))

	res, err := s.index.Search(ctx, query, k, w, conversationID)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.String("tool", tool),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.Duration("duration", duration),
		slog.Int("result_count", res.TotalResults()))
	return res, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	requestID := uuid.NewString()

	st, err := s.index.Stats(ctx)
	if err != nil {
		s.logger.Error("index_status_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		Index: toIndexStats(st),
		Embeddings: EmbeddingInfo{
			Provider:   s.config.Embeddings.Provider,
			IndexModel: st.EmbeddingModel,
			Status:     "unavailable",
		},
	}
	if emb := s.index.Embedder(); emb != nil {
		out.Embeddings.Model = emb.ModelName()
		out.Embeddings.Dimensions = emb.Dimensions()
		if emb.Available(ctx) {
			out.Embeddings.Status = "ready"
		}
	}
	if s.stats != nil {
		out.Queries = toQueryActivity(s.stats.Snapshot())
	}

	s.logger.Info("index_status_completed",
		slog.String("request_id", requestID),
		slog.Int("total_chunks", st.TotalChunks))
	return out, nil
}

// Serve runs the server on the configured transport until ctx is cancelled
// or the client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", config.TransportStdio:
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
