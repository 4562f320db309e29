package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/output"
	"github.com/Aman-CERP/coderag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	k              int
	denseWeight    float64
	sparseWeight   float64
	adaptive       bool
	format         string // "text", "json"
	conversationID string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed repository",
		Long: `Run an ensemble search: the dense and the sparse retriever each return k
hits and the two rankings are fused with weighted Reciprocal Rank Fusion.

Weights default to the configured pair (0.6 dense / 0.4 sparse). With
--adaptive they are chosen from the query: code-like queries get 0.4/0.6,
natural-language questions 0.8/0.2.`,
		Example: `  coderag search "where is the retry policy configured"
  coderag search "function parseConfig" --adaptive
  coderag search "rate limiter" -k 10 --dense-weight 0.3 --sparse-weight 0.7
  coderag search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Results per retriever (default from config)")
	cmd.Flags().Float64Var(&opts.denseWeight, "dense-weight", 0, "Dense retriever weight (default from config)")
	cmd.Flags().Float64Var(&opts.sparseWeight, "sparse-weight", 0, "Sparse retriever weight (default from config)")
	cmd.Flags().BoolVar(&opts.adaptive, "adaptive", false, "Choose weights from the query text")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.conversationID, "conversation-id", "", "Conversation ID recorded with the query")

	cmd.MarkFlagsMutuallyExclusive("adaptive", "dense-weight")
	cmd.MarkFlagsMutuallyExclusive("adaptive", "sparse-weight")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (supported: text, json)", opts.format)
	}

	root, cfg, err := loadProject("")
	if err != nil {
		return err
	}

	weights, err := searchWeights(cmd, cfg, opts)
	if err != nil {
		return err
	}

	svc, err := index.Open(ctx, cfg, root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	res, err := svc.Search(ctx, query, cfg.ClampK(opts.k), weights, opts.conversationID)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		m := res.ToMap()
		if opts.adaptive {
			m["auto_optimized"] = true
			m["query_type"] = string(search.NewSearchQuery(query).Classify())
		}
		return out.JSON(m)
	}

	out.SearchResult(query, res)
	return nil
}

// searchWeights returns nil for adaptive search, else the configured pair
// with any flag overrides applied.
func searchWeights(cmd *cobra.Command, cfg *config.Config, opts searchOptions) (*search.RetrievalWeights, error) {
	if opts.adaptive {
		return nil, nil
	}

	dense, sparse := cfg.Search.DenseWeight, cfg.Search.SparseWeight
	if cmd.Flags().Changed("dense-weight") {
		dense = opts.denseWeight
	}
	if cmd.Flags().Changed("sparse-weight") {
		sparse = opts.sparseWeight
	}
	w, err := search.NewRetrievalWeights(dense, sparse)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
