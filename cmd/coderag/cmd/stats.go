package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Show the size of the index, the embedder that built it and whether the corpus and vector index agree.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, cfg, err := loadProject("")
	if err != nil {
		return err
	}

	svc, err := index.Open(ctx, cfg, root, nil)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	st, err := svc.Stats(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(st)
	}

	out.Header("Index")
	out.KeyValue("root", st.Root)
	out.KeyValue("persist directory", st.DataDir)
	out.KeyValue("total chunks", st.TotalChunks)
	out.KeyValue("vectors", st.Vectors)
	out.KeyValue("embedding model", st.EmbeddingModel)
	out.KeyValue("dimensions", st.Dimensions)
	if st.IndexedAt != "" {
		out.KeyValue("indexed at", st.IndexedAt)
	}
	out.Newline()

	switch {
	case st.TotalChunks == 0:
		out.Warning("Index is empty. Run 'coderag index' first.")
	case !st.Consistent:
		out.Warning("Corpus and vector index disagree. Run 'coderag index' to rebuild.")
	default:
		out.Success("Index is consistent")
	}
	return nil
}
