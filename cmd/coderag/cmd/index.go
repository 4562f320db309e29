package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/output"
)

func newIndexCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build the search index for a repository",
		Long: `Scan the repository, split every file into overlapping chunks, embed them
and write the corpus and vector index to the data directory (.coderag/ by
default). Each run rebuilds the index from scratch.`,
		Example: `  coderag index
  coderag index ~/src/project --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the index summary as JSON")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	root, cfg, err := loadProject(path)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	embedder, err := index.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	progress := func(p index.Progress) {
		if jsonOutput {
			return
		}
		switch p.Stage {
		case index.StageChunking, index.StageEmbedding:
			out.Progress(p.Current, p.Total, string(p.Stage))
		}
	}

	ix, err := index.NewIndexer(cfg, embedder, index.WithProgress(progress))
	if err != nil {
		return err
	}

	if !jsonOutput {
		out.Statusf("🔍", "Indexing %s", root)
	}
	res, err := ix.Run(ctx, root)
	if err != nil {
		return err
	}

	if jsonOutput {
		return out.JSON(res)
	}
	out.Successf("Indexed %d files into %d chunks", res.Files, res.Chunks)
	out.KeyValue("data dir", res.DataDir)
	out.KeyValue("embedder", fmt.Sprintf("%s (%d dims)", res.Model, res.Dimensions))
	if res.Skipped > 0 {
		out.KeyValue("skipped", res.Skipped)
	}
	out.KeyValue("time", res.Duration.Round(time.Millisecond))
	return nil
}
