// Package cmd provides the CLI commands for coderag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/config"
	"github.com/Aman-CERP/coderag/internal/logging"
	"github.com/Aman-CERP/coderag/internal/profiling"
	"github.com/Aman-CERP/coderag/pkg/version"
)

// Persistent flags shared by every subcommand.
var (
	debugMode   bool
	rootDir     string
	profileOpts profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
)

// NewRootCmd creates the root command for the coderag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coderag",
		Short: "Hybrid code search for AI assistants",
		Long: `coderag indexes a repository and answers queries with two retrievers at
once: an embedding (dense) retriever and a BM25 keyword (sparse) retriever.
Their rankings are merged with weighted Reciprocal Rank Fusion.

Run 'coderag index' in a repository, then 'coderag search' from the terminal
or 'coderag serve' to expose the index to an MCP client.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(version.Name + " version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to "+logging.DefaultLogDir())
	cmd.PersistentFlags().StringVar(&rootDir, "root", "", "Repository root (default: nearest parent with .git or .coderag.yaml)")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	// serve owns its logger: stdout and stderr belong to the MCP client.
	if cmd.Name() != "serve" {
		cleanup, err := logging.SetupCLI(debugMode)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		loggingCleanup = cleanup
		if debugMode {
			slog.Info("debug_logging_enabled",
				slog.String("log_file", logging.DefaultLogPath()),
				slog.String("version", version.Version))
		}
	}

	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profiler = s
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		err = profiler.Stop()
		profiler = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// projectRoot resolves the repository the command works on: an explicit
// path, then --root, then the nearest project root above the working
// directory.
func projectRoot(explicit string) (string, error) {
	if explicit == "" {
		explicit = rootDir
	}
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("cannot access %s: %w", explicit, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", explicit)
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return config.FindProjectRoot(cwd)
}

// loadProject resolves the root and loads its configuration.
func loadProject(explicit string) (string, *config.Config, error) {
	root, err := projectRoot(explicit)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}
