package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/logging"
	"github.com/Aman-CERP/coderag/internal/output"
)

type logsOptions struct {
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent server logs",
		Long: `Show the last lines of the log file written by 'coderag serve' and by
commands run with --debug.`,
		Example: `  coderag logs -n 100
  coderag logs --level error
  coderag logs --filter search_failed`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")
	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	w := cmd.OutOrStdout()
	noColor := opts.noColor || !output.IsTTY(w) || output.DetectNoColor()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: noColor,
	}, w)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n---\n", path)
	viewer.Print(entries)
	return nil
}
