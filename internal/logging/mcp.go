package logging

import (
	"log/slog"
)

// SetupMCPMode initializes logging for the stdio MCP server.
// Records go to the log file only: stdout is reserved for JSON-RPC and
// anything written to it or to stderr can break the client connection.
func SetupMCPMode(level string) (func(), error) {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("mcp_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
