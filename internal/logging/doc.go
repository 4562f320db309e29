// Package logging configures slog for coderag.
//
// CLI commands log to stderr; with --debug, JSON logs are also written to a
// size-rotated file under ~/.coderag/logs/. The MCP server logs to the file
// only, because stdout carries JSON-RPC and must stay clean.
package logging
