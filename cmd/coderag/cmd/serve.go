package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/coderag/internal/index"
	"github.com/Aman-CERP/coderag/internal/logging"
	"github.com/Aman-CERP/coderag/internal/mcp"
	"github.com/Aman-CERP/coderag/internal/telemetry"
)

const (
	// queryStatsTerms bounds the distinct query terms index_status reports on.
	queryStatsTerms = 200
	// queryStatsZero is how many zero-result queries index_status remembers.
	queryStatsZero = 20

	metricsShutdownTimeout = 2 * time.Second
)

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
ensemble_search, adaptive_search and index_status tools.

Nothing but JSON-RPC is written to stdout; logs go to the log file (see
'coderag logs'). With --metrics-addr, Prometheus metrics are served on
http://<addr>/metrics.`,
		Example: `  coderag serve
  coderag serve --metrics-addr 127.0.0.1:9464`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default from config)")
	return cmd
}

func runServe(ctx context.Context, metricsAddr string) error {
	root, cfg, err := loadProject("")
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(level)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics := telemetry.NewMetrics()
	stats := telemetry.NewQueryStats(queryStatsTerms, queryStatsZero)

	svc, err := index.Open(ctx, cfg, root, telemetry.Fanout(metrics, stats))
	if err != nil {
		slog.Error("serve_open_failed", slog.String("root", root), slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = svc.Close() }()

	if st, err := svc.Stats(ctx); err == nil {
		metrics.SetIndexSize(st.TotalChunks, st.Vectors)
	} else {
		slog.Warn("serve_stats_failed", slog.String("error", err.Error()))
	}

	if metricsAddr == "" {
		metricsAddr = cfg.Server.MetricsAddr
	}
	if metricsAddr != "" {
		_, stop, err := serveMetrics(metricsAddr, metrics)
		if err != nil {
			return err
		}
		defer stop()
	}

	server, err := mcp.NewServer(svc, cfg, stats)
	if err != nil {
		return err
	}
	return server.Serve(ctx, cfg.Server.Transport)
}

// serveMetrics starts the Prometheus endpoint. It returns the bound address
// and a function that shuts the endpoint down.
func serveMetrics(addr string, metrics *telemetry.Metrics) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", slog.String("error", err.Error()))
		}
	}()
	slog.Info("metrics_server_started", slog.String("addr", ln.Addr().String()))

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
