package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vinodismyname/mcpfunnel/config"
	"github.com/vinodismyname/mcpfunnel/internal/dashboard"
	"github.com/vinodismyname/mcpfunnel/internal/dataset"
	"github.com/vinodismyname/mcpfunnel/internal/funnel"
	"github.com/vinodismyname/mcpfunnel/internal/insights"
	"github.com/vinodismyname/mcpfunnel/internal/pipeline"
	"github.com/vinodismyname/mcpfunnel/internal/registry"
	"github.com/vinodismyname/mcpfunnel/internal/report"
	"github.com/vinodismyname/mcpfunnel/internal/runtime"
	"github.com/vinodismyname/mcpfunnel/internal/security"
	"github.com/vinodismyname/mcpfunnel/internal/telemetry"
	"github.com/vinodismyname/mcpfunnel/internal/workbooks"
	"github.com/vinodismyname/mcpfunnel/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run returns the process exit code so deferred cleanup always runs.
func run(args []string, stdout io.Writer) int {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		useStdio        bool
		useHTTP         bool
		httpAddr        string
		configPath      string
		dataPath        string
		reportPath      string
		shutdownTimeout time.Duration
	)

	fs := flag.NewFlagSet("mcpfunnel", flag.ContinueOnError)
	fs.BoolVar(&useStdio, "stdio", false, "Run MCP server over stdio transport")
	fs.BoolVar(&useHTTP, "http", false, "Serve the dashboard API for -data")
	fs.StringVar(&httpAddr, "addr", "", "Dashboard listen address (overrides config)")
	fs.StringVar(&configPath, "config", os.Getenv("MCPFUNNEL_CONFIG"), "Path to YAML config file")
	fs.StringVar(&dataPath, "data", "", "Dataset directory or .xlsx workbook")
	fs.StringVar(&reportPath, "report", "", "Write the report deck to this .xlsx path and exit")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}
	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	logger := zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Str("service", "mcpfunnel").Logger()
	ctx := logger.WithContext(context.Background())

	// Security: validate allow-list directories on startup (fail-safe on error)
	secMgr, err := security.NewManager(cfg.Server.AllowedDirs, nil)
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager")
		fmt.Fprintln(os.Stderr, "invalid security configuration; check server.allowed_dirs or MCPFUNNEL_ALLOWED_DIRS")
		return 1
	}
	if err := secMgr.ValidateConfig(); err != nil {
		logger.Error().Err(err).Msg("security: invalid allow-list configuration")
		fmt.Fprintln(os.Stderr, "no allowed directories configured; set MCPFUNNEL_ALLOWED_DIRS")
		return 1
	}
	logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")

	limits := runtime.LimitsFromConfig(cfg.Limits)
	runtimeController := runtime.NewController(limits)
	runtimeMW := runtime.NewMiddleware(runtimeController)

	wbCache := workbooks.NewCache(0, 0, runtimeController, secMgr, nil)
	wbCache.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		st := wbCache.Stats()
		if err := wbCache.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("workbook cache close")
		}
		logger.Debug().Int64("hits", st.Hits).Int64("misses", st.Misses).Int64("evictions", st.Evictions).Msg("workbook cache closed")
	}()

	loader := &dataset.Loader{Config: cfg.Dataset, Limits: limits, Workbooks: wbCache, Validator: secMgr}
	recorder := telemetry.NewRecorder(logger)
	pipe := &pipeline.Pipeline{
		Options: funnel.Options{
			RecencyDays: cfg.Analysis.RecencyDays,
			Segments:    cfg.Analysis.Segments,
		},
		Thresholds: insights.Thresholds{OnboardingRatio: cfg.Analysis.OnboardingRatio},
		Observer:   recorder,
	}

	if dataPath != "" && !useStdio && !useHTTP {
		if err := runOnce(ctx, stdout, pipe, pipeline.PathSource{Loader: loader, Path: dataPath}, secMgr, reportPath); err != nil {
			logger.Error().Err(err).Msg("analysis failed")
			return 1
		}
		return 0
	}

	toolRegistry := registry.New()
	writeFilter := registry.NewWriteToolFilter(cfg.Server.EnableWrites, toolRegistry)

	srv := server.NewMCPServer(
		"MCP Funnel Analysis Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(recorder.ServerHooks()),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return writeFilter.FilterTools(ctx, tools) }),
	)

	registry.RegisterFunnelTools(srv, toolRegistry, &registry.Tools{
		Pipeline: pipe,
		Source:   func(path string) pipeline.Source { return pipeline.PathSource{Loader: loader, Path: path} },
		Writes:   secMgr,
	})

	toolContextSize := toolRegistry.ModelContextSize("gpt-4o")

	logger.Info().
		Ctx(ctx).
		Str("version", version.Version()).
		Str("go_version", version.GoVersion()).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_open_workbooks", limits.MaxOpenWorkbooks).
		Int("model_context_size", toolContextSize).
		Bool("writes_enabled", writeFilter.AllowWrites()).
		Bool("stdio", useStdio).
		Bool("http", useHTTP).
		Msg("server bootstrap configured")

	if !useStdio && !useHTTP {
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio, --http, or --data for a one-shot run")
		return 2
	}

	var httpSrv *http.Server
	serveErr := make(chan error, 1)
	if useHTTP {
		if dataPath == "" {
			fmt.Fprintln(os.Stderr, "--http requires --data")
			return 2
		}
		if httpAddr == "" {
			httpAddr = cfg.Server.HTTPAddr
		}
		h := dashboard.NewHandler(pipe, pipeline.PathSource{Loader: loader, Path: dataPath}, recorder, logger)
		httpSrv = &http.Server{
			Addr:              httpAddr,
			Handler:           dashboard.NewRouter(h, runtimeMW.HTTPMiddleware),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		go func() {
			logger.Info().Str("addr", httpAddr).Str("data", dataPath).Msg("dashboard listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	code := 0
	if useStdio {
		if err := server.ServeStdio(srv); err != nil {
			// Use stderr for transport errors so clients don't misinterpret output
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			code = 1
		}
	} else {
		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCtx.Done():
		case err := <-serveErr:
			logger.Error().Err(err).Msg("dashboard server error")
			code = 1
		}
		stop()
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("dashboard shutdown")
		}
	}
	stats := recorder.Snapshot()
	logger.Info().
		Int64("runs", stats.Runs).
		Int64("tool_calls", stats.ToolCalls).
		Int64("requests_in_flight", runtimeController.Usage().Requests).
		Msg("server stopped")
	return code
}

// runOnce analyzes src, optionally writes the deck, and prints the output as JSON.
func runOnce(ctx context.Context, w io.Writer, p *pipeline.Pipeline, src pipeline.Source, sec *security.Manager, reportPath string) error {
	out, err := p.Run(ctx, src)
	if err != nil {
		return err
	}
	if reportPath != "" {
		dest, err := sec.ValidateWritePath(reportPath)
		if err != nil {
			return fmt.Errorf("report path: %w", err)
		}
		if err := report.WriteFile(ctx, out.Deck(), dest); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
