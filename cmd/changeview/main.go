// Command changeview monitors web pages and serves a view of the changes
// between their captured versions.
//
// Usage:
//
//	changeview -config changeview.yaml          # run the server
//	changeview -db changeview.db -addr :8080    # run with defaults
//	changeview -db changeview.db -mcp           # also serve MCP over stdio
//	changeview -db changeview.db -resolve <page>/<token>  # resolve and exit
//	changeview -db changeview.db -capture <page>          # capture and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/changeview/kit"
	"github.com/hazyhaar/changeview/webmon"
)

const usage = "usage: changeview -config <file> | -db <path> [-addr :8080] [-mcp] [-resolve <page>/<token>] [-capture <page>]"

var errUsage = errors.New("changeview: a database path is required")

type options struct {
	configPath string
	dbPath     string
	addr       string
	mcp        bool
	resolve    string
	capture    string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to changeview.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database (overrides config)")
	flag.StringVar(&o.addr, "addr", "", "HTTP listen address (overrides config)")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools over stdio")
	flag.StringVar(&o.resolve, "resolve", "", "resolve <pageID>/<token>, print JSON and exit")
	flag.StringVar(&o.capture, "capture", "", "capture <pageID>, print JSON and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, logger, o)
	stop()
	if errors.Is(err, errUsage) {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("changeview: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	svc, err := webmon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	// One-shot: resolve.
	if o.resolve != "" {
		pageID, token, _ := strings.Cut(o.resolve, "/")
		res, err := svc.ResolveChange(ctx, pageID, token)
		if err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
		return printJSON(res)
	}

	// One-shot: capture.
	if o.capture != "" {
		res, err := svc.Capture(kit.WithTransport(ctx, kit.TransportCLI), o.capture)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		return printJSON(res)
	}

	// Daemon mode.
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if o.mcp {
		srv := mcp.NewServer(&mcp.Implementation{Name: "changeview", Version: "1.0.0"}, nil)
		svc.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("changeview: mcp stdio", "error", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("changeview: listening", "addr", cfg.HTTP.Addr, "db", cfg.DBPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	}

	logger.Info("changeview: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func resolveConfig(o options) (*webmon.Config, error) {
	cfg := &webmon.Config{}
	if o.configPath != "" {
		var err error
		if cfg, err = webmon.LoadConfigFile(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.addr != "" {
		cfg.HTTP.Addr = o.addr
	}

	if cfg.DBPath == "" {
		return nil, errUsage
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
