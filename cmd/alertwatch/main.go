package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/alertwatch-mcp/internal/config"
	"github.com/dshills/alertwatch-mcp/internal/indexer"
	"github.com/dshills/alertwatch-mcp/internal/mcp"
	"github.com/dshills/alertwatch-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `Usage: alertwatch [command] [flags]

Commands:
  serve      Run the MCP server on stdio (default)
  backfill   Geocode and embed active alerts, then exit
  version    Print version information

Configuration is read from $ALERTWATCH_CONFIG (YAML) and ALERTWATCH_* variables.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "alertwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "--version", "-version", "version":
		printVersion()
		return nil
	case "--help", "-h", "help":
		fmt.Print(usage)
		return nil
	case "serve", "backfill":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("alertwatch starting",
		"version", version,
		"command", cmd,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"db", cfg.Database.Path)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd == "backfill" {
		return runBackfill(ctx, a, args)
	}
	return runServe(ctx, a)
}

func printVersion() {
	fmt.Printf("AlertWatch MCP Server\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Build Mode: %s\n", storage.BuildMode)
	fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
}

func runServe(ctx context.Context, a *app) error {
	a.serveMetrics(ctx)

	server, err := mcp.NewServer(mcp.Config{
		Storage:            a.storage,
		Pipeline:           a.pipeline,
		Indexer:            a.indexer,
		Embedder:           a.embedder,
		QueryOptions:       a.cfg.Retrieval.Ranking,
		ListingMaxResults:  a.cfg.Retrieval.ListingMaxResults,
		RadiusKm:           a.cfg.Retrieval.RadiusKm,
		BackfillWorkers:    a.cfg.Retrieval.Concurrency,
		SummarizerEnabled:  a.cfg.SummarizerEnabled(),
		RecordStoreBackend: a.cfg.RecordStore.Backend,
		Version:            version,
		Logger:             a.logger,
		Metrics:            a.recorder,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	a.logger.Info("MCP server ready, listening on stdio")
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

func runBackfill(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	workers := fs.Int("workers", a.cfg.Retrieval.Concurrency, "number of concurrent workers")
	noGeocode := fs.Bool("no-geocode", false, "skip geocoding of missing positions")
	noEmbed := fs.Bool("no-embed", false, "skip embedding warm-up")
	force := fs.Bool("force", false, "recompute every embedding")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	stats, err := a.indexer.Backfill(ctx, indexer.Config{
		Workers: *workers,
		Geocode: !*noGeocode,
		Embed:   !*noEmbed,
		Force:   *force,
	})
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Printf("Alerts:          %d\n", stats.Alerts)
	fmt.Printf("Geocoded:        %d (%d failed)\n", stats.Geocoded, stats.GeocodeFailed)
	fmt.Printf("Embedded:        %d (%d failed)\n", stats.Embedded, stats.EmbedFailed)
	fmt.Printf("Duration:        %v\n", stats.Duration)
	for _, msg := range stats.ErrorMessages {
		fmt.Printf("  error: %s\n", msg)
	}
	return nil
}
