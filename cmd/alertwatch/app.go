package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dshills/alertwatch-mcp/internal/config"
	"github.com/dshills/alertwatch-mcp/internal/embedcache"
	"github.com/dshills/alertwatch-mcp/internal/embedder"
	"github.com/dshills/alertwatch-mcp/internal/geo"
	"github.com/dshills/alertwatch-mcp/internal/indexer"
	"github.com/dshills/alertwatch-mcp/internal/metrics"
	"github.com/dshills/alertwatch-mcp/internal/recordstore"
	"github.com/dshills/alertwatch-mcp/internal/retrieval"
	"github.com/dshills/alertwatch-mcp/internal/storage"
	"github.com/dshills/alertwatch-mcp/internal/summarizer"
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	storage  *storage.SQLiteStorage
	embedder embedder.Embedder
	cache    *embedcache.Cache
	pipeline *retrieval.Pipeline
	indexer  *indexer.Indexer
	registry *prometheus.Registry
	recorder metrics.Recorder

	closers []func() error
}

// newLogger builds the stderr logger; stdout is reserved for MCP
func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// newApp wires storage, embedding, geocoding, summarization and retrieval
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, recorder: metrics.Noop{}}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if cfg.Metrics.Addr != "" {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom, err := metrics.NewPrometheus(a.registry)
		if err != nil {
			return a, fmt.Errorf("failed to register metrics: %w", err)
		}
		a.recorder = prom
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "" && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return a, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	a.storage, err = storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return a, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.closers = append(a.closers, a.storage.Close)

	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return a, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.embedder = embedder.NewInstrumented(emb, a.recorder)
	a.closers = append(a.closers, a.embedder.Close)
	logger.Info("embedder ready", "provider", emb.Provider(), "model", emb.Model(), "dimension", emb.Dimension())

	records, err := a.recordStore(ctx)
	if err != nil {
		return a, err
	}
	cacheOpts := []embedcache.Option{
		embedcache.WithLogger(logger),
		embedcache.WithMetrics(a.recorder),
		embedcache.WithComputeTimeout(cfg.Retrieval.ComputeTimeout),
	}
	if records != nil {
		cacheOpts = append(cacheOpts, embedcache.WithStore(records))
	}
	a.cache = embedcache.New(cacheOpts...)

	pipelineOpts := []retrieval.Option{
		retrieval.WithDefaultOptions(cfg.Retrieval.Ranking),
		retrieval.WithConcurrency(cfg.Retrieval.Concurrency),
		retrieval.WithLogger(logger),
		retrieval.WithMetrics(a.recorder),
	}
	if cfg.SummarizerEnabled() {
		sum, err := summarizer.NewOpenAI(cfg.Summarizer.OpenAI)
		if err != nil {
			return a, fmt.Errorf("failed to initialize summarizer: %w", err)
		}
		pipelineOpts = append(pipelineOpts, retrieval.WithSummarizer(sum))
		logger.Info("summarizer enabled", "model", cfg.Summarizer.OpenAI.Model)
	} else {
		logger.Info("summarizer disabled, answers use the template")
	}
	a.pipeline = retrieval.New(a.storage, a.embedder, a.cache, pipelineOpts...)

	indexerOpts := []indexer.Option{
		indexer.WithEmbedder(a.embedder),
		indexer.WithLogger(logger),
		indexer.WithMetrics(a.recorder),
	}
	if cfg.Geocoder.Backend == config.GeocoderNominatim {
		indexerOpts = append(indexerOpts, indexer.WithGeocoder(geo.NewNominatimClient(cfg.NominatimConfig())))
	}
	a.indexer = indexer.New(a.storage, a.cache, indexerOpts...)

	return a, nil
}

// recordStore returns the configured embedding record store; nil keeps records in memory only
func (a *app) recordStore(ctx context.Context) (embedcache.RecordStore, error) {
	rs := a.cfg.RecordStore
	switch rs.Backend {
	case config.RecordStoreSQLite:
		return a.storage, nil
	case config.RecordStoreMemory:
		return nil, nil
	case config.RecordStoreRedis:
		store, err := recordstore.NewRedisFromURL(ctx, rs.RedisURL,
			recordstore.WithPrefix(rs.RedisPrefix),
			recordstore.WithTTL(rs.RedisTTL))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.RecordStoreQdrant:
		store, err := recordstore.NewQdrant(rs.QdrantAddr, rs.QdrantCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureCollection(ctx, a.embedder.Dimension()); err != nil {
			return nil, fmt.Errorf("failed to prepare qdrant collection: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown record store backend %q", rs.Backend)
	}
}

// serveMetrics exposes /metrics until ctx is cancelled
func (a *app) serveMetrics(ctx context.Context) {
	if a.registry == nil {
		return
	}
	go func() {
		a.logger.Info("metrics endpoint listening", "addr", a.cfg.Metrics.Addr)
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.registry); err != nil {
			a.logger.Error("metrics endpoint stopped", "error", err)
		}
	}()
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
