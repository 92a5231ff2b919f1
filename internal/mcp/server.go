package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/alertwatch-mcp/internal/embedder"
	"github.com/dshills/alertwatch-mcp/internal/geo"
	"github.com/dshills/alertwatch-mcp/internal/indexer"
	"github.com/dshills/alertwatch-mcp/internal/metrics"
	"github.com/dshills/alertwatch-mcp/internal/ranker"
	"github.com/dshills/alertwatch-mcp/internal/retrieval"
	"github.com/dshills/alertwatch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "alertwatch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Config carries the server's collaborators and tool defaults
type Config struct {
	Storage  storage.Storage
	Pipeline *retrieval.Pipeline
	Indexer  *indexer.Indexer

	// Embedder is reported by get_status; may be nil
	Embedder embedder.Embedder

	// QueryOptions are the ranking defaults for query_alerts
	QueryOptions ranker.Options

	ListingMaxResults  int
	RadiusKm           float64
	BackfillWorkers    int
	SummarizerEnabled  bool
	RecordStoreBackend string
	Version            string

	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	pipeline *retrieval.Pipeline
	indexer  *indexer.Indexer
	cfg      Config
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewServer creates a new MCP server instance
func NewServer(cfg Config) (*Server, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("retrieval pipeline is required")
	}
	if cfg.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if cfg.Version == "" {
		cfg.Version = ServerVersion
	}
	if cfg.QueryOptions == (ranker.Options{}) {
		cfg.QueryOptions = ranker.QueryOptions()
	}
	if cfg.ListingMaxResults <= 0 {
		cfg.ListingMaxResults = ranker.DefaultMaxResults
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = geo.DefaultRadiusKm
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:      mcpServer,
		storage:  cfg.Storage,
		pipeline: cfg.Pipeline,
		indexer:  cfg.Indexer,
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  metrics.OrNoop(cfg.Metrics),
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(queryAlertsTool(), s.instrument(ToolQueryAlerts, s.handleQueryAlerts))
	s.mcp.AddTool(nearbyAlertsTool(), s.instrument(ToolNearbyAlerts, s.handleNearbyAlerts))
	s.mcp.AddTool(getAlertTool(), s.instrument(ToolGetAlert, s.handleGetAlert))
	s.mcp.AddTool(ingestAlertTool(), s.instrument(ToolIngestAlert, s.handleIngestAlert))
	s.mcp.AddTool(backfillTool(), s.instrument(ToolBackfill, s.handleBackfill))
	s.mcp.AddTool(getStatusTool(), s.instrument(ToolGetStatus, s.handleGetStatus))
}

// instrument records call counts and latency for a tool handler
func (s *Server) instrument(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		done := metrics.TimeTool(s.metrics, name)
		res, err := h(ctx, request)
		done(err == nil && (res == nil || !res.IsError))
		if err != nil {
			s.logger.Warn("tool call failed", "tool", name, "error", err)
		}
		return res, err
	}
}
