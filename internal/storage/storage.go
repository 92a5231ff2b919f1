package storage

import (
	"context"
	"time"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// Storage defines the interface for persisting alerts and their embedding records
type Storage interface {
	// Alert operations
	UpsertAlert(ctx context.Context, alert *types.Alert) error
	FetchAlert(ctx context.Context, id string) (*types.Alert, error)
	FetchActiveAlerts(ctx context.Context) ([]*types.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*types.Alert, error)
	SetPosition(ctx context.Context, id string, pos *types.Coordinate) error
	DeactivateAlert(ctx context.Context, id string) error
	DeleteAlert(ctx context.Context, id string) error

	// Embedding record operations. Get returns nil, nil when no record exists.
	GetEmbeddingRecord(ctx context.Context, alertID string) (*types.EmbeddingRecord, error)
	PutEmbeddingRecord(ctx context.Context, rec *types.EmbeddingRecord) error
	DeleteEmbeddingRecord(ctx context.Context, alertID string) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// AlertFilter narrows ListAlerts. Empty slices match everything.
type AlertFilter struct {
	Categories []types.Category
	Severities []types.Severity
	ActiveOnly bool
	Limit      int
}

// Status contains statistics about the alert database
type Status struct {
	TotalAlerts      int
	ActiveAlerts     int
	GeocodedAlerts   int
	EmbeddingRecords int
	LatestIssued     time.Time
	SchemaVersion    string
	BuildMode        string
	DatabaseSizeMB   float64
}
