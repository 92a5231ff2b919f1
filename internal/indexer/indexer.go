package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/alertwatch-mcp/internal/embedcache"
	"github.com/dshills/alertwatch-mcp/internal/embedder"
	"github.com/dshills/alertwatch-mcp/internal/geo"
	"github.com/dshills/alertwatch-mcp/internal/metrics"
	"github.com/dshills/alertwatch-mcp/internal/storage"
	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// ErrBackfillInProgress is returned when a second backfill starts while one is running
var ErrBackfillInProgress = errors.New("backfill already in progress")

// maxErrorMessages caps the per-alert failures kept in Statistics
const maxErrorMessages = 50

// Indexer keeps stored alerts ready for retrieval: geocoded and embedded
type Indexer struct {
	storage  storage.Storage
	cache    *embedcache.Cache
	geocoder geo.Geocoder
	embedder embedder.Embedder

	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time

	lock IndexLock
}

// Option configures an Indexer
type Option func(*Indexer)

// WithGeocoder enables forward geocoding of alert locations
func WithGeocoder(g geo.Geocoder) Option {
	return func(i *Indexer) {
		i.geocoder = g
	}
}

// WithEmbedder enables embedding warm-up
func WithEmbedder(e embedder.Embedder) Option {
	return func(i *Indexer) {
		i.embedder = e
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(i *Indexer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(r metrics.Recorder) Option {
	return func(i *Indexer) {
		i.metrics = metrics.OrNoop(r)
	}
}

// WithClock overrides the time source used for TimeIssued defaults
func WithClock(now func() time.Time) Option {
	return func(i *Indexer) {
		if now != nil {
			i.now = now
		}
	}
}

// Config contains configuration for a backfill run
type Config struct {
	Workers int  // Number of concurrent workers (default: runtime.NumCPU())
	Geocode bool // Geocode alerts that have a location but no position
	Embed   bool // Warm embedding records for every active alert
	Force   bool // Drop existing embedding records before recomputing
}

// Statistics contains statistics about a backfill run
type Statistics struct {
	Alerts        int
	Geocoded      int
	GeocodeFailed int
	Embedded      int
	EmbedFailed   int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates an indexer over store. cache may be nil.
func New(store storage.Storage, cache *embedcache.Cache, opts ...Option) *Indexer {
	if cache == nil {
		cache = embedcache.New()
	}
	i := &Indexer{
		storage: store,
		cache:   cache,
		logger:  slog.Default(),
		metrics: metrics.Noop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestAlert normalizes, geocodes, stores and embeds one alert.
// Geocoding and embedding failures are logged; only validation and storage
// errors are returned. The stored alert is returned.
func (i *Indexer) IngestAlert(ctx context.Context, alert *types.Alert) (*types.Alert, error) {
	if alert == nil {
		return nil, fmt.Errorf("alert cannot be nil")
	}

	a := *alert
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.TimeIssued.IsZero() {
		a.TimeIssued = i.now().UTC()
	}
	a.Active = true
	if a.Category == "" {
		a.Category = types.CategoryOther
	}
	if a.Severity == 0 {
		a.Severity = types.SeverityMedium
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alert: %w", err)
	}

	if a.Position == nil {
		a.Position = i.existingPosition(ctx, &a)
	}
	if a.Position == nil {
		a.Position = i.geocode(ctx, &a)
	}

	if err := i.storage.UpsertAlert(ctx, &a); err != nil {
		return nil, fmt.Errorf("failed to store alert %s: %w", a.ID, err)
	}

	if i.embedder != nil {
		if _, err := i.cache.Ensure(ctx, &a, embedder.Func(i.embedder)); err != nil {
			i.logger.Warn("embedding warm-up failed", "alert_id", a.ID, "error", err)
		}
	}

	i.logger.Info("alert ingested", "alert_id", a.ID, "geocoded", a.Position != nil)
	return &a, nil
}

// RemoveAlert deletes an alert and its embedding record
func (i *Indexer) RemoveAlert(ctx context.Context, id string) error {
	if err := i.storage.DeleteAlert(ctx, id); err != nil {
		return err
	}
	if err := i.cache.Remove(ctx, id); err != nil {
		i.logger.Warn("failed to drop embedding record", "alert_id", id, "error", err)
	}
	return nil
}

// Backfill geocodes and embeds every active alert.
// Only one backfill runs at a time; a concurrent call gets ErrBackfillInProgress.
func (i *Indexer) Backfill(ctx context.Context, cfg Config) (*Statistics, error) {
	if !i.lock.TryAcquire() {
		return nil, ErrBackfillInProgress
	}
	defer i.lock.Release()

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	start := time.Now()
	alerts, err := i.storage.FetchActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active alerts: %w", err)
	}

	var (
		geocoded, geocodeFailed atomic.Int32
		embedded, embedFailed   atomic.Int32
		errMu                   sync.Mutex
		errMessages             []string
	)
	recordErr := func(format string, args ...any) {
		errMu.Lock()
		defer errMu.Unlock()
		if len(errMessages) < maxErrorMessages {
			errMessages = append(errMessages, fmt.Sprintf(format, args...))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, alert := range alerts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if cfg.Geocode && !alert.HasPosition() && strings.TrimSpace(alert.Location) != "" && i.geocoder != nil {
				pos := i.geocode(gctx, alert)
				if pos == nil {
					geocodeFailed.Add(1)
					recordErr("%s: location %q not geocoded", alert.ID, alert.Location)
				} else if err := i.storage.SetPosition(gctx, alert.ID, pos); err != nil {
					geocodeFailed.Add(1)
					recordErr("%s: %v", alert.ID, err)
				} else {
					alert.Position = pos
					geocoded.Add(1)
				}
			}

			if cfg.Embed && i.embedder != nil {
				if cfg.Force {
					if err := i.cache.Remove(gctx, alert.ID); err != nil {
						recordErr("%s: %v", alert.ID, err)
					}
				}
				if _, err := i.cache.Ensure(gctx, alert, embedder.Func(i.embedder)); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					embedFailed.Add(1)
					recordErr("%s: %v", alert.ID, err)
				} else {
					embedded.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &Statistics{
		Alerts:        len(alerts),
		Geocoded:      int(geocoded.Load()),
		GeocodeFailed: int(geocodeFailed.Load()),
		Embedded:      int(embedded.Load()),
		EmbedFailed:   int(embedFailed.Load()),
		Duration:      time.Since(start),
		ErrorMessages: errMessages,
	}
	i.logger.Info("backfill complete",
		"alerts", stats.Alerts,
		"geocoded", stats.Geocoded,
		"geocode_failed", stats.GeocodeFailed,
		"embedded", stats.Embedded,
		"embed_failed", stats.EmbedFailed,
		"duration", stats.Duration)
	return stats, nil
}

// existingPosition reuses the stored position when the location text is unchanged
func (i *Indexer) existingPosition(ctx context.Context, a *types.Alert) *types.Coordinate {
	prev, err := i.storage.FetchAlert(ctx, a.ID)
	if err != nil || prev == nil || !prev.HasPosition() {
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(prev.Location), strings.TrimSpace(a.Location)) {
		return nil
	}
	return prev.Position
}

// geocode resolves the alert's location; failures leave the position absent
func (i *Indexer) geocode(ctx context.Context, a *types.Alert) *types.Coordinate {
	if i.geocoder == nil || strings.TrimSpace(a.Location) == "" {
		return nil
	}
	pos, err := i.geocoder.Forward(ctx, a.Location)
	if err != nil {
		i.metrics.IncGeocode(false)
		i.logger.Warn("geocoding failed", "alert_id", a.ID, "location", a.Location, "error", err)
		return nil
	}
	if pos == nil || !pos.Valid() {
		i.metrics.IncGeocode(false)
		i.logger.Debug("location not found", "alert_id", a.ID, "location", a.Location)
		return nil
	}
	i.metrics.IncGeocode(true)
	return pos
}
