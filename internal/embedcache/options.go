package embedcache

import (
	"log/slog"
	"time"

	"github.com/dshills/alertwatch-mcp/internal/metrics"
)

// DefaultComputeTimeout bounds a single embedding computation
const DefaultComputeTimeout = 30 * time.Second

// Option configures a Cache
type Option func(*Cache)

// WithStore writes records through to store and consults it on memory misses
func WithStore(store RecordStore) Option {
	return func(c *Cache) {
		c.store = store
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Cache) {
		c.metrics = metrics.OrNoop(r)
	}
}

// WithComputeTimeout bounds each embedding computation, independent of the
// requesting context
func WithComputeTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

// WithClock overrides the clock used for LastUpdated
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}
