package embedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/alertwatch-mcp/internal/metrics"
	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// maxJoinAttempts bounds how often Ensure re-joins after sharing a computation
// that was started for different text
const maxJoinAttempts = 3

// EmbedFunc computes the embedding of a piece of text
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// RecordStore persists embedding records.
// GetEmbeddingRecord returns (nil, nil) when no record exists.
type RecordStore interface {
	GetEmbeddingRecord(ctx context.Context, alertID string) (*types.EmbeddingRecord, error)
	PutEmbeddingRecord(ctx context.Context, rec *types.EmbeddingRecord) error
	DeleteEmbeddingRecord(ctx context.Context, alertID string) error
}

// Cache maps alert IDs to their current embedding records
type Cache struct {
	mu      sync.RWMutex
	records map[string]*types.EmbeddingRecord

	// removals counts Remove calls per alert ID. A computation started before
	// a removal must not write its record back.
	removals map[string]uint64

	// group coalesces computations per alert ID
	group singleflight.Group

	store          RecordStore
	logger         *slog.Logger
	metrics        metrics.Recorder
	computeTimeout time.Duration
	now            func() time.Time
}

// New creates an empty Cache
func New(opts ...Option) *Cache {
	c := &Cache{
		records:        make(map[string]*types.EmbeddingRecord),
		removals:       make(map[string]uint64),
		logger:         slog.Default(),
		metrics:        metrics.Noop{},
		computeTimeout: DefaultComputeTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// flight is the shared result of one computation
type flight struct {
	text string
	rec  *types.EmbeddingRecord
}

// Get returns a copy of the in-memory record for alertID, stale or not
func (c *Cache) Get(alertID string) (*types.EmbeddingRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[alertID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Len returns the number of records held in memory
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Ensure returns the record for alert, computing it with embed when there is
// no record or the record's SourceText no longer matches the alert.
//
// Cancelling ctx returns ctx.Err() to this caller only. A computation that has
// already started runs to completion on a detached context and is cached for
// later callers. Failures wrap types.ErrEmbeddingUnavailable and are not cached.
func (c *Cache) Ensure(ctx context.Context, alert *types.Alert, embed EmbedFunc) (*types.EmbeddingRecord, error) {
	if alert == nil || alert.ID == "" {
		return nil, types.ErrEmptyAlertID
	}

	text := DeriveText(alert)
	if text == "" {
		c.metrics.IncEmbeddingCache(metrics.CacheError)
		return nil, fmt.Errorf("%w: alert %s has no text", types.ErrEmbeddingUnavailable, alert.ID)
	}

	if rec := c.lookup(alert.ID, text); rec != nil {
		c.metrics.IncEmbeddingCache(metrics.CacheHit)
		return rec.Clone(), nil
	}

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		computeCtx := context.WithoutCancel(ctx)
		gen := c.generation(alert.ID)
		ch := c.group.DoChan(alert.ID, func() (interface{}, error) {
			return c.compute(computeCtx, alert.ID, text, gen, embed)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			f, _ := res.Val.(*flight)
			if f == nil || f.text != text {
				// Shared a computation for other text; start our own
				continue
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return f.rec.Clone(), nil
		}
	}

	return nil, fmt.Errorf("%w: alert %s changed while its embedding was computed",
		types.ErrEmbeddingUnavailable, alert.ID)
}

// Remove drops the record for alertID from memory and from the store.
// Computations already in flight for alertID finish but are not cached.
func (c *Cache) Remove(ctx context.Context, alertID string) error {
	c.mu.Lock()
	delete(c.records, alertID)
	c.removals[alertID]++
	c.mu.Unlock()
	c.group.Forget(alertID)

	if c.store == nil {
		return nil
	}
	if err := c.store.DeleteEmbeddingRecord(ctx, alertID); err != nil {
		return fmt.Errorf("failed to delete embedding record %s: %w", alertID, err)
	}
	return nil
}

// lookup returns the in-memory record for id if it matches text
func (c *Cache) lookup(id, text string) *types.EmbeddingRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[id]
	if !ok || rec.SourceText != text {
		return nil
	}
	return rec
}

func (c *Cache) generation(id string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.removals[id]
}

// put stores rec unless id was removed after generation gen was read
func (c *Cache) put(rec *types.EmbeddingRecord, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removals[rec.AlertID] != gen {
		return false
	}
	c.records[rec.AlertID] = rec
	return true
}

// compute runs inside the singleflight group for id
func (c *Cache) compute(ctx context.Context, id, text string, gen uint64, embed EmbedFunc) (*flight, error) {
	f := &flight{text: text}

	// A flight that finished just before this one may already hold the answer
	if rec := c.lookup(id, text); rec != nil {
		f.rec = rec
		c.metrics.IncEmbeddingCache(metrics.CacheHit)
		return f, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.computeTimeout)
	defer cancel()

	if rec := c.fromStore(ctx, id, text); rec != nil {
		c.put(rec, gen)
		f.rec = rec
		c.metrics.IncEmbeddingCache(metrics.CacheStoreHit)
		return f, nil
	}

	vec, err := embed(ctx, text)
	if err == nil {
		err = checkVector(vec)
	}
	if err != nil {
		c.metrics.IncEmbeddingCache(metrics.CacheError)
		c.logger.Debug("embedding computation failed", "alert_id", id, "error", err)
		if !errors.Is(err, types.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrEmbeddingUnavailable, err)
		}
		return f, fmt.Errorf("alert %s: %w", id, err)
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	rec := &types.EmbeddingRecord{
		AlertID:     id,
		Vector:      stored,
		SourceText:  text,
		LastUpdated: c.now().UTC(),
	}
	f.rec = rec
	c.metrics.IncEmbeddingCache(metrics.CacheComputed)
	if !c.put(rec, gen) {
		c.logger.Debug("alert removed during embedding, record discarded", "alert_id", id)
		return f, nil
	}

	if c.store != nil {
		if err := c.store.PutEmbeddingRecord(ctx, rec); err != nil {
			c.logger.Warn("failed to persist embedding record", "alert_id", id, "error", err)
		}
		// Remove may have run between put and the store write
		if c.generation(id) != gen {
			if err := c.store.DeleteEmbeddingRecord(ctx, id); err != nil {
				c.logger.Warn("failed to drop embedding record of removed alert", "alert_id", id, "error", err)
			}
		}
	}
	return f, nil
}

// fromStore returns a persisted record for id matching text, or nil
func (c *Cache) fromStore(ctx context.Context, id, text string) *types.EmbeddingRecord {
	if c.store == nil {
		return nil
	}

	rec, err := c.store.GetEmbeddingRecord(ctx, id)
	if err != nil {
		c.logger.Warn("failed to load embedding record", "alert_id", id, "error", err)
		return nil
	}
	if rec == nil || rec.SourceText != text || checkVector(rec.Vector) != nil {
		return nil
	}
	return rec.Clone()
}

func checkVector(vec []float32) error {
	if len(vec) == 0 {
		return errors.New("empty embedding vector")
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return errors.New("embedding vector contains non-finite values")
		}
	}
	return nil
}
