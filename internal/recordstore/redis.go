package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// DefaultRedisPrefix namespaces embedding keys
const DefaultRedisPrefix = "alertwatch:embedding:"

// Redis stores embedding records as JSON strings
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a Redis store
type RedisOption func(*Redis)

// WithPrefix overrides the key prefix
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithTTL expires records after ttl; zero keeps them until deleted
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewRedis creates a Redis-backed record store
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisFromURL parses a redis:// URL and creates a store
func NewRedisFromURL(ctx context.Context, rawURL string, opts ...RedisOption) (*Redis, error) {
	o, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, opts...), nil
}

// GetEmbeddingRecord returns the record for alertID, or nil if none is stored
func (r *Redis) GetEmbeddingRecord(ctx context.Context, alertID string) (*types.EmbeddingRecord, error) {
	val, err := r.client.Get(ctx, r.key(alertID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", alertID, err)
	}

	var rec types.EmbeddingRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decode embedding record %s: %w", alertID, err)
	}
	return &rec, nil
}

// PutEmbeddingRecord stores rec, replacing any previous record for the alert
func (r *Redis) PutEmbeddingRecord(ctx context.Context, rec *types.EmbeddingRecord) error {
	if rec == nil || rec.AlertID == "" {
		return types.ErrEmptyAlertID
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode embedding record %s: %w", rec.AlertID, err)
	}
	if err := r.client.Set(ctx, r.key(rec.AlertID), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", rec.AlertID, err)
	}
	return nil
}

// DeleteEmbeddingRecord removes the record for alertID
func (r *Redis) DeleteEmbeddingRecord(ctx context.Context, alertID string) error {
	if err := r.client.Del(ctx, r.key(alertID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", alertID, err)
	}
	return nil
}

// Close closes the underlying client
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(alertID string) string {
	return r.prefix + alertID
}
