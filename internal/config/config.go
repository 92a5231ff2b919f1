// Package config loads alertwatch configuration from an optional YAML file
// followed by environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/alertwatch-mcp/internal/embedder"
	"github.com/dshills/alertwatch-mcp/internal/geo"
	"github.com/dshills/alertwatch-mcp/internal/ranker"
	"github.com/dshills/alertwatch-mcp/internal/recordstore"
	"github.com/dshills/alertwatch-mcp/internal/retrieval"
	"github.com/dshills/alertwatch-mcp/internal/summarizer"
)

// Environment variables
const (
	EnvConfigPath       = "ALERTWATCH_CONFIG"
	EnvDBPath           = "ALERTWATCH_DB_PATH"
	EnvSimilarityFloor  = "ALERTWATCH_SIMILARITY_FLOOR"
	EnvMaxResults       = "ALERTWATCH_MAX_RESULTS"
	EnvRadiusKm         = "ALERTWATCH_RADIUS_KM"
	EnvConcurrency      = "ALERTWATCH_EMBED_CONCURRENCY"
	EnvRecordStore      = "ALERTWATCH_RECORD_STORE"
	EnvRedisURL         = "ALERTWATCH_REDIS_URL"
	EnvQdrantAddr       = "ALERTWATCH_QDRANT_ADDR"
	EnvGeocoder         = "ALERTWATCH_GEOCODER"
	EnvGeocoderURL      = "ALERTWATCH_GEOCODER_URL"
	EnvSummarizerModel  = "ALERTWATCH_SUMMARIZER_MODEL"
	EnvMetricsAddr      = "ALERTWATCH_METRICS_ADDR"
	EnvLogLevel         = "ALERTWATCH_LOG_LEVEL"
	EnvLogFormat        = "ALERTWATCH_LOG_FORMAT"
	EnvSummarizerAPIKey = embedder.EnvOpenAIAPIKey
)

// Record store backends
const (
	RecordStoreSQLite = "sqlite"
	RecordStoreRedis  = "redis"
	RecordStoreQdrant = "qdrant"
	RecordStoreMemory = "memory"
)

// Geocoder backends
const (
	GeocoderNominatim = "nominatim"
	GeocoderNone      = "none"
)

// Config is the complete alertwatch configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Embedding   embedder.Config   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	RecordStore RecordStoreConfig `yaml:"record_store"`
	Geocoder    GeocoderConfig    `yaml:"geocoder"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig locates the SQLite alert database
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RetrievalConfig holds ranking defaults
type RetrievalConfig struct {
	// Ranking is used for free-text queries
	Ranking ranker.Options `yaml:"ranking"`

	// ListingMaxResults caps radius listings, which use no similarity floor
	ListingMaxResults int `yaml:"listing_max_results"`

	RadiusKm       float64       `yaml:"radius_km"`
	Concurrency    int           `yaml:"concurrency"`
	ComputeTimeout time.Duration `yaml:"compute_timeout"`
}

// RecordStoreConfig selects where embedding records persist
type RecordStoreConfig struct {
	Backend          string        `yaml:"backend"`
	RedisURL         string        `yaml:"redis_url"`
	RedisPrefix      string        `yaml:"redis_prefix"`
	RedisTTL         time.Duration `yaml:"redis_ttl"`
	QdrantAddr       string        `yaml:"qdrant_addr"`
	QdrantCollection string        `yaml:"qdrant_collection"`
}

// GeocoderConfig configures forward geocoding of alert locations
type GeocoderConfig struct {
	Backend           string        `yaml:"backend"`
	BaseURL           string        `yaml:"base_url"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheSize         int           `yaml:"cache_size"`
	Timeout           time.Duration `yaml:"timeout"`
}

// SummarizerConfig configures the answer backend. It is disabled without an API key.
type SummarizerConfig struct {
	Enabled bool                    `yaml:"enabled"`
	OpenAI  summarizer.OpenAIConfig `yaml:"openai"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures slog output
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultDBPath returns ~/.alertwatch/alertwatch.db
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "alertwatch.db"
	}
	return filepath.Join(home, ".alertwatch", "alertwatch.db")
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: DefaultDBPath()},
		Embedding: embedder.Config{
			CacheSize: 10000,
		},
		Retrieval: RetrievalConfig{
			Ranking:           ranker.QueryOptions(),
			ListingMaxResults: ranker.DefaultMaxResults,
			RadiusKm:          geo.DefaultRadiusKm,
			Concurrency:       retrieval.DefaultConcurrency,
			ComputeTimeout:    30 * time.Second,
		},
		RecordStore: RecordStoreConfig{
			Backend:          RecordStoreSQLite,
			RedisPrefix:      recordstore.DefaultRedisPrefix,
			QdrantCollection: recordstore.DefaultQdrantCollection,
		},
		Geocoder: GeocoderConfig{
			Backend:           GeocoderNominatim,
			BaseURL:           geo.DefaultNominatimURL,
			UserAgent:         geo.DefaultUserAgent,
			RequestsPerSecond: geo.DefaultRequestsPerSecond,
			CacheSize:         geo.DefaultGeocodeCacheSize,
			Timeout:           10 * time.Second,
		},
		Summarizer: SummarizerConfig{
			Enabled: true,
			OpenAI: summarizer.OpenAIConfig{
				Model:     summarizer.DefaultOpenAIModel,
				MaxTokens: summarizer.DefaultMaxTokens,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path when non-empty, applies environment
// overrides and validates the result. Environment variables in the format
// ${VAR_NAME} inside the file are expanded.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() error {
	setString(&c.Database.Path, EnvDBPath)
	setString(&c.RecordStore.Backend, EnvRecordStore)
	setString(&c.RecordStore.RedisURL, EnvRedisURL)
	setString(&c.RecordStore.QdrantAddr, EnvQdrantAddr)
	setString(&c.Geocoder.Backend, EnvGeocoder)
	setString(&c.Geocoder.BaseURL, EnvGeocoderURL)
	setString(&c.Summarizer.OpenAI.Model, EnvSummarizerModel)
	setString(&c.Summarizer.OpenAI.APIKey, EnvSummarizerAPIKey)
	setString(&c.Metrics.Addr, EnvMetricsAddr)
	setString(&c.Logging.Level, EnvLogLevel)
	setString(&c.Logging.Format, EnvLogFormat)

	// Embedding provider detection mirrors embedder.NewFromEnv
	if os.Getenv(embedder.EnvEmbeddingProvider) != "" || c.Embedding.Provider == "" {
		c.Embedding.Provider = embedder.DetectProvider()
	}
	setString(&c.Embedding.Model, embedder.EnvEmbeddingModel)

	var errs []error
	if v, ok := os.LookupEnv(EnvSimilarityFloor); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvSimilarityFloor, err))
		} else {
			c.Retrieval.Ranking.SimilarityFloor = f
		}
	}
	if v, ok := os.LookupEnv(EnvMaxResults); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMaxResults, err))
		} else {
			c.Retrieval.Ranking.MaxResults = n
		}
	}
	if v, ok := os.LookupEnv(EnvRadiusKm); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRadiusKm, err))
		} else {
			c.Retrieval.RadiusKm = f
		}
	}
	if v, ok := os.LookupEnv(EnvConcurrency); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvConcurrency, err))
		} else {
			c.Retrieval.Concurrency = n
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}

	if err := c.Retrieval.Ranking.Validate(); err != nil {
		return fmt.Errorf("retrieval.ranking: %w", err)
	}
	if c.Retrieval.Ranking.SimilarityFloor > 1 {
		return fmt.Errorf("retrieval.ranking.similarity_floor %v is above 1", c.Retrieval.Ranking.SimilarityFloor)
	}
	if c.Retrieval.Ranking.MaxResults < 0 || c.Retrieval.ListingMaxResults < 0 {
		return fmt.Errorf("max results cannot be negative")
	}
	if math.IsNaN(c.Retrieval.RadiusKm) || c.Retrieval.RadiusKm <= 0 {
		return fmt.Errorf("retrieval.radius_km must be positive, got %v", c.Retrieval.RadiusKm)
	}
	if c.Retrieval.Concurrency <= 0 {
		return fmt.Errorf("retrieval.concurrency must be positive, got %d", c.Retrieval.Concurrency)
	}
	if c.Retrieval.ComputeTimeout < 0 {
		return fmt.Errorf("retrieval.compute_timeout cannot be negative")
	}

	switch c.RecordStore.Backend {
	case RecordStoreSQLite, RecordStoreMemory:
	case RecordStoreRedis:
		if c.RecordStore.RedisURL == "" {
			return fmt.Errorf("record_store.redis_url is required for the redis backend")
		}
	case RecordStoreQdrant:
		if c.RecordStore.QdrantAddr == "" {
			return fmt.Errorf("record_store.qdrant_addr is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("unknown record_store.backend %q", c.RecordStore.Backend)
	}

	switch c.Geocoder.Backend {
	case GeocoderNominatim, GeocoderNone:
	default:
		return fmt.Errorf("unknown geocoder.backend %q", c.Geocoder.Backend)
	}
	if c.Geocoder.RequestsPerSecond < 0 {
		return fmt.Errorf("geocoder.requests_per_second cannot be negative")
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// ListingOptions returns the ranking options for radius listings
func (c *Config) ListingOptions() ranker.Options {
	opts := c.Retrieval.Ranking
	opts.SimilarityFloor = 0
	opts.MaxResults = c.Retrieval.ListingMaxResults
	return opts
}

// SummarizerEnabled reports whether a summarization backend should be built
func (c *Config) SummarizerEnabled() bool {
	return c.Summarizer.Enabled && c.Summarizer.OpenAI.APIKey != ""
}

// NominatimConfig converts the geocoder section for geo.NewNominatimClient
func (c *Config) NominatimConfig() geo.NominatimConfig {
	return geo.NominatimConfig{
		BaseURL:           c.Geocoder.BaseURL,
		UserAgent:         c.Geocoder.UserAgent,
		RequestsPerSecond: c.Geocoder.RequestsPerSecond,
		CacheSize:         c.Geocoder.CacheSize,
		Timeout:           c.Geocoder.Timeout,
	}
}

// SlogLevel parses the configured level
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid logging.level %q: %w", l.Level, err)
	}
	return level, nil
}
