package embedder

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment variables read by NewFromEnv
const (
	EnvEmbeddingProvider = "ALERTWATCH_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "ALERTWATCH_EMBEDDING_MODEL"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvJinaAPIKey        = "JINA_API_KEY"
	EnvOllamaHost        = "OLLAMA_HOST"
)

// Config holds embedder configuration
type Config struct {
	Provider          string        `yaml:"provider"`
	APIKey            string        `yaml:"-"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Dimension         int           `yaml:"dimension"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. ALERTWATCH_EMBEDDING_PROVIDER (openai, jina, ollama, local)
// 2. Check for API keys: OPENAI_API_KEY, JINA_API_KEY, then OLLAMA_HOST
// 3. Default to local if nothing is configured
func NewFromEnv() (Embedder, error) {
	return New(Config{
		Provider:  DetectProvider(),
		Model:     os.Getenv(EnvEmbeddingModel),
		CacheSize: 10000,
	})
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	opts := []ProviderOption{
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model, cfg.Dimension),
		WithRateLimit(cfg.RequestsPerSecond, 1),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache, opts...)
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache, opts...)
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cache, opts...), nil
	case ProviderLocal:
		return NewLocalProvider(cache)
	case "":
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvEmbeddingProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOllamaHost) != "" {
		return ProviderOllama
	}

	return ProviderLocal
}
