package embedder

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default endpoints
	DefaultOpenAIURL = "https://api.openai.com/v1"
	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultOllamaURL = "http://localhost:11434"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "hashed-bow"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	OllamaDimension = 768
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	defaultHTTPTimeout = 30 * time.Second
)

// ProviderOption configures a remote provider
type ProviderOption func(*providerOptions)

type providerOptions struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
}

// WithBaseURL overrides the API base URL
func WithBaseURL(u string) ProviderOption {
	return func(o *providerOptions) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel overrides the model and, when dim > 0, its dimension
func WithModel(model string, dim int) ProviderOption {
	return func(o *providerOptions) {
		if model != "" {
			o.model = model
		}
		if dim > 0 {
			o.dimension = dim
		}
	}
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(o *providerOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithRateLimit limits backend calls to rps requests per second
func WithRateLimit(rps float64, burst int) ProviderOption {
	return func(o *providerOptions) {
		if rps <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the retry policy
func WithRetry(cfg RetryConfig) ProviderOption {
	return func(o *providerOptions) {
		o.retry = cfg
	}
}

func buildOptions(baseURL, model string, dim int, opts []ProviderOption) providerOptions {
	o := providerOptions{
		baseURL:    baseURL,
		model:      model,
		dimension:  dim,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *providerOptions) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// RemoteProvider implements Embedder against an OpenAI-compatible
// /embeddings endpoint. Both OpenAI and Jina AI speak this format.
type RemoteProvider struct {
	name   string
	apiKey string
	opts   providerOptions
	cache  *Cache
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*RemoteProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	return &RemoteProvider{
		name:   ProviderOpenAI,
		apiKey: apiKey,
		opts:   buildOptions(DefaultOpenAIURL, DefaultOpenAIModel, OpenAIDimension, opts),
		cache:  cache,
	}, nil
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(apiKey string, cache *Cache, opts ...ProviderOption) (*RemoteProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	return &RemoteProvider{
		name:   ProviderJina,
		apiKey: apiKey,
		opts:   buildOptions(DefaultJinaURL, DefaultJinaModel, JinaDimension, opts),
		cache:  cache,
	}, nil
}

func (r *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, r, r.cache, req)
}

func (r *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = r.opts.model
	}

	embeddings, err := retryWithBackoff(ctx, r.opts.retry, func() ([]*Embedding, error) {
		return r.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, r.name, err)
	}

	cacheBatch(r.cache, model, req.Texts, embeddings)

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   r.name,
		Model:      model,
	}, nil
}

func (r *RemoteProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	if err := r.opts.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": model,
	})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := doJSON(r.opts.httpClient, req, &apiResp); err != nil {
		return nil, err
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}
	if apiResp.Model == "" {
		apiResp.Model = model
	}

	embeddings := make([]*Embedding, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) || embeddings[data.Index] != nil {
			return nil, fmt.Errorf("invalid embedding index %d", data.Index)
		}
		embeddings[data.Index] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  r.name,
			Model:     apiResp.Model,
		}
	}

	return embeddings, nil
}

func (r *RemoteProvider) Dimension() int {
	return r.opts.dimension
}

func (r *RemoteProvider) Provider() string {
	return r.name
}

func (r *RemoteProvider) Model() string {
	return r.opts.model
}

func (r *RemoteProvider) Close() error {
	r.opts.httpClient.CloseIdleConnections()
	return nil
}

// OllamaProvider implements Embedder using a local Ollama server
type OllamaProvider struct {
	opts  providerOptions
	cache *Cache
}

// NewOllamaProvider creates an Ollama embedder. An empty baseURL uses
// OLLAMA_HOST, then DefaultOllamaURL.
func NewOllamaProvider(baseURL string, cache *Cache, opts ...ProviderOption) *OllamaProvider {
	if baseURL == "" {
		baseURL = os.Getenv(EnvOllamaHost)
	}
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	return &OllamaProvider{
		opts:  buildOptions(strings.TrimRight(baseURL, "/"), DefaultOllamaModel, OllamaDimension, opts),
		cache: cache,
	}
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, o, o.cache, req)
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.opts.model
	}

	// The embeddings endpoint takes one prompt per call
	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		vec, err := retryWithBackoff(ctx, o.opts.retry, func() ([]float32, error) {
			return o.callAPI(ctx, text, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: ollama text %d: %w", ErrProviderFailed, i, err)
		}
		embeddings[i] = &Embedding{
			Vector:    vec,
			Dimension: len(vec),
			Provider:  ProviderOllama,
			Model:     model,
		}
	}

	cacheBatch(o.cache, model, req.Texts, embeddings)

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      model,
	}, nil
}

func (o *OllamaProvider) callAPI(ctx context.Context, text, model string) ([]float32, error) {
	if err := o.opts.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"model": model, "prompt": text})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := doJSON(o.opts.httpClient, req, &result); err != nil {
		return nil, err
	}
	if len(result.Embedding) == 0 {
		return nil, permanent(fmt.Errorf("ollama returned an empty embedding for model %s", model))
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func (o *OllamaProvider) Dimension() int {
	return o.opts.dimension
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.opts.model
}

func (o *OllamaProvider) Close() error {
	o.opts.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by feature hashing its words and
// adjacent word pairs into a fixed-size unit vector. Texts sharing
// vocabulary score high cosine similarity, which is enough for keyword-like
// semantic matching without a model server.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: LocalDimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, l, l.cache, req)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = &Embedding{
			Vector:    l.embed(text),
			Dimension: l.dimension,
			Provider:  ProviderLocal,
			Model:     l.model,
		}
	}

	cacheBatch(l.cache, l.model, req.Texts, embeddings)

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	add := func(feature string, weight float32) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vector[idx] += weight
	}

	for i, w := range words {
		add(w, 1)
		if i > 0 {
			add(words[i-1]+" "+w, 0.5)
		}
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// generateOne serves a single request from cache or a one-text batch
func generateOne(ctx context.Context, e Embedder, cache *Cache, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = e.Model()
	}

	hash := ComputeHash(model, req.Text)
	if cache != nil {
		if emb, ok := cache.Get(hash); ok {
			return emb, nil
		}
	}

	resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Vector) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func cacheBatch(cache *Cache, model string, texts []string, embeddings []*Embedding) {
	for i, emb := range embeddings {
		emb.Hash = ComputeHash(model, texts[i])
		if cache != nil && len(emb.Vector) > 0 {
			cache.Set(emb.Hash, emb)
		}
	}
}

// doJSON executes req and decodes a 200 response into out
func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
