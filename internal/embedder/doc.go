// Package embedder turns alert and query text into vector embeddings.
//
// Providers:
//
//   - openai: OpenAI /v1/embeddings (text-embedding-3-small, 1536 dimensions)
//   - jina: Jina AI, same wire format as OpenAI (1024 dimensions)
//   - ollama: a local Ollama server's /api/embeddings (nomic-embed-text, 768 dimensions)
//   - local: offline feature hashing of words and word pairs (384 dimensions)
//
// Remote providers retry transient failures (network errors, 429 and 5xx)
// with exponential backoff and can be rate limited with WithRateLimit.
// Every provider failure wraps types.ErrEmbeddingUnavailable:
//
//	emb, err := e.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
//	if errors.Is(err, types.ErrEmbeddingUnavailable) {
//	    // fall back to keyword matching
//	}
//
// # Provider Selection
//
//  1. If ALERTWATCH_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if OPENAI_API_KEY is set → use OpenAI
//  3. Else if JINA_API_KEY is set → use Jina AI
//  4. Else if OLLAMA_HOST is set → use Ollama
//  5. Else → local provider (offline mode)
//
// # Caching
//
// Each provider can share an LRU Cache keyed by model and text, so repeated
// query strings are embedded once. Per-alert embeddings are owned by the
// embedcache package, not by this cache.
package embedder
