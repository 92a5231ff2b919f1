package embedder

import (
	"context"

	"github.com/dshills/alertwatch-mcp/internal/metrics"
)

// Instrumented wraps an Embedder and records call latency and outcome
type Instrumented struct {
	Embedder
	metrics metrics.Recorder
}

// NewInstrumented wraps e with metrics recording
func NewInstrumented(e Embedder, r metrics.Recorder) *Instrumented {
	return &Instrumented{Embedder: e, metrics: metrics.OrNoop(r)}
}

func (i *Instrumented) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	done := metrics.TimeEmbedding(i.metrics, i.Provider())
	emb, err := i.Embedder.GenerateEmbedding(ctx, req)
	done(err == nil)
	return emb, err
}

func (i *Instrumented) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	done := metrics.TimeEmbedding(i.metrics, i.Provider())
	resp, err := i.Embedder.GenerateBatch(ctx, req)
	done(err == nil)
	return resp, err
}
