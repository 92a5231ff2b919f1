package retrieval

import (
	"log/slog"

	"github.com/dshills/alertwatch-mcp/internal/metrics"
	"github.com/dshills/alertwatch-mcp/internal/ranker"
	"github.com/dshills/alertwatch-mcp/internal/summarizer"
)

// DefaultConcurrency bounds concurrent candidate embeddings per query
const DefaultConcurrency = 4

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSummarizer sets the summarization backend used by Answer
func WithSummarizer(s summarizer.Summarizer) Option {
	return func(p *Pipeline) {
		p.summarizer = s
	}
}

// WithDefaultOptions sets the ranking options used when a query carries none
func WithDefaultOptions(opts ranker.Options) Option {
	return func(p *Pipeline) {
		p.defaults = opts
	}
}

// WithConcurrency bounds concurrent candidate embeddings
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.metrics = metrics.OrNoop(r)
	}
}
