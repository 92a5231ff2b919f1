package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/alertwatch-mcp/internal/embedcache"
	"github.com/dshills/alertwatch-mcp/internal/embedder"
	"github.com/dshills/alertwatch-mcp/internal/metrics"
	"github.com/dshills/alertwatch-mcp/internal/ranker"
	"github.com/dshills/alertwatch-mcp/internal/summarizer"
	"github.com/dshills/alertwatch-mcp/pkg/types"
)

const tracerName = "github.com/dshills/alertwatch-mcp/internal/retrieval"

// AlertStore is the subset of the alert store retrieval reads from.
// Nil entries in FetchActiveAlerts results are tolerated and skipped by every strategy.
type AlertStore interface {
	FetchActiveAlerts(ctx context.Context) ([]*types.Alert, error)
}

// Query is one retrieval request
type Query struct {
	Text string

	// Requester is the caller's position; nil when unknown
	Requester *types.Coordinate

	// Options overrides the pipeline's default ranking options
	Options *ranker.Options
}

// Result is the outcome of Retrieve
type Result struct {
	Alerts       []types.RankedResult
	SummaryInput summarizer.Input

	// Mode names the strategy that produced the result
	Mode string

	// QueryEmbeddingErr records why the query could not be embedded, if it could not
	QueryEmbeddingErr error

	Duration time.Duration
}

// Answer is a retrieval result together with its prose answer
type Answer struct {
	*Result
	Text string

	// Summarized is false when the templated fallback was used
	Summarized bool
}

// Pipeline coordinates query embedding, candidate embedding and ranking
type Pipeline struct {
	store       AlertStore
	embedder    embedder.Embedder
	cache       *embedcache.Cache
	summarizer  summarizer.Summarizer
	defaults    ranker.Options
	concurrency int
	strategies  []Strategy
	logger      *slog.Logger
	metrics     metrics.Recorder
	tracer      trace.Tracer
}

// New creates a retrieval pipeline
func New(store AlertStore, emb embedder.Embedder, cache *embedcache.Cache, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		embedder:    emb,
		cache:       cache,
		defaults:    ranker.QueryOptions(),
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		metrics:     metrics.Noop{},
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = embedcache.New(embedcache.WithLogger(p.logger), embedcache.WithMetrics(p.metrics))
	}

	// Evaluated in order; the first strategy that can handle the query runs
	p.strategies = []Strategy{
		&semanticStrategy{p: p},
		&keywordStrategy{p: p},
	}
	return p
}

// Retrieve ranks active alerts against the query
func (p *Pipeline) Retrieve(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "retrieval.Retrieve",
		trace.WithAttributes(attribute.Bool("requester.known", q.Requester != nil)))
	defer span.End()

	res, err := p.retrieve(ctx, q)

	mode := "none"
	results := 0
	if res != nil {
		mode = res.Mode
		results = len(res.Alerts)
		res.Duration = time.Since(start)
		span.SetAttributes(
			attribute.String("retrieval.mode", mode),
			attribute.Int("retrieval.results", results),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.metrics.ObserveRetrieval(mode, err == nil, time.Since(start).Seconds(), results)
	return res, err
}

func (p *Pipeline) retrieve(ctx context.Context, q Query) (*Result, error) {
	opts := p.defaults
	if q.Options != nil {
		opts = *q.Options
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRetrievalFailed, err)
	}

	st := &queryState{
		text:      strings.TrimSpace(q.Text),
		requester: p.requester(q.Requester),
		opts:      opts,
	}

	st.embedding, st.embedErr = p.embedQuery(ctx, st.text)
	if st.embedErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("query embedding unavailable, falling back to keyword match",
			"error", st.embedErr)
	}

	for _, s := range p.strategies {
		if !s.CanHandle(st) {
			continue
		}

		sctx, span := p.tracer.Start(ctx, "retrieval.strategy."+s.Name())
		alerts, err := s.Run(sctx, st)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return nil, err
		}

		return &Result{
			Alerts:            alerts,
			SummaryInput:      summarizer.NewInput(st.text, st.requester, alerts),
			Mode:              s.Name(),
			QueryEmbeddingErr: st.embedErr,
		}, nil
	}

	// The keyword strategy accepts every query
	return nil, fmt.Errorf("%w: no strategy can handle the query", types.ErrRetrievalFailed)
}

// requester drops an unusable position rather than ranking against it
func (p *Pipeline) requester(c *types.Coordinate) *types.Coordinate {
	if c == nil {
		return nil
	}
	if !c.Valid() {
		p.logger.Warn("ignoring invalid requester position",
			"error", fmt.Errorf("%w: %v", types.ErrInvalidCoordinate, *c))
		return nil
	}
	pos := *c
	return &pos
}

func (p *Pipeline) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding backend configured", types.ErrEmbeddingUnavailable)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrEmbeddingUnavailable)
	}

	emb, err := p.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
	if err == nil && (emb == nil || len(emb.Vector) == 0) {
		err = fmt.Errorf("%w: empty query vector", types.ErrEmbeddingUnavailable)
	}
	if err != nil {
		if !errors.Is(err, types.ErrEmbeddingUnavailable) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", types.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}
	return emb.Vector, nil
}

// Answer retrieves and then summarizes. Summarization failures fall back to
// the templated answer; the ranked alerts are returned either way.
func (p *Pipeline) Answer(ctx context.Context, q Query) (*Answer, error) {
	ctx, span := p.tracer.Start(ctx, "retrieval.Answer")
	defer span.End()

	res, err := p.Retrieve(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(res.Alerts) == 0 {
		p.metrics.IncSummarization(metrics.SummaryEmpty)
		return &Answer{Result: res, Text: summarizer.NoResultsAnswer}, nil
	}

	if p.summarizer != nil {
		text, err := p.summarizer.Summarize(ctx, res.SummaryInput)
		if err == nil {
			p.metrics.IncSummarization(metrics.SummaryBackend)
			return &Answer{Result: res, Text: text, Summarized: true}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("summarization unavailable, using template", "error", err)
		span.SetAttributes(attribute.Bool("summary.fallback", true))
	}

	p.metrics.IncSummarization(metrics.SummaryFallback)
	return &Answer{Result: res, Text: summarizer.Template(res.SummaryInput)}, nil
}
