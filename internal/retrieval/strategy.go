package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/alertwatch-mcp/internal/embedder"
	"github.com/dshills/alertwatch-mcp/internal/geo"
	"github.com/dshills/alertwatch-mcp/internal/ranker"
	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// Strategy names
const (
	ModeSemantic = "semantic"
	ModeKeyword  = "keyword"
)

// queryState is what strategies see of a query
type queryState struct {
	text      string
	requester *types.Coordinate
	opts      ranker.Options
	embedding []float32
	embedErr  error
}

// Strategy is one way of answering a query
type Strategy interface {
	Name() string

	// CanHandle reports whether the strategy's preconditions hold for the query
	CanHandle(st *queryState) bool

	Run(ctx context.Context, st *queryState) ([]types.RankedResult, error)
}

// semanticStrategy ranks every active alert by embedding similarity and distance
type semanticStrategy struct {
	p *Pipeline
}

func (s *semanticStrategy) Name() string { return ModeSemantic }

func (s *semanticStrategy) CanHandle(st *queryState) bool {
	return st.embedErr == nil && len(st.embedding) > 0
}

func (s *semanticStrategy) Run(ctx context.Context, st *queryState) ([]types.RankedResult, error) {
	alerts, err := s.p.store.FetchActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch active alerts: %w", types.ErrRetrievalFailed, err)
	}

	candidates, err := s.p.ensureAll(ctx, alerts)
	if err != nil {
		return nil, err
	}

	ranked, err := ranker.Rank(st.embedding, candidates, st.requester, st.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRetrievalFailed, err)
	}
	return ranked, nil
}

// ensureAll embeds candidates on a bounded worker pool. A candidate whose
// embedding fails is kept without one. Cancellation stops new embeddings.
// Nil entries are skipped.
func (p *Pipeline) ensureAll(ctx context.Context, alerts []*types.Alert) ([]ranker.Candidate, error) {
	present := make([]*types.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if alert != nil {
			present = append(present, alert)
		}
	}

	candidates := make([]ranker.Candidate, len(present))
	embed := embedder.Func(p.embedder)

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, alert := range present {
		candidates[i].Alert = *alert
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := p.cache.Ensure(ctx, alert, embed)
			if err != nil {
				p.logger.Debug("candidate embedding unavailable",
					"alert_id", alert.ID,
					"error", err)
				return nil
			}
			candidates[i].Embedding = rec.Vector
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// keywordStrategy matches query tokens against alert text. It accepts every
// query and is the last resort when the query could not be embedded.
type keywordStrategy struct {
	p *Pipeline
}

func (s *keywordStrategy) Name() string { return ModeKeyword }

func (s *keywordStrategy) CanHandle(*queryState) bool { return true }

func (s *keywordStrategy) Run(ctx context.Context, st *queryState) ([]types.RankedResult, error) {
	tokens := extractKeywords(st.text)
	if len(tokens) == 0 {
		return []types.RankedResult{}, nil
	}

	alerts, err := s.p.store.FetchActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch active alerts: %w", types.ErrRetrievalFailed, err)
	}

	seen := make(map[string]bool, len(alerts))
	results := make([]types.RankedResult, 0)
	for _, a := range alerts {
		if a == nil || seen[a.ID] || !matchesAny(a, tokens) {
			continue
		}
		seen[a.ID] = true

		r := types.RankedResult{
			Alert:           *a,
			SimilarityScore: types.UnrankedSimilarity,
			Match:           types.MatchKeyword,
		}
		if st.requester != nil && a.HasPosition() {
			if d, err := geo.Distance(*st.requester, *a.Position); err == nil {
				r.DistanceKm = &d
			}
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Alert, results[j].Alert
		if !a.TimeIssued.Equal(b.TimeIssued) {
			return a.TimeIssued.After(b.TimeIssued)
		}
		return a.ID < b.ID
	})

	limit := st.opts.MaxResults
	if limit <= 0 {
		limit = ranker.DefaultMaxResults
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func matchesAny(a *types.Alert, tokens []string) bool {
	haystack := strings.ToLower(a.Title + "\n" + a.Description + "\n" + a.Location)
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
