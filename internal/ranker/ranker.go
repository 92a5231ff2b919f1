package ranker

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/alertwatch-mcp/internal/geo"
	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// Ranking defaults
const (
	DefaultMaxResults      = 10
	DefaultRelevanceWeight = 0.7
	DefaultDistanceWeight  = 0.3

	// QuerySimilarityFloor filters noise out of free-text queries
	QuerySimilarityFloor = 0.7
)

// ErrInvalidOptions is returned when ranking options cannot be applied
var ErrInvalidOptions = errors.New("invalid ranking options")

// Options controls filtering, blending and truncation
type Options struct {
	// SimilarityFloor discards candidates scoring below it.
	// Zero or less keeps every candidate (listing mode).
	SimilarityFloor float64 `json:"similarityFloor" yaml:"similarity_floor"`

	// MaxResults caps the output; zero or less means DefaultMaxResults
	MaxResults int `json:"maxResults" yaml:"max_results"`

	RelevanceWeight float64 `json:"relevanceWeight" yaml:"relevance_weight"`
	DistanceWeight  float64 `json:"distanceWeight" yaml:"distance_weight"`
}

// DefaultOptions returns listing-mode options
func DefaultOptions() Options {
	return Options{
		SimilarityFloor: 0,
		MaxResults:      DefaultMaxResults,
		RelevanceWeight: DefaultRelevanceWeight,
		DistanceWeight:  DefaultDistanceWeight,
	}
}

// QueryOptions returns the options used for free-text queries
func QueryOptions() Options {
	opts := DefaultOptions()
	opts.SimilarityFloor = QuerySimilarityFloor
	return opts
}

// Validate checks that the options are usable
func (o Options) Validate() error {
	if math.IsNaN(o.SimilarityFloor) || math.IsInf(o.SimilarityFloor, 0) {
		return fmt.Errorf("%w: similarity floor %v", ErrInvalidOptions, o.SimilarityFloor)
	}
	if !finiteNonNegative(o.RelevanceWeight) || !finiteNonNegative(o.DistanceWeight) {
		return fmt.Errorf("%w: weights must be finite and non-negative (relevance %v, distance %v)",
			ErrInvalidOptions, o.RelevanceWeight, o.DistanceWeight)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.RelevanceWeight == 0 && o.DistanceWeight == 0 {
		o.RelevanceWeight = DefaultRelevanceWeight
		o.DistanceWeight = DefaultDistanceWeight
	}
	return o
}

func finiteNonNegative(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// Candidate is an alert under consideration, with its embedding if one exists
type Candidate struct {
	Alert types.Alert

	// Embedding is nil when no embedding could be obtained for the alert
	Embedding []float32
}

// HasEmbedding reports whether the candidate carries a usable embedding
func (c *Candidate) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// scored is a candidate during ranking
type scored struct {
	alert      types.Alert
	similarity float64
	distance   float64
	hasDist    bool
	combined   float64
}

// Rank scores candidates against query and returns them ordered best first.
//
// Duplicate alert IDs keep their first occurrence. The output is deterministic
// for identical input: ties on the combined score fall back to the more recent
// TimeIssued and then to the alert ID.
func Rank(query []float32, candidates []Candidate, requester *types.Coordinate, opts Options) ([]types.RankedResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	hasRequester := requester != nil && requester.Valid()

	seen := make(map[string]struct{}, len(candidates))
	pool := make([]*scored, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if _, dup := seen[c.Alert.ID]; dup {
			continue
		}
		seen[c.Alert.ID] = struct{}{}

		sim := CosineSimilarity(query, c.Embedding)
		if opts.SimilarityFloor > 0 && sim < opts.SimilarityFloor {
			continue
		}

		s := &scored{alert: c.Alert, similarity: sim}
		if hasRequester && c.Alert.Position != nil {
			if d, err := geo.Distance(*requester, *c.Alert.Position); err == nil {
				s.distance = d
				s.hasDist = true
			}
		}
		pool = append(pool, s)
	}

	blend(pool, opts)

	sort.SliceStable(pool, func(i, j int) bool {
		return less(pool[i], pool[j])
	})

	if len(pool) > opts.MaxResults {
		pool = pool[:opts.MaxResults]
	}

	results := make([]types.RankedResult, len(pool))
	for i, s := range pool {
		results[i] = types.RankedResult{
			Alert:           s.alert,
			SimilarityScore: s.similarity,
			CombinedScore:   s.combined,
			Match:           types.MatchSemantic,
		}
		if s.hasDist {
			d := s.distance
			results[i].DistanceKm = &d
		}
	}
	return results, nil
}

// blend computes combined scores. Candidates with a distance are ranked
// among themselves; the rest keep their raw similarity.
func blend(pool []*scored, opts Options) {
	located := make([]*scored, 0, len(pool))
	for _, s := range pool {
		if s.hasDist {
			located = append(located, s)
		} else {
			s.combined = s.similarity
		}
	}
	if len(located) == 0 {
		return
	}

	n := float64(len(located))
	simRank := competitionRanks(located, func(a, b *scored) bool { return a.similarity > b.similarity })
	distRank := competitionRanks(located, func(a, b *scored) bool { return a.distance < b.distance })
	for _, s := range located {
		s.combined = opts.RelevanceWeight*(n-float64(simRank[s]))/n +
			opts.DistanceWeight*(n-float64(distRank[s]))/n
	}
}

// competitionRanks returns the 0-based competition rank of each entry under
// better: equal entries share a rank and the next rank skips accordingly.
func competitionRanks(entries []*scored, better func(a, b *scored) bool) map[*scored]int {
	sorted := make([]*scored, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return better(sorted[i], sorted[j]) })

	ranks := make(map[*scored]int, len(sorted))
	for i, s := range sorted {
		if i > 0 && !better(sorted[i-1], s) {
			ranks[s] = ranks[sorted[i-1]]
			continue
		}
		ranks[s] = i
	}
	return ranks
}

func less(a, b *scored) bool {
	if a.hasDist != b.hasDist {
		return a.hasDist
	}
	if a.combined != b.combined {
		return a.combined > b.combined
	}
	if !a.alert.TimeIssued.Equal(b.alert.TimeIssued) {
		return a.alert.TimeIssued.After(b.alert.TimeIssued)
	}
	return a.alert.ID < b.alert.ID
}
