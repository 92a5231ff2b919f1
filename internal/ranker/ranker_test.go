package ranker

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

var (
	origin = types.Coordinate{Latitude: 0, Longitude: 0}
	query  = []float32{1, 0}
	base   = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
)

// vecWithSim returns a unit vector whose cosine similarity to query is sim
func vecWithSim(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

// northOf returns a position roughly km kilometres north of origin
func northOf(km float64) *types.Coordinate {
	return &types.Coordinate{Latitude: km / 111.195, Longitude: 0}
}

func candidate(id string, sim float64, pos *types.Coordinate) Candidate {
	return Candidate{
		Alert:     types.Alert{ID: id, Title: id, Active: true, Position: pos, TimeIssued: base},
		Embedding: vecWithSim(sim),
	}
}

func ids(results []types.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Alert.ID
	}
	return out
}

func TestRankBlendsSimilarityAndDistance(t *testing.T) {
	candidates := []Candidate{
		candidate("1", 0.9, northOf(2)),
		candidate("2", 0.95, northOf(50)),
		candidate("3", 0.5, northOf(1)),
	}

	results, err := Rank(query, candidates, &origin, QueryOptions())
	require.NoError(t, err)

	require.Equal(t, []string{"2", "1"}, ids(results))
	assert.InDelta(t, 0.85, results[0].CombinedScore, 1e-9)
	assert.InDelta(t, 0.65, results[1].CombinedScore, 1e-9)
	assert.InDelta(t, 0.95, results[0].SimilarityScore, 1e-6)

	require.True(t, results[0].HasDistance())
	assert.InDelta(t, 50, *results[0].DistanceKm, 0.1)
	assert.InDelta(t, 2, *results[1].DistanceKm, 0.1)
	for _, r := range results {
		assert.Equal(t, types.MatchSemantic, r.Match)
	}
}

func TestRankDistanceWeightCanDominate(t *testing.T) {
	candidates := []Candidate{
		candidate("near", 0.8, northOf(1)),
		candidate("far", 0.9, northOf(80)),
	}
	opts := QueryOptions()
	opts.RelevanceWeight = 0.2
	opts.DistanceWeight = 0.8

	results, err := Rank(query, candidates, &origin, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "far"}, ids(results))
}

func TestRankUnknownPositionFallsBackToSimilarity(t *testing.T) {
	candidates := []Candidate{
		candidate("nopos", 0.92, nil),
	}

	results, err := Rank(query, candidates, &origin, QueryOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].DistanceKm)
	assert.InDelta(t, results[0].SimilarityScore, results[0].CombinedScore, 1e-12)
}

func TestRankDistanceKnownFirst(t *testing.T) {
	candidates := []Candidate{
		candidate("unknown-high", 0.99, nil),
		candidate("known-low", 0.71, northOf(40)),
		candidate("bad-pos", 0.98, &types.Coordinate{Latitude: math.NaN()}),
		candidate("known-high", 0.8, northOf(5)),
	}

	results, err := Rank(query, candidates, &origin, QueryOptions())
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, []string{"known-high", "known-low", "unknown-high", "bad-pos"}, ids(results))
	assert.Nil(t, results[3].DistanceKm, "invalid position must not produce a distance")
}

func TestRankWithoutRequester(t *testing.T) {
	candidates := []Candidate{
		candidate("a", 0.75, northOf(1)),
		candidate("b", 0.95, northOf(100)),
	}

	results, err := Rank(query, candidates, nil, QueryOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(results))
	for _, r := range results {
		assert.Nil(t, r.DistanceKm)
	}
}

func TestRankFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	candidates := make([]Candidate, 0, 50)
	for i := 0; i < 50; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("c%02d", i), rng.Float64(), northOf(rng.Float64()*100)))
	}

	opts := QueryOptions()
	opts.MaxResults = 100
	results, err := Rank(query, candidates, &origin, opts)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.SimilarityScore, opts.SimilarityFloor)
	}
}

func TestRankListingModeKeepsEverything(t *testing.T) {
	candidates := []Candidate{
		candidate("low", 0.1, nil),
		{Alert: types.Alert{ID: "no-embedding", TimeIssued: base}},
		candidate("high", 0.9, nil),
	}

	results, err := Rank(query, candidates, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low", "no-embedding"}, ids(results))
	assert.Equal(t, 0.0, results[2].SimilarityScore)
}

func TestRankMissingEmbeddingDroppedByFloor(t *testing.T) {
	candidates := []Candidate{
		{Alert: types.Alert{ID: "no-embedding"}},
		candidate("match", 0.9, nil),
	}

	results, err := Rank(query, candidates, nil, QueryOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"match"}, ids(results))
}

func TestRankCap(t *testing.T) {
	candidates := make([]Candidate, 0, 40)
	for i := 0; i < 40; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("c%02d", i), 0.9, northOf(float64(i))))
	}

	tests := []struct {
		max  int
		want int
	}{
		{5, 5},
		{0, DefaultMaxResults},
		{-3, DefaultMaxResults},
		{100, 40},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max=%d", tt.max), func(t *testing.T) {
			opts := DefaultOptions()
			opts.MaxResults = tt.max
			results, err := Rank(query, candidates, &origin, opts)
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestRankTieBreak(t *testing.T) {
	older := candidate("a-older", 0.9, nil)
	older.Alert.TimeIssued = base.Add(-time.Hour)
	newer := candidate("z-newer", 0.9, nil)
	sameTimeB := candidate("b", 0.9, nil)
	sameTimeA := candidate("a", 0.9, nil)

	results, err := Rank(query, []Candidate{older, sameTimeB, newer, sameTimeA}, nil, QueryOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "z-newer", "a-older"}, ids(results))
}

func TestRankDeduplicates(t *testing.T) {
	first := candidate("dup", 0.9, nil)
	second := candidate("dup", 0.99, nil)

	results, err := Rank(query, []Candidate{first, second, candidate("other", 0.8, nil)}, nil, QueryOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"dup", "other"}, ids(results))
	assert.InDelta(t, 0.9, results[0].SimilarityScore, 1e-6)
}

func TestRankDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	candidates := make([]Candidate, 0, 60)
	for i := 0; i < 60; i++ {
		var pos *types.Coordinate
		if i%3 != 0 {
			pos = northOf(float64(rng.Intn(20)))
		}
		c := candidate(fmt.Sprintf("c%02d", i), 0.7+float64(rng.Intn(4))/10, pos)
		c.Alert.TimeIssued = base.Add(time.Duration(rng.Intn(3)) * time.Hour)
		candidates = append(candidates, c)
	}

	opts := DefaultOptions()
	opts.MaxResults = 60

	first, err := Rank(query, candidates, &origin, opts)
	require.NoError(t, err)
	second, err := Rank(query, candidates, &origin, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Input order does not matter either
	shuffled := make([]Candidate, len(candidates))
	copy(shuffled, candidates)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	third, err := Rank(query, shuffled, &origin, opts)
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(third))
}

func TestRankCompetitionRanking(t *testing.T) {
	// Equal similarity shares the top relevance rank
	candidates := []Candidate{
		candidate("a", 0.9, northOf(10)),
		candidate("b", 0.9, northOf(20)),
		candidate("c", 0.8, northOf(30)),
	}

	results, err := Rank(query, candidates, &origin, QueryOptions())
	require.NoError(t, err)
	require.Len(t, results, 3)

	// a: 0.7*1 + 0.3*1, b: 0.7*1 + 0.3*2/3, c: 0.7*1/3 + 0.3*1/3
	assert.Equal(t, []string{"a", "b", "c"}, ids(results))
	assert.InDelta(t, 1.0, results[0].CombinedScore, 1e-9)
	assert.InDelta(t, 0.9, results[1].CombinedScore, 1e-9)
	assert.InDelta(t, 1.0/3, results[2].CombinedScore, 1e-9)
}

func TestRankInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"nan floor", Options{SimilarityFloor: math.NaN()}},
		{"negative weight", Options{RelevanceWeight: -1, DistanceWeight: 0.3}},
		{"infinite weight", Options{RelevanceWeight: 0.7, DistanceWeight: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rank(query, []Candidate{candidate("a", 0.9, nil)}, nil, tt.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestRankEmptyInput(t *testing.T) {
	results, err := Rank(query, nil, &origin, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = Rank(nil, []Candidate{candidate("a", 0.9, nil)}, nil, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].SimilarityScore)
}
