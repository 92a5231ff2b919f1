package types

// MatchKind records how a result entered the result set
type MatchKind string

const (
	MatchSemantic MatchKind = "semantic"
	MatchKeyword  MatchKind = "keyword"
)

// UnrankedSimilarity is the similarity reported for keyword matches,
// which are matched but not ranked by embedding similarity.
const UnrankedSimilarity = -1.0

// RankedResult is an alert with its retrieval scores. It is never persisted.
type RankedResult struct {
	Alert Alert `json:"alert"`

	// SimilarityScore is the cosine similarity to the query, or UnrankedSimilarity
	SimilarityScore float64 `json:"similarity"`

	// DistanceKm is nil when either the requester or the alert position is unknown
	DistanceKm *float64 `json:"distanceKm,omitempty"`

	// CombinedScore only orders results; it carries no meaning of its own
	CombinedScore float64 `json:"-"`

	Match MatchKind `json:"match"`
}

// HasDistance reports whether a distance was computed for the result
func (r *RankedResult) HasDistance() bool {
	return r.DistanceKm != nil
}
