// Package types provides the shared domain types of the alert retrieval engine.
//
// Alert is the read-only input of retrieval. Optional state is explicit: an alert
// whose location has not been geocoded has a nil Position, and HasPosition reports
// whether a usable coordinate is present:
//
//	if alert.HasPosition() {
//	    d, _ := geo.Distance(*requester, *alert.Position)
//	}
//
// EmbeddingRecord holds the vector computed for an alert together with the exact
// text it was derived from, so a stale vector can be detected by comparing texts.
//
// RankedResult is produced per query by the ranker and the keyword fallback. A
// nil DistanceKm means the distance is unknown; it is never reported as zero.
//
// # Errors
//
// The retrieval error taxonomy lives here so every layer can test for it with
// errors.Is:
//
//   - ErrEmbeddingUnavailable: embedding backend failure, recovered locally
//   - ErrInvalidCoordinate: bad position, recovered by omitting distance
//   - ErrRetrievalFailed: store or ranking failure, surfaced to the caller
//   - ErrSummarizationUnavailable: LLM failure, recovered with a template
package types
