// Package metrics provides the instrumentation surface used across alertwatch,
// with a no-op default and a Prometheus-backed implementation.
package metrics

import "time"

// Embedding cache outcomes
const (
	CacheHit      = "hit"
	CacheStoreHit = "store_hit"
	CacheComputed = "computed"
	CacheError    = "error"
)

// Summarization outcomes
const (
	SummaryBackend  = "backend"
	SummaryFallback = "fallback"
	SummaryEmpty    = "empty"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	ObserveRetrieval(mode string, success bool, seconds float64, results int)
	IncEmbeddingCache(outcome string)
	ObserveEmbedding(provider string, success bool, seconds float64)
	IncSummarization(outcome string)
	IncGeocode(success bool)
	IncToolTotal(tool string, success bool)
	ObserveToolSeconds(tool string, success bool, seconds float64)
}

// Noop implements Recorder with no-ops.
type Noop struct{}

func (Noop) ObserveRetrieval(string, bool, float64, int) {}
func (Noop) IncEmbeddingCache(string)                     {}
func (Noop) ObserveEmbedding(string, bool, float64)       {}
func (Noop) IncSummarization(string)                      {}
func (Noop) IncGeocode(bool)                              {}
func (Noop) IncToolTotal(string, bool)                    {}
func (Noop) ObserveToolSeconds(string, bool, float64)     {}

// OrNoop returns r, or a Noop recorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}

// TimeTool is a helper to time tool handler calls.
func TimeTool(r Recorder, tool string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		r.IncToolTotal(tool, success)
		r.ObserveToolSeconds(tool, success, dur)
	}
}

// TimeEmbedding is a helper to time embedding backend calls.
func TimeEmbedding(r Recorder, provider string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		r.ObserveEmbedding(provider, success, time.Since(start).Seconds())
	}
}
