// Package retrieval answers free-text questions about public alerts.
//
// A query is embedded once, then handed to the first strategy that can serve
// it. The semantic strategy ensures an embedding for every active alert via the
// shared embedding cache and ranks them by similarity blended with distance.
// When the query cannot be embedded, the keyword strategy matches query tokens
// against alert text instead. Either way the caller receives a ranked list and
// a summary input; Answer additionally turns that into prose, falling back to
// a template when the summarization backend is unavailable.
//
// # Errors
//
// Store and ranking failures wrap types.ErrRetrievalFailed. Embedding and
// summarization failures are recovered inside the pipeline and never returned.
package retrieval
