package types

import "errors"

// Retrieval error taxonomy
var (
	// ErrEmbeddingUnavailable is returned when the embedding backend is down, over quota,
	// or rejects its input. Always recovered locally.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrInvalidCoordinate is returned for missing, non-finite or out-of-range coordinates.
	// Callers treat it as "distance unknown", never as zero.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrRetrievalFailed is returned when the alert store or ranking step fails.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrSummarizationUnavailable is returned when the summarization backend fails.
	ErrSummarizationUnavailable = errors.New("summarization unavailable")
)

// Domain errors for type validation
var (
	ErrEmptyAlertID    = errors.New("alert ID cannot be empty")
	ErrEmptyTitle      = errors.New("alert title cannot be empty")
	ErrUnknownSeverity = errors.New("unknown severity")
)
