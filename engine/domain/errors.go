package domain

import "errors"

// Sentinel errors for the engine. Components wrap these with context via
// fmt.Errorf("...: %w", ...); the transport layer maps them to
// machine-readable kinds through KindOf.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrInvalidDocument       = errors.New("invalid document")
	ErrPayloadTooLarge       = errors.New("payload too large")
	ErrNoExtractableText     = errors.New("no extractable text")
	ErrSessionNotFound       = errors.New("session not found")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
	ErrEmbeddingCorrupt      = errors.New("embedding contains non-finite components")
	ErrEmbedderUnavailable   = errors.New("embedding provider unavailable")
	ErrCompletionUnavailable = errors.New("completion provider unavailable")
	ErrRateLimited           = errors.New("rate limited")
	ErrChunkConfig           = errors.New("invalid chunk configuration")
)

// KindOf returns the short machine-readable kind for an engine error.
// Unrecognised errors report as "internal".
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidDocument):
		return "invalid_document"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrNoExtractableText):
		return "no_extractable_text"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrEmbeddingCorrupt):
		return "embedding_corrupt"
	case errors.Is(err, ErrEmbedderUnavailable):
		return "embedder_unavailable"
	case errors.Is(err, ErrCompletionUnavailable):
		return "completion_unavailable"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrChunkConfig):
		return "invalid_argument"
	default:
		return "internal"
	}
}
