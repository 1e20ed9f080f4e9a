package domain

import "errors"

var (
	// ErrInvalidQuery signals an empty or malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidArgument signals an out-of-range caller argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound signals a missing record.
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch signals a vector whose dimension differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIncompatibleIndex signals a persisted snapshot built with a different
	// embedding model or dimension.
	ErrIncompatibleIndex = errors.New("incompatible index snapshot")
	// ErrInconsistent signals drift between the vector index and the metadata store.
	ErrInconsistent = errors.New("index/metadata inconsistent")
	// ErrIndexNotReady signals that no ingestion has populated the index yet.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrUnroutableQuery signals a request no routing rule matched.
	ErrUnroutableQuery = errors.New("unroutable query")
	// ErrExternalToolTimeout signals a timed-out summarizer call.
	ErrExternalToolTimeout = errors.New("external tool timeout")
	// ErrExternalToolError signals a failed summarizer call.
	ErrExternalToolError = errors.New("external tool error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit at the embedding provider.
	ErrRateLimited = errors.New("rate limited")
)
