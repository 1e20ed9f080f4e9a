package health

import "context"

// IndexReadiness reports whether the retrieval index has been populated.
type IndexReadiness interface {
	Ready() bool
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CachePinger checks embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}
