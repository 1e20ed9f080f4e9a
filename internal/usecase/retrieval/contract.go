package retrieval

import (
	"context"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Embedder vectorizes the free-text query.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// VectorSearcher runs top-K nearest-neighbor queries over the index.
type VectorSearcher interface {
	Search(query []float32, k int) ([]domain.Candidate, error)
	Len() int
	IDs() []string
}

// MetadataReader hydrates records by ID.
type MetadataReader interface {
	Get(id string) (domain.GrantRecord, error)
	AllIDs() []string
}
