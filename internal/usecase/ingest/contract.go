package ingest

import (
	"context"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Embedder vectorizes texts for index entries.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// VectorWriter upserts vectors into the index.
type VectorWriter interface {
	Add(id string, vec []float32) error
	Len() int
}

// MetadataWriter stores grant records.
type MetadataWriter interface {
	Put(rec domain.GrantRecord)
}

// Snapshotter persists both stores after a successful batch.
type Snapshotter interface {
	Flush(ctx context.Context) error
}
