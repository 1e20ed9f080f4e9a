package router

import (
	"context"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/search/request"
	"github.com/grantwatch/retrieval/internal/domain/search/result"
)

// GrantSearcher runs ranked grant searches.
type GrantSearcher interface {
	SearchGrants(ctx context.Context, req *request.Request) ([]result.Result, error)
}

// MetadataReader hydrates records for the summarize intent and workflows.
type MetadataReader interface {
	Get(id string) (domain.GrantRecord, error)
	AllIDs() []string
}

// Summarizer is the external text-completion tool.
type Summarizer interface {
	Summarize(ctx context.Context, rec domain.GrantRecord) (string, error)
}

// Workflow is a named handler the router can dispatch to.
type Workflow interface {
	Run(ctx context.Context) ([]result.Result, error)
}
