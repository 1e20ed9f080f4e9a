package request

import (
	"fmt"
	"strings"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultTopK    = 10
	MaxTopK        = 500
)

// Request is a validated search query.
type Request struct {
	query    string
	topK     int
	minScore float64
	filters  filter.Filter
}

// New validates and normalizes search parameters.
// An empty query fails with ErrInvalidQuery; topK <= 0 fails with
// ErrInvalidArgument. topK is clamped to MaxTopK. minScore is the cosine
// similarity floor and must lie in [-1, 1].
func New(query string, topK int, minScore float64, filters filter.Filter) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, fmt.Errorf("query is required: %w", domain.ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars): %w", MaxQueryLength, domain.ErrInvalidQuery)
	}
	if topK <= 0 {
		return Request{}, fmt.Errorf("top_k must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if minScore < -1 || minScore > 1 {
		return Request{}, fmt.Errorf("min_score must be between -1 and 1: %w", domain.ErrInvalidArgument)
	}

	return Request{query: query, topK: topK, minScore: minScore, filters: filters}, nil
}

// Query returns the free-text query.
func (r *Request) Query() string { return r.query }

// TopK returns the maximum number of results to return.
func (r *Request) TopK() int { return r.topK }

// MinScore returns the similarity threshold.
func (r *Request) MinScore() float64 { return r.minScore }

// Filters returns the post-filter conjunction.
func (r *Request) Filters() filter.Filter { return r.filters }
