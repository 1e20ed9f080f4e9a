// Package retrieval composes the embedder, vector index, and metadata store
// into the grant search engine.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/search/request"
	"github.com/grantwatch/retrieval/internal/domain/search/result"
)

// Overfetch defaults compensating for post-filter attrition.
const (
	DefaultOverfetchFactor = 3
	DefaultFilterMargin    = 20
)

// Service answers ranked, filtered grant searches.
type Service struct {
	embed     Embedder
	index     VectorSearcher
	meta      MetadataReader
	overfetch int
	margin    int
	logger    *zap.Logger
}

// New creates a retrieval service.
func New(embed Embedder, index VectorSearcher, meta MetadataReader, logger *zap.Logger) *Service {
	return &Service{
		embed:     embed,
		index:     index,
		meta:      meta,
		overfetch: DefaultOverfetchFactor,
		margin:    DefaultFilterMargin,
		logger:    logger,
	}
}

// WithOverfetch configures the oversampling factor and filter margin used to
// size the candidate pull K' = max(topK*factor, topK+margin).
func (s *Service) WithOverfetch(factor, margin int) *Service {
	if factor >= 1 {
		s.overfetch = factor
	}
	if margin >= 0 {
		s.margin = margin
	}
	return s
}

// Ready reports whether the index has been populated by ingestion.
func (s *Service) Ready() bool { return s.index.Len() > 0 }

// SearchGrants runs the full retrieval pipeline: embed the query, pull an
// oversampled candidate set, hydrate, apply the similarity threshold and the
// post-filter conjunction, then sort and truncate to topK. When fewer than
// topK results survive filtering the remainder is returned as-is; re-querying
// with a larger K' is a caller decision.
func (s *Service) SearchGrants(ctx context.Context, req *request.Request) ([]result.Result, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("ingest records before searching: %w", domain.ErrIndexNotReady)
	}

	emb, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	query := emb.Embedding
	domain.NormalizeVector(query)

	kPrime := req.TopK() * s.overfetch
	if min := req.TopK() + s.margin; kPrime < min {
		kPrime = min
	}

	candidates, err := s.index.Search(query, kPrime)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	results := make([]result.Result, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < req.MinScore() {
			continue
		}

		rec, err := s.meta.Get(c.OpportunityID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Index/metadata drift: drop the orphan and keep serving.
				s.logger.Warn("Dropping orphaned index entry",
					zap.String("opportunity_id", c.OpportunityID),
					zap.Error(domain.ErrInconsistent),
				)
				continue
			}
			return nil, fmt.Errorf("hydrate %s: %w", c.OpportunityID, err)
		}

		if !req.Filters().Matches(&rec) {
			continue
		}

		results = append(results, result.New(c.OpportunityID, c.Score, rec))
	}

	result.Sort(results)
	if len(results) > req.TopK() {
		results = results[:req.TopK()]
	}
	return results, nil
}

// CheckConsistency compares the index ID set against the metadata key set.
// Drift is reported as ErrInconsistent naming the orphaned IDs; callers log
// it and keep serving (orphans self-heal at query time).
func (s *Service) CheckConsistency() error {
	indexIDs := s.index.IDs()
	metaIDs := s.meta.AllIDs()

	metaSet := make(map[string]struct{}, len(metaIDs))
	for _, id := range metaIDs {
		metaSet[id] = struct{}{}
	}

	var orphans []string
	for _, id := range indexIDs {
		if _, ok := metaSet[id]; !ok {
			orphans = append(orphans, id)
		}
	}

	indexSet := make(map[string]struct{}, len(indexIDs))
	for _, id := range indexIDs {
		indexSet[id] = struct{}{}
	}
	var unindexed []string
	for _, id := range metaIDs {
		if _, ok := indexSet[id]; !ok {
			unindexed = append(unindexed, id)
		}
	}

	if len(orphans) == 0 && len(unindexed) == 0 {
		return nil
	}
	sort.Strings(orphans)
	sort.Strings(unindexed)
	return fmt.Errorf("%d index entries without metadata %v, %d records without vectors %v: %w",
		len(orphans), orphans, len(unindexed), unindexed, domain.ErrInconsistent)
}
