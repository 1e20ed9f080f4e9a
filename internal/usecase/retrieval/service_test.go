package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/search/filter"
	"github.com/grantwatch/retrieval/internal/domain/search/request"
	"github.com/grantwatch/retrieval/internal/index"
	"github.com/grantwatch/retrieval/internal/repository/metadata"
	"github.com/grantwatch/retrieval/internal/transport/local"
)

const testDim = 256

type fixture struct {
	svc   *Service
	embed *local.Embedder
	index *index.Flat
	meta  *metadata.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	embed := local.NewEmbedder("hash-v1", testDim)
	idx, err := index.New("hash-v1", testDim)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	meta := metadata.New("hash-v1", testDim)
	return &fixture{
		svc:   New(embed, idx, meta, zap.NewNop()),
		embed: embed,
		index: idx,
		meta:  meta,
	}
}

func (f *fixture) ingest(t *testing.T, recs ...domain.GrantRecord) {
	t.Helper()
	for _, rec := range recs {
		res, err := f.embed.Embed(context.Background(), rec.EmbeddingText())
		if err != nil {
			t.Fatalf("embed %s: %v", rec.OpportunityID(), err)
		}
		f.meta.Put(rec)
		if err := f.index.Add(rec.OpportunityID(), res.Embedding); err != nil {
			t.Fatalf("index %s: %v", rec.OpportunityID(), err)
		}
	}
}

func grant(id, title, agency string, posted time.Time) domain.GrantRecord {
	return domain.ReconstructGrantRecord(id, title, agency, "", "", "", posted, time.Time{})
}

func mustRequest(t *testing.T, query string, topK int, minScore float64, f filter.Filter) request.Request {
	t.Helper()
	req, err := request.New(query, topK, minScore, f)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return req
}

func TestSearchGrants_NotReady(t *testing.T) {
	f := newFixture(t)
	req := mustRequest(t, "anything", 5, 0, filter.Filter{})

	_, err := f.svc.SearchGrants(context.Background(), &req)
	if !errors.Is(err, domain.ErrIndexNotReady) {
		t.Errorf("err = %v, want ErrIndexNotReady", err)
	}
}

func TestSearchGrants_FewerRecordsThanTopK(t *testing.T) {
	f := newFixture(t)
	f.ingest(t,
		grant("g-1", "Solar panel research", "DOE", time.Time{}),
		grant("g-2", "Wind turbine development", "DOE", time.Time{}),
	)

	req := mustRequest(t, "renewable energy", 5, -1, filter.Filter{})
	results, err := f.svc.SearchGrants(context.Background(), &req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want all 2 without padding", len(results))
	}
}

func TestSearchGrants_ExactTitleRanksFirst(t *testing.T) {
	f := newFixture(t)
	f.ingest(t,
		grant("g-1", "Quantum computing research initiative", "NSF", time.Time{}),
		grant("g-2", "Rural broadband infrastructure", "USDA", time.Time{}),
		grant("g-3", "Pediatric cancer treatment studies", "NIH", time.Time{}),
	)

	req := mustRequest(t, "Quantum computing research initiative", 3, -1, filter.Filter{})
	results, err := f.svc.SearchGrants(context.Background(), &req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 || results[0].OpportunityID() != "g-1" {
		t.Fatalf("top hit = %v, want g-1", results)
	}
	rec := results[0].Record()
	if rec.Title() != "Quantum computing research initiative" {
		t.Errorf("hydrated title = %q", rec.Title())
	}
}

func TestSearchGrants_AgencyFilter(t *testing.T) {
	f := newFixture(t)
	f.ingest(t,
		grant("g-1", "AI research", "NSF", time.Time{}),
		grant("g-2", "AI research too", "DOE", time.Time{}),
		grant("g-3", "AI research as well", "NSF", time.Time{}),
	)

	req := mustRequest(t, "AI research", 10, -1,
		filter.New("NSF", "", "", time.Time{}, time.Time{}))
	results, err := f.svc.SearchGrants(context.Background(), &req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 NSF grants", len(results))
	}
	for _, r := range results {
		rec := r.Record()
		if rec.Agency() != "NSF" {
			t.Errorf("result %s has agency %q", r.OpportunityID(), rec.Agency())
		}
	}
}

func TestSearchGrants_ThresholdFiltersWeakMatches(t *testing.T) {
	f := newFixture(t)
	f.ingest(t,
		grant("g-1", "Marine biology coral reefs", "NOAA", time.Time{}),
		grant("g-2", "Highway bridge maintenance", "DOT", time.Time{}),
	)

	// A near-exact query with a high floor keeps the match and drops the rest.
	req := mustRequest(t, "Marine biology coral reefs", 10, 0.8, filter.Filter{})
	results, err := f.svc.SearchGrants(context.Background(), &req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].OpportunityID() != "g-1" {
		t.Errorf("results = %v, want only g-1 above the floor", results)
	}
}

func TestSearchGrants_TruncatesToTopK(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"g-1", "g-2", "g-3", "g-4", "g-5"} {
		f.ingest(t, grant(id, "Energy storage "+id, "DOE", time.Time{}))
	}

	req := mustRequest(t, "Energy storage", 2, -1, filter.Filter{})
	results, err := f.svc.SearchGrants(context.Background(), &req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want topK=2", len(results))
	}
}

func TestSearchGrants_DropsOrphanedIndexEntries(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, grant("g-1", "Clean water systems", "EPA", time.Time{}))

	// Index an entry with no metadata record behind it.
	res, _ := f.embed.Embed(context.Background(), "Clean water systems")
	if err := f.index.Add("orphan", res.Embedding); err != nil {
		t.Fatalf("index: %v", err)
	}

	req := mustRequest(t, "Clean water systems", 10, -1, filter.Filter{})
	results, err := f.svc.SearchGrants(context.Background(), &req)
	if err != nil {
		t.Fatalf("search must not fail on orphans: %v", err)
	}
	if len(results) != 1 || results[0].OpportunityID() != "g-1" {
		t.Errorf("results = %v, want the orphan silently dropped", results)
	}
}

func TestSearchGrants_UpsertServesLatestRecord(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, grant("g-1", "Original solar research title", "DOE", time.Time{}))
	f.ingest(t, grant("g-1", "Updated solar research title", "DOE", time.Time{}))

	req := mustRequest(t, "Updated solar research title", 5, -1, filter.Filter{})
	results, err := f.svc.SearchGrants(context.Background(), &req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (upsert, not duplicate)", len(results))
	}
	rec := results[0].Record()
	if rec.Title() != "Updated solar research title" {
		t.Errorf("title = %q, want the re-ingested record", rec.Title())
	}
}

func TestCheckConsistency(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, grant("g-1", "Consistent", "NSF", time.Time{}))
	if err := f.svc.CheckConsistency(); err != nil {
		t.Errorf("consistent stores: %v", err)
	}

	res, _ := f.embed.Embed(context.Background(), "orphan text")
	f.index.Add("orphan", res.Embedding)

	err := f.svc.CheckConsistency()
	if !errors.Is(err, domain.ErrInconsistent) {
		t.Errorf("err = %v, want ErrInconsistent", err)
	}
}
