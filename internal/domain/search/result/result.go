package result

import (
	"sort"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Result is a single ranked search hit with its hydrated record.
type Result struct {
	opportunityID string
	score         float64
	record        domain.GrantRecord
}

// New creates a search result.
func New(opportunityID string, score float64, record domain.GrantRecord) Result {
	return Result{opportunityID: opportunityID, score: score, record: record}
}

// OpportunityID returns the grant identifier.
func (r *Result) OpportunityID() string { return r.opportunityID }

// Score returns the cosine similarity in [-1, 1].
func (r *Result) Score() float64 { return r.score }

// Record returns the hydrated grant record.
func (r *Result) Record() domain.GrantRecord { return r.record }

// Sort orders results descending by score; ties break by most recent
// posted_date, then by opportunity ID ascending for determinism.
func Sort(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := &results[i], &results[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ap, bp := a.record.PostedDate(), b.record.PostedDate()
		if !ap.Equal(bp) {
			return ap.After(bp)
		}
		return a.opportunityID < b.opportunityID
	})
}
