// Package index implements a flat inner-product vector index with upsert
// tombstones and a durable binary snapshot. Vectors are expected to be
// L2-normalized so that inner product equals cosine similarity.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Flat is an exact nearest-neighbor index over normalized vectors.
// Reads take a shared lock; Add and Compact take an exclusive lock.
type Flat struct {
	mu      sync.RWMutex
	model   string
	dim     int
	vectors []float32 // row-major, dim floats per row
	ids     []string  // insertion order, parallel to rows
	dead    []bool    // tombstones from upserts
	rowByID map[string]int
	live    int
}

// Stats reports row accounting for the index.
type Stats struct {
	Live       int
	Tombstoned int
}

// New creates an empty index for the given embedding model and dimension.
func New(model string, dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d: %w", dim, domain.ErrInvalidArgument)
	}
	return &Flat{
		model:   model,
		dim:     dim,
		rowByID: make(map[string]int),
	}, nil
}

// Model returns the embedding model identifier the index was built with.
func (f *Flat) Model() string { return f.model }

// Dim returns the fixed vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Add upserts a vector for the given ID. Adding an existing ID tombstones the
// old row and appends the new one; compaction reclaims tombstones later.
func (f *Flat) Add(id string, vec []float32) error {
	if id == "" {
		return fmt.Errorf("id is required: %w", domain.ErrInvalidArgument)
	}
	if len(vec) != f.dim {
		return fmt.Errorf("vector has %d dimensions, index expects %d: %w",
			len(vec), f.dim, domain.ErrDimensionMismatch)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rowByID[id]; ok {
		f.dead[row] = true
		f.live--
	}

	row := len(f.ids)
	f.vectors = append(f.vectors, vec...)
	f.ids = append(f.ids, id)
	f.dead = append(f.dead, false)
	f.rowByID[id] = row
	f.live++
	return nil
}

// Search returns up to k candidates ordered by inner product descending.
// Ties are broken by insertion order, so results are deterministic for a
// fixed ingestion sequence.
func (f *Flat) Search(query []float32, k int) ([]domain.Candidate, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d: %w",
			len(query), f.dim, domain.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	type scored struct {
		row   int
		score float64
	}
	hits := make([]scored, 0, f.live)
	for row := range f.ids {
		if f.dead[row] {
			continue
		}
		vec := f.vectors[row*f.dim : (row+1)*f.dim]
		hits = append(hits, scored{row: row, score: domain.InnerProduct(query, vec)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].row < hits[j].row
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]domain.Candidate, k)
	for i := 0; i < k; i++ {
		out[i] = domain.Candidate{
			OpportunityID: f.ids[hits[i].row],
			Score:         hits[i].score,
		}
	}
	return out, nil
}

// Len returns the number of live entries.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.live
}

// Stats returns live and tombstoned row counts.
func (f *Flat) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{Live: f.live, Tombstoned: len(f.ids) - f.live}
}

// IDs returns the live entry identifiers sorted ascending.
func (f *Flat) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, f.live)
	for row, id := range f.ids {
		if !f.dead[row] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Compact rewrites the index dropping tombstoned rows. Relative insertion
// order of live rows is preserved, so search tie-breaks are unaffected.
func (f *Flat) Compact() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.ids) == f.live {
		return
	}

	vectors := make([]float32, 0, f.live*f.dim)
	ids := make([]string, 0, f.live)
	rowByID := make(map[string]int, f.live)
	for row, id := range f.ids {
		if f.dead[row] {
			continue
		}
		rowByID[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, f.vectors[row*f.dim:(row+1)*f.dim]...)
	}

	f.vectors = vectors
	f.ids = ids
	f.dead = make([]bool, len(ids))
	f.rowByID = rowByID
}
