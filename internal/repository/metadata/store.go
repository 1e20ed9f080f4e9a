// Package metadata is the key-value store mapping opportunity IDs to grant
// records, persisted as a single atomic JSON snapshot alongside the vector
// index. It has no query capability beyond exact-ID lookup; filtering belongs
// to the retrieval engine.
package metadata

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Store holds grant records keyed by opportunity ID.
// Reads take a shared lock; Put takes an exclusive lock.
type Store struct {
	mu      sync.RWMutex
	model   string
	dim     int
	records map[string]domain.GrantRecord
}

// New creates an empty store versioned by embedding model and dimension.
func New(model string, dim int) *Store {
	return &Store{
		model:   model,
		dim:     dim,
		records: make(map[string]domain.GrantRecord),
	}
}

// Put stores a record, replacing any previous record with the same ID.
func (s *Store) Put(rec domain.GrantRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.OpportunityID()] = rec
}

// Get returns the record for the given ID, or ErrNotFound.
func (s *Store) Get(id string) (domain.GrantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.GrantRecord{}, fmt.Errorf("grant %q: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

// AllIDs returns every stored ID sorted ascending.
func (s *Store) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
