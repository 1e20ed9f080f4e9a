package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grantwatch/retrieval/internal/domain"
)

const metadataSnapshotVersion = 1

// Save writes the store to path atomically (write-to-temp-then-rename), so a
// crash mid-save leaves the previous snapshot intact.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	dto := snapshotDTO{
		Version:    metadataSnapshotVersion,
		Model:      s.model,
		Dimensions: s.dim,
		Records:    make(map[string]recordDTO, len(s.records)),
	}
	for id, rec := range s.records {
		dto.Records[id] = toDTO(&rec)
	}
	s.mu.RUnlock()

	data, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal metadata snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".metadata-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot and verifies it was written for the expected model
// and dimension, failing with ErrIncompatibleIndex on mismatch. A missing
// file is reported as-is so callers can treat it as "run ingestion first".
func Load(path, model string, dim int) (*Store, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read metadata snapshot: %w", err)
	}

	var dto snapshotDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("parse metadata snapshot: %w: %w", err, domain.ErrIncompatibleIndex)
	}
	if dto.Version != metadataSnapshotVersion {
		return nil, fmt.Errorf("unsupported metadata snapshot version %d: %w",
			dto.Version, domain.ErrIncompatibleIndex)
	}
	if dto.Model != model {
		return nil, fmt.Errorf("metadata snapshot built with model %q, configured %q: %w",
			dto.Model, model, domain.ErrIncompatibleIndex)
	}
	if dto.Dimensions != dim {
		return nil, fmt.Errorf("metadata snapshot has dimension %d, configured %d: %w",
			dto.Dimensions, dim, domain.ErrIncompatibleIndex)
	}

	s := New(model, dim)
	for id, recDTO := range dto.Records {
		rec, err := fromDTO(id, recDTO)
		if err != nil {
			return nil, err
		}
		s.records[id] = rec
	}
	return s, nil
}
