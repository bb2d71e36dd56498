// Package memory provides an in-memory archive.Store for tests and
// single-process runs.
package memory

import (
	"context"
	"sync"

	"holdersnap/internal/archive"
	"holdersnap/internal/domain"
)

// Store implements archive.Store in memory.
type Store struct {
	mu      sync.RWMutex
	metas   []archive.SnapshotMeta
	records map[string][]domain.HolderRecord
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string][]domain.HolderRecord)}
}

// Compile-time interface check.
var _ archive.Store = (*Store)(nil)

// SaveSnapshot stores one run. Records are copied to prevent external mutation.
func (s *Store) SaveSnapshot(_ context.Context, meta archive.SnapshotMeta, records []domain.HolderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]domain.HolderRecord, len(records))
	copy(copied, records)

	meta.HolderCount = len(copied)
	s.metas = append(s.metas, meta)
	s.records[meta.RunID] = copied
	return nil
}

// RecentSnapshots returns run metadata newest first. An empty contract
// matches all runs.
func (s *Store) RecentSnapshots(_ context.Context, contract string, limit int) ([]archive.SnapshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	var out []archive.SnapshotMeta
	for i := len(s.metas) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.metas[i]
		if contract != "" && m.Contract != contract {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Records returns a copy of one run's record set in fetch order, or nil for
// an unknown run.
func (s *Store) Records(_ context.Context, runID string) ([]domain.HolderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.records[runID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.HolderRecord, len(records))
	copy(out, records)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
