// Package memory provides an in-memory rowstore backend for tests and
// --use-memory runs.
package memory

import (
	"context"
	"sync"

	"holdersnap/internal/rowstore"
)

// Store is an in-memory implementation of rowstore.Backend.
type Store struct {
	mu     sync.RWMutex
	scopes map[string][][]string
	order  []string // scope creation order, for ListScopes
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		scopes: make(map[string][][]string),
	}
}

// ReadAllRows returns every row of a scope in order.
func (s *Store) ReadAllRows(_ context.Context, scope string) ([][]string, error) {
	if scope == "" {
		return nil, rowstore.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, exists := s.scopes[scope]
	if !exists {
		return nil, rowstore.ErrScopeNotFound
	}

	// Return copies to prevent external mutation
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

// AppendRow appends one row at the end of a scope.
func (s *Store) AppendRow(_ context.Context, scope string, row []string) error {
	if scope == "" {
		return rowstore.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, exists := s.scopes[scope]
	if !exists {
		return rowstore.ErrScopeNotFound
	}

	s.scopes[scope] = append(rows, append([]string(nil), row...))
	return nil
}

// UpdateCell overwrites a single cell, extending the row with empty cells
// when the column lies beyond its current width.
func (s *Store) UpdateCell(_ context.Context, scope string, rowIdx, colIdx int, value string) error {
	if scope == "" || rowIdx < 0 || colIdx < 0 {
		return rowstore.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, exists := s.scopes[scope]
	if !exists {
		return rowstore.ErrScopeNotFound
	}

	if rowIdx >= len(rows) {
		return rowstore.ErrRowOutOfRange
	}

	row := rows[rowIdx]
	for len(row) <= colIdx {
		row = append(row, "")
	}
	row[colIdx] = value
	rows[rowIdx] = row
	return nil
}

// EnsureScope creates a scope if it does not exist yet.
func (s *Store) EnsureScope(_ context.Context, scope string) error {
	if scope == "" {
		return rowstore.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scopes[scope]; exists {
		return nil
	}

	s.scopes[scope] = nil
	s.order = append(s.order, scope)
	return nil
}

// ListScopes returns the names of all scopes in creation order.
func (s *Store) ListScopes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...), nil
}

// Verify interface compliance at compile time.
var _ rowstore.Backend = (*Store)(nil)
