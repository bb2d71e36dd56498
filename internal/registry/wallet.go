// Package registry keeps wallet enrollment and scope bindings in the remote
// row store.
package registry

import (
	"context"
	"fmt"
	"sync"

	"holdersnap/internal/domain"
	"holdersnap/internal/rowstore"
)

// Wallet scope column layout.
const (
	colDisplayName = 0
	colUserID      = 1
	colAddress     = 2
)

// WalletDirectory performs keyed row access over wallet scopes.
//
// Each scope holds one row per user, laid out [displayName, externalUserId,
// address]. Lookups go through a per-scope index keyed by external user id.
// The index is rebuilt whenever the store's scope revision moves; writes
// advance the revision, so index validity follows cache validity.
type WalletDirectory struct {
	store *rowstore.Client

	mu      sync.Mutex
	indexes map[string]*scopeIndex
}

type scopeIndex struct {
	revision uint64
	byID     map[string]int
}

// NewWalletDirectory creates a directory over store.
func NewWalletDirectory(store *rowstore.Client) *WalletDirectory {
	return &WalletDirectory{
		store:   store,
		indexes: make(map[string]*scopeIndex),
	}
}

// Lookup returns the entry for externalUserID in scope, or nil when absent.
func (d *WalletDirectory) Lookup(ctx context.Context, scope, externalUserID string) (*domain.WalletEntry, error) {
	rows, byID, err := d.rowsAndIndex(ctx, scope)
	if err != nil {
		return nil, err
	}

	i, ok := byID[externalUserID]
	if !ok {
		return nil, nil
	}
	row := rows[i]
	return &domain.WalletEntry{
		DisplayName:    cell(row, colDisplayName),
		ExternalUserID: cell(row, colUserID),
		Address:        cell(row, colAddress),
	}, nil
}

// Upsert writes entry into scope, overwriting the user's row in place when
// present and appending a new row otherwise.
//
// The read-then-write pair is not atomic: two concurrent upserts for one
// user can leave two rows behind. The first row wins on later reads, which
// is accepted for this low-write registry.
func (d *WalletDirectory) Upsert(ctx context.Context, scope string, entry domain.WalletEntry) error {
	if entry.ExternalUserID == "" {
		return fmt.Errorf("%w: external user id is empty", rowstore.ErrInvalidInput)
	}

	_, byID, err := d.rowsAndIndex(ctx, scope)
	if err != nil {
		return err
	}

	i, ok := byID[entry.ExternalUserID]
	if !ok {
		return d.store.AppendRow(ctx, scope, []string{entry.DisplayName, entry.ExternalUserID, entry.Address})
	}

	if err := d.store.UpdateCell(ctx, scope, i, colDisplayName, entry.DisplayName); err != nil {
		return err
	}
	if err := d.store.UpdateCell(ctx, scope, i, colUserID, entry.ExternalUserID); err != nil {
		return err
	}
	return d.store.UpdateCell(ctx, scope, i, colAddress, entry.Address)
}

// rowsAndIndex reads scope and returns its rows with the id index, reusing
// the cached index while the scope revision is unchanged.
func (d *WalletDirectory) rowsAndIndex(ctx context.Context, scope string) ([][]string, map[string]int, error) {
	rev := d.store.Revision(scope)
	rows, err := d.store.ReadAllRows(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if idx, ok := d.indexes[scope]; ok && idx.revision == rev {
		return rows, idx.byID, nil
	}

	byID := make(map[string]int, len(rows))
	for i, row := range rows {
		id := cell(row, colUserID)
		if id == "" {
			continue
		}
		if _, seen := byID[id]; seen {
			// First row wins; a duplicate is a tolerated upsert-race artifact.
			continue
		}
		byID[id] = i
	}
	d.indexes[scope] = &scopeIndex{revision: rev, byID: byID}
	return rows, byID, nil
}

// cell reads a column from a row, returning "" past the row's width.
func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
