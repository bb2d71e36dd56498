package postgres

import (
	"context"
	"fmt"

	"holdersnap/internal/rowstore"
)

// Backend stores each scope as an ordered set of rows in the scope_rows
// table, cells held as a text array. Row indexes are dense and zero-based;
// appends allocate the next index under a per-scope lock so concurrent
// writers cannot collide.
type Backend struct {
	pool *Pool
}

// NewBackend creates a Backend over pool.
func NewBackend(pool *Pool) *Backend {
	return &Backend{pool: pool}
}

// Compile-time interface check.
var _ rowstore.Backend = (*Backend)(nil)

// ReadAllRows returns every row of scope in index order.
func (b *Backend) ReadAllRows(ctx context.Context, scope string) ([][]string, error) {
	if err := b.scopeExists(ctx, scope); err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx, `
		SELECT cells FROM scope_rows
		WHERE scope_name = $1
		ORDER BY row_idx ASC
	`, scope)
	if err != nil {
		return nil, classify("read rows", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells []string
		if err := rows.Scan(&cells); err != nil {
			return nil, classify("scan row", err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate rows", err)
	}
	return out, nil
}

// AppendRow adds row at the scope's next free index.
func (b *Backend) AppendRow(ctx context.Context, scope string, row []string) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return classify("begin append", err)
	}
	defer tx.Rollback(ctx)

	// Lock the scope record so index allocation is serialized per scope.
	var name string
	if err := tx.QueryRow(ctx, `SELECT name FROM scopes WHERE name = $1 FOR UPDATE`, scope).Scan(&name); err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("scope %q: %w", scope, rowstore.ErrScopeNotFound)
		}
		return classify("lock scope", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO scope_rows (scope_name, row_idx, cells)
		SELECT $1, COALESCE(MAX(row_idx) + 1, 0), $2
		FROM scope_rows WHERE scope_name = $1
	`, scope, row)
	if err != nil {
		return classify("append row", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit append", err)
	}
	return nil
}

// UpdateCell writes value into the zero-based (rowIdx, colIdx) cell of an
// existing row, widening the row with empty cells as needed.
func (b *Backend) UpdateCell(ctx context.Context, scope string, rowIdx, colIdx int, value string) error {
	if scope == "" || rowIdx < 0 || colIdx < 0 {
		return fmt.Errorf("%w: scope %q cell %d,%d", rowstore.ErrInvalidInput, scope, rowIdx, colIdx)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return classify("begin update", err)
	}
	defer tx.Rollback(ctx)

	var cells []string
	err = tx.QueryRow(ctx, `
		SELECT cells FROM scope_rows
		WHERE scope_name = $1 AND row_idx = $2
		FOR UPDATE
	`, scope, rowIdx).Scan(&cells)
	if err != nil {
		if isNotFoundError(err) {
			if serr := b.scopeExists(ctx, scope); serr != nil {
				return serr
			}
			return fmt.Errorf("row %d in scope %q: %w", rowIdx, scope, rowstore.ErrRowOutOfRange)
		}
		return classify("read cell row", err)
	}

	for len(cells) <= colIdx {
		cells = append(cells, "")
	}
	cells[colIdx] = value

	if _, err := tx.Exec(ctx, `
		UPDATE scope_rows SET cells = $3
		WHERE scope_name = $1 AND row_idx = $2
	`, scope, rowIdx, cells); err != nil {
		return classify("update cell", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit update", err)
	}
	return nil
}

// EnsureScope registers scope, doing nothing when it already exists.
func (b *Backend) EnsureScope(ctx context.Context, scope string) error {
	if scope == "" {
		return fmt.Errorf("%w: empty scope", rowstore.ErrInvalidInput)
	}

	_, err := b.pool.Exec(ctx, `
		INSERT INTO scopes (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`, scope)
	if err != nil {
		return classify("ensure scope", err)
	}
	return nil
}

// ListScopes returns scope names in creation order.
func (b *Backend) ListScopes(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT name FROM scopes
		ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, classify("list scopes", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify("scan scope", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate scopes", err)
	}
	return names, nil
}

func (b *Backend) scopeExists(ctx context.Context, scope string) error {
	var name string
	err := b.pool.QueryRow(ctx, `SELECT name FROM scopes WHERE name = $1`, scope).Scan(&name)
	if err != nil {
		if isNotFoundError(err) {
			return fmt.Errorf("scope %q: %w", scope, rowstore.ErrScopeNotFound)
		}
		return classify("check scope", err)
	}
	return nil
}
