// Package rowstore abstracts the remote spreadsheet-like store the bot keeps
// its wallet scopes, bindings and audit log in. A Backend is the raw remote
// surface; Client layers the retry and read-cache policy every caller goes
// through.
package rowstore

import "context"

// Backend is the raw tabular store: named scopes holding ordered rows of
// string cells. Implementations map ErrScopeNotFound / ErrRowOutOfRange for
// addressing problems and wrap retryable failures with Transient.
type Backend interface {
	// ReadAllRows returns every row of a scope in order.
	ReadAllRows(ctx context.Context, scope string) ([][]string, error)

	// AppendRow appends one row at the end of a scope.
	AppendRow(ctx context.Context, scope string, row []string) error

	// UpdateCell overwrites a single cell. Row and column are zero-based.
	UpdateCell(ctx context.Context, scope string, rowIdx, colIdx int, value string) error

	// EnsureScope creates a scope if it does not exist yet. Idempotent.
	EnsureScope(ctx context.Context, scope string) error

	// ListScopes returns the names of all scopes in the store.
	ListScopes(ctx context.Context) ([]string, error)
}
