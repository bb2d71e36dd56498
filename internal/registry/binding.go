package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"holdersnap/internal/domain"
	"holdersnap/internal/rowstore"
)

// DefaultBindingScope is the scope bindings live in when none is configured.
const DefaultBindingScope = "bindings"

// Binding scope column layout.
const (
	colTenant    = 0
	colChannel   = 1
	colMessage   = 2
	colScope     = 3
	colCreatedAt = 4
)

// BindingBook stores (tenant, scope) bindings in a single dedicated scope.
//
// Rows are laid out [tenantId, channelRef, messageRef, scopeName, createdAt
// unix ms]. The scope must be configured as uncached on the store client so
// bindings added by out-of-band administrative edits are visible on the next
// read.
type BindingBook struct {
	store *rowstore.Client
	scope string
	now   func() time.Time
}

// NewBindingBook creates a book over the given scope of store.
func NewBindingBook(store *rowstore.Client, scope string) *BindingBook {
	if scope == "" {
		scope = DefaultBindingScope
	}
	return &BindingBook{store: store, scope: scope, now: time.Now}
}

// Create persists a binding for (tenantID, scopeName). A second binding for
// the same pair fails with ErrDuplicateBinding unless refresh is set, in
// which case the existing row's external reference is overwritten in place
// rather than a second row appended.
func (b *BindingBook) Create(ctx context.Context, tenantID, scopeName string, ref domain.ExternalRef, refresh bool) error {
	rows, err := b.store.ReadAllRows(ctx, b.scope)
	if err != nil {
		return err
	}

	for i, row := range rows {
		if cell(row, colTenant) != tenantID || cell(row, colScope) != scopeName {
			continue
		}
		if !refresh {
			return fmt.Errorf("%w: tenant %s scope %s", ErrDuplicateBinding, tenantID, scopeName)
		}
		if err := b.store.UpdateCell(ctx, b.scope, i, colChannel, ref.ChannelID); err != nil {
			return err
		}
		return b.store.UpdateCell(ctx, b.scope, i, colMessage, ref.MessageID)
	}

	return b.store.AppendRow(ctx, b.scope, []string{
		tenantID,
		ref.ChannelID,
		ref.MessageID,
		scopeName,
		strconv.FormatInt(b.now().UnixMilli(), 10),
	})
}

// Resolve maps an inbound message reference to its bound scope name.
func (b *BindingBook) Resolve(ctx context.Context, ref domain.ExternalRef) (string, error) {
	if ref.MessageID == "" {
		return "", fmt.Errorf("%w: empty message reference", ErrBindingNotFound)
	}

	rows, err := b.store.ReadAllRows(ctx, b.scope)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if cell(row, colMessage) == ref.MessageID {
			return cell(row, colScope), nil
		}
	}
	return "", fmt.Errorf("%w: message %s", ErrBindingNotFound, ref.MessageID)
}

// List returns tenantID's bindings in creation order.
func (b *BindingBook) List(ctx context.Context, tenantID string) ([]domain.ScopeBinding, error) {
	rows, err := b.store.ReadAllRows(ctx, b.scope)
	if err != nil {
		return nil, err
	}

	var out []domain.ScopeBinding
	for _, row := range rows {
		if cell(row, colTenant) != tenantID {
			continue
		}
		createdAt, _ := strconv.ParseInt(cell(row, colCreatedAt), 10, 64)
		out = append(out, domain.ScopeBinding{
			TenantID: tenantID,
			Ref: domain.ExternalRef{
				ChannelID: cell(row, colChannel),
				MessageID: cell(row, colMessage),
			},
			ScopeName: cell(row, colScope),
			CreatedAt: createdAt,
		})
	}
	return out, nil
}
