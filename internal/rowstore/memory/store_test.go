package memory

import (
	"context"
	"errors"
	"testing"

	"holdersnap/internal/rowstore"
)

func TestStore_EnsureScope_Idempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.EnsureScope(ctx, "wallets"); err != nil {
		t.Fatalf("EnsureScope: %v", err)
	}

	if err := store.AppendRow(ctx, "wallets", []string{"alice", "u1", "0xAA"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	// Second ensure must not wipe existing rows
	if err := store.EnsureScope(ctx, "wallets"); err != nil {
		t.Fatalf("EnsureScope again: %v", err)
	}

	rows, err := store.ReadAllRows(ctx, "wallets")
	if err != nil {
		t.Fatalf("ReadAllRows: %v", err)
	}

	if len(rows) != 1 {
		t.Errorf("expected 1 row after re-ensure, got %d", len(rows))
	}
}

func TestStore_AppendAndRead(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.EnsureScope(ctx, "audit"); err != nil {
		t.Fatalf("EnsureScope: %v", err)
	}

	if err := store.AppendRow(ctx, "audit", []string{"a", "b"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if err := store.AppendRow(ctx, "audit", []string{"c", "d"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}

	rows, err := store.ReadAllRows(ctx, "audit")
	if err != nil {
		t.Fatalf("ReadAllRows: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows[1][0] != "c" {
		t.Errorf("expected cell c, got %s", rows[1][0])
	}
}

func TestStore_ReadAllRows_CopiesRows(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.EnsureScope(ctx, "wallets")
	store.AppendRow(ctx, "wallets", []string{"alice", "u1", "0xAA"})

	rows, err := store.ReadAllRows(ctx, "wallets")
	if err != nil {
		t.Fatalf("ReadAllRows: %v", err)
	}

	// Mutating the returned slice must not affect the store
	rows[0][2] = "0xEVIL"

	again, err := store.ReadAllRows(ctx, "wallets")
	if err != nil {
		t.Fatalf("ReadAllRows again: %v", err)
	}

	if again[0][2] != "0xAA" {
		t.Errorf("store mutated through returned slice: %s", again[0][2])
	}
}

func TestStore_ScopeNotFound(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.ReadAllRows(ctx, "missing")
	if !errors.Is(err, rowstore.ErrScopeNotFound) {
		t.Errorf("expected ErrScopeNotFound, got %v", err)
	}

	err = store.AppendRow(ctx, "missing", []string{"x"})
	if !errors.Is(err, rowstore.ErrScopeNotFound) {
		t.Errorf("expected ErrScopeNotFound, got %v", err)
	}
}

func TestStore_UpdateCell(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.EnsureScope(ctx, "wallets")
	store.AppendRow(ctx, "wallets", []string{"alice", "u1", "0xAA"})

	if err := store.UpdateCell(ctx, "wallets", 0, 2, "0xBB"); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}

	rows, _ := store.ReadAllRows(ctx, "wallets")
	if rows[0][2] != "0xBB" {
		t.Errorf("expected 0xBB, got %s", rows[0][2])
	}
}

func TestStore_UpdateCell_ExtendsRow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.EnsureScope(ctx, "bindings")
	store.AppendRow(ctx, "bindings", []string{"t1"})

	if err := store.UpdateCell(ctx, "bindings", 0, 3, "scope-a"); err != nil {
		t.Fatalf("UpdateCell: %v", err)
	}

	rows, _ := store.ReadAllRows(ctx, "bindings")
	if len(rows[0]) != 4 {
		t.Fatalf("expected row width 4, got %d", len(rows[0]))
	}
	if rows[0][3] != "scope-a" {
		t.Errorf("expected scope-a, got %s", rows[0][3])
	}
}

func TestStore_UpdateCell_RowOutOfRange(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.EnsureScope(ctx, "wallets")

	err := store.UpdateCell(ctx, "wallets", 0, 0, "x")
	if !errors.Is(err, rowstore.ErrRowOutOfRange) {
		t.Errorf("expected ErrRowOutOfRange, got %v", err)
	}
}

func TestStore_ListScopes_CreationOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, s := range []string{"master", "event-a", "event-b"} {
		if err := store.EnsureScope(ctx, s); err != nil {
			t.Fatalf("EnsureScope %s: %v", s, err)
		}
	}

	scopes, err := store.ListScopes(ctx)
	if err != nil {
		t.Fatalf("ListScopes: %v", err)
	}

	want := []string{"master", "event-a", "event-b"}
	if len(scopes) != len(want) {
		t.Fatalf("expected %d scopes, got %d", len(want), len(scopes))
	}
	for i, s := range want {
		if scopes[i] != s {
			t.Errorf("scope %d: expected %s, got %s", i, s, scopes[i])
		}
	}
}
