package registry

import (
	"context"
	"errors"
	"testing"

	"holdersnap/internal/domain"
	"holdersnap/internal/rowstore"
	"holdersnap/internal/rowstore/memory"
)

func newTestDirectory(t *testing.T, scopes ...string) (*WalletDirectory, *rowstore.Client, *memory.Store) {
	t.Helper()

	backend := memory.NewStore()
	for _, scope := range scopes {
		if err := backend.EnsureScope(context.Background(), scope); err != nil {
			t.Fatalf("EnsureScope(%s) failed: %v", scope, err)
		}
	}
	client := rowstore.New(backend)
	return NewWalletDirectory(client), client, backend
}

func TestUpsertAppendsNewEntry(t *testing.T) {
	ctx := context.Background()
	dir, _, backend := newTestDirectory(t, "guild-a")

	entry := domain.WalletEntry{DisplayName: "alice#0", ExternalUserID: "u1", Address: "0xAA"}
	if err := dir.Upsert(ctx, "guild-a", entry); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rows, err := backend.ReadAllRows(ctx, "guild-a")
	if err != nil {
		t.Fatalf("ReadAllRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row[0] != "alice#0" || row[1] != "u1" || row[2] != "0xAA" {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	dir, _, backend := newTestDirectory(t, "guild-a")

	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "alice#0", ExternalUserID: "u1", Address: "0xAA"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "alice#1", ExternalUserID: "u1", Address: "0xBB"}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	rows, err := backend.ReadAllRows(ctx, "guild-a")
	if err != nil {
		t.Fatalf("ReadAllRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected overwrite in place, got %d rows", len(rows))
	}
	if rows[0][0] != "alice#1" || rows[0][2] != "0xBB" {
		t.Errorf("expected updated fields, got %v", rows[0])
	}
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	dir, _, backend := newTestDirectory(t, "guild-a")

	entry := domain.WalletEntry{DisplayName: "alice#0", ExternalUserID: "u1", Address: "0xAA"}
	for i := 0; i < 2; i++ {
		if err := dir.Upsert(ctx, "guild-a", entry); err != nil {
			t.Fatalf("Upsert %d failed: %v", i+1, err)
		}
	}

	rows, err := backend.ReadAllRows(ctx, "guild-a")
	if err != nil {
		t.Fatalf("ReadAllRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("identical upserts must keep exactly one row, got %d", len(rows))
	}
}

func TestUpsertTargetsCorrectRow(t *testing.T) {
	ctx := context.Background()
	dir, _, backend := newTestDirectory(t, "guild-a")

	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "alice#0", ExternalUserID: "u1", Address: "0xAA"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "bob#0", ExternalUserID: "u2", Address: "0xBB"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "bob#0", ExternalUserID: "u2", Address: "0xCC"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rows, err := backend.ReadAllRows(ctx, "guild-a")
	if err != nil {
		t.Fatalf("ReadAllRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][2] != "0xAA" {
		t.Errorf("first row must be untouched, got %v", rows[0])
	}
	if rows[1][2] != "0xCC" {
		t.Errorf("second row must carry the new address, got %v", rows[1])
	}
}

func TestUpsertFirstRowWinsOnDuplicates(t *testing.T) {
	ctx := context.Background()
	dir, _, backend := newTestDirectory(t, "guild-a")

	// Two rows for one user, as left behind by a concurrent upsert race.
	for _, addr := range []string{"0xAA", "0xBB"} {
		if err := backend.AppendRow(ctx, "guild-a", []string{"alice#0", "u1", addr}); err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}
	}

	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "alice#0", ExternalUserID: "u1", Address: "0xCC"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rows, err := backend.ReadAllRows(ctx, "guild-a")
	if err != nil {
		t.Fatalf("ReadAllRows failed: %v", err)
	}
	if rows[0][2] != "0xCC" {
		t.Errorf("expected first row updated, got %v", rows[0])
	}
	if rows[1][2] != "0xBB" {
		t.Errorf("expected second row untouched, got %v", rows[1])
	}
}

func TestUpsertRequiresUserID(t *testing.T) {
	dir, _, _ := newTestDirectory(t, "guild-a")

	err := dir.Upsert(context.Background(), "guild-a", domain.WalletEntry{DisplayName: "alice#0"})
	if !errors.Is(err, rowstore.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLookupAbsent(t *testing.T) {
	dir, _, _ := newTestDirectory(t, "guild-a")

	entry, err := dir.Lookup(context.Background(), "guild-a", "u1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil for absent user, got %+v", entry)
	}
}

func TestLookupUnknownScope(t *testing.T) {
	dir, _, _ := newTestDirectory(t)

	_, err := dir.Lookup(context.Background(), "missing", "u1")
	if !errors.Is(err, rowstore.ErrScopeNotFound) {
		t.Fatalf("expected ErrScopeNotFound, got %v", err)
	}
}

func TestLookupToleratesShortRows(t *testing.T) {
	ctx := context.Background()
	dir, _, backend := newTestDirectory(t, "guild-a")

	if err := backend.AppendRow(ctx, "guild-a", []string{"stray"}); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	if err := backend.AppendRow(ctx, "guild-a", []string{"bob#0", "u2"}); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}

	entry, err := dir.Lookup(ctx, "guild-a", "u2")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry for u2")
	}
	if entry.Address != "" {
		t.Errorf("expected empty address for a short row, got %q", entry.Address)
	}
}

func TestLookupSeesWritesThroughSameClient(t *testing.T) {
	ctx := context.Background()
	dir, _, _ := newTestDirectory(t, "guild-a")

	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "alice#0", ExternalUserID: "u1", Address: "0xAA"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := dir.Upsert(ctx, "guild-a", domain.WalletEntry{DisplayName: "alice#0", ExternalUserID: "u1", Address: "0xBB"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	entry, err := dir.Lookup(ctx, "guild-a", "u1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry == nil || entry.Address != "0xBB" {
		t.Errorf("expected the rewritten address through the cache, got %+v", entry)
	}
}
