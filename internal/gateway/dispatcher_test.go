package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	archmem "holdersnap/internal/archive/memory"
	"holdersnap/internal/domain"
	"holdersnap/internal/registry"
	"holdersnap/internal/rowstore"
	"holdersnap/internal/rowstore/memory"
	"holdersnap/internal/scan"
	"holdersnap/internal/snapshot"
)

// captureResponder records every response for assertions.
type captureResponder struct {
	mu        sync.Mutex
	responses []Response
}

func (r *captureResponder) Respond(_ context.Context, _ Interaction, resp Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
	return nil
}

func (r *captureResponder) last(t *testing.T) Response {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.responses) == 0 {
		t.Fatal("no response captured")
	}
	return r.responses[len(r.responses)-1]
}

// pagedSource serves a fixed holder list one page at a time.
type pagedSource struct {
	holders []scan.Holder
}

func (s *pagedSource) HolderPage(_ context.Context, _ string, page, offset int) (*scan.HolderPage, error) {
	start := (page - 1) * offset
	if start >= len(s.holders) {
		return &scan.HolderPage{Message: "No data found"}, nil
	}
	end := start + offset
	if end > len(s.holders) {
		end = len(s.holders)
	}
	return &scan.HolderPage{OK: true, Message: "OK", Records: s.holders[start:end]}, nil
}

func newTestDispatcher(t *testing.T, holders []scan.Holder, eventScopes ...string) (*Dispatcher, *captureResponder, *memory.Store) {
	t.Helper()

	ctx := context.Background()
	backend := memory.NewStore()
	for _, scope := range []string{"master", "bindings", "log"} {
		if err := backend.EnsureScope(ctx, scope); err != nil {
			t.Fatalf("EnsureScope(%s) failed: %v", scope, err)
		}
	}

	store := rowstore.New(backend, rowstore.WithUncachedScopes("bindings"))
	fetcher := snapshot.NewFetcher(snapshot.Options{
		Source:       &pagedSource{holders: holders},
		PageSize:     2,
		RetryBackoff: time.Millisecond,
		PageDelay:    time.Millisecond,
	})

	// The same archive backs snapshot writes and the history command.
	archStore := archmem.NewStore()
	responder := &captureResponder{}
	d := NewDispatcher(DispatcherOptions{
		Snapshots: snapshot.NewService(snapshot.ServiceOptions{Fetcher: fetcher, Store: store, Archive: archStore}),
		Registry:  registry.NewService(registry.ServiceOptions{Store: store, EventScopes: eventScopes, ReservedScopes: []string{"log"}}),
		Archive:   archStore,
		Responder: responder,
	})
	return d, responder, backend
}

func dispatch(t *testing.T, d *Dispatcher, r *captureResponder, inter Interaction) Response {
	t.Helper()
	d.Dispatch(context.Background(), inter)
	return r.last(t)
}

func commandInteraction(command string, options map[string]string) Interaction {
	return Interaction{
		ID:        "inter-1",
		Kind:      KindCommand,
		Command:   command,
		Options:   options,
		TenantID:  "guild-1",
		ChannelID: "chan-1",
		MessageID: "msg-1",
		Actor:     domain.Actor{ID: "u1", DisplayName: "alice#0"},
	}
}

func componentInteraction(customID, messageID string, actor domain.Actor) Interaction {
	return Interaction{
		ID:        "inter-2",
		Kind:      KindComponent,
		CustomID:  customID,
		TenantID:  "guild-1",
		ChannelID: "chan-1",
		MessageID: messageID,
		Actor:     actor,
	}
}

func modalInteraction(customID, messageID string, actor domain.Actor, options map[string]string) Interaction {
	return Interaction{
		ID:        "inter-3",
		Kind:      KindModal,
		CustomID:  customID,
		Options:   options,
		TenantID:  "guild-1",
		ChannelID: "chan-1",
		MessageID: messageID,
		Actor:     actor,
	}
}

func TestDispatchSnapshotCommand(t *testing.T) {
	holders := []scan.Holder{
		{Address: "0xaaa", Quantity: "10"},
		{Address: "0xbbb", Quantity: "20"},
		{Address: "0xccc", Quantity: "30"},
	}
	d, responder, backend := newTestDispatcher(t, holders, "guild-a")

	resp := dispatch(t, d, responder, commandInteraction(CommandSnapshot, map[string]string{"contract": "0xdead"}))

	if !strings.Contains(resp.Content, "**Total Holders**: 3") {
		t.Errorf("summary missing holder count: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "**Total Supply**: 60") {
		t.Errorf("summary missing supply: %q", resp.Content)
	}
	if resp.File == nil {
		t.Fatal("expected a CSV attachment")
	}
	if resp.File.Name != "holderList.csv" {
		t.Errorf("expected holderList.csv, got %s", resp.File.Name)
	}
	if !strings.HasPrefix(string(resp.File.Data), "Address,Quantity\n") {
		t.Errorf("CSV missing header: %q", string(resp.File.Data))
	}

	rows, err := backend.ReadAllRows(context.Background(), "log")
	if err != nil {
		t.Fatalf("ReadAllRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	if rows[0][0] != "alice#0" || rows[0][1] != "0xdead" {
		t.Errorf("unexpected audit row: %v", rows[0])
	}
}

func TestDispatchSnapshotRequiresContract(t *testing.T) {
	d, responder, _ := newTestDispatcher(t, nil, "guild-a")

	resp := dispatch(t, d, responder, commandInteraction(CommandSnapshot, nil))

	if resp.Content != "A contract address is required." {
		t.Errorf("unexpected response: %q", resp.Content)
	}
	if resp.File != nil {
		t.Error("expected no attachment on failure")
	}
}

func TestDispatchBindAndFirstRegistration(t *testing.T) {
	d, responder, backend := newTestDispatcher(t, nil, "guild-a", "guild-b")
	actor := domain.Actor{ID: "u1", DisplayName: "alice#0"}

	resp := dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))
	if !strings.Contains(resp.Content, `"guild-a"`) {
		t.Fatalf("bind did not confirm the scope: %q", resp.Content)
	}

	// No entry anywhere yet, the user must be asked for an address.
	resp = dispatch(t, d, responder, componentInteraction(ComponentRegister, "msg-1", actor))
	if !resp.NeedsInput {
		t.Fatalf("expected an address prompt, got %q", resp.Content)
	}

	resp = dispatch(t, d, responder, modalInteraction(ModalRegisterAddress, "msg-1", actor, map[string]string{"address": "0xAA"}))
	if !strings.Contains(resp.Content, "guild-a") || !strings.Contains(resp.Content, "0xAA") {
		t.Errorf("unexpected confirmation: %q", resp.Content)
	}

	ctx := context.Background()
	for _, scope := range []string{"guild-a", "master"} {
		rows, err := backend.ReadAllRows(ctx, scope)
		if err != nil {
			t.Fatalf("ReadAllRows(%s) failed: %v", scope, err)
		}
		if len(rows) != 1 || rows[0][2] != "0xAA" {
			t.Errorf("expected one 0xAA row in %s, got %v", scope, rows)
		}
	}
}

func TestDispatchBindRejectsDuplicate(t *testing.T) {
	d, responder, _ := newTestDispatcher(t, nil, "guild-a")

	dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))
	resp := dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))
	if !strings.Contains(resp.Content, "already bound") {
		t.Errorf("expected a duplicate rejection, got %q", resp.Content)
	}

	resp = dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1", "refresh": "true"}))
	if !strings.Contains(resp.Content, "now bound") {
		t.Errorf("expected the refresh to succeed, got %q", resp.Content)
	}
}

func TestDispatchBindValidatesScopeOption(t *testing.T) {
	d, responder, _ := newTestDispatcher(t, nil, "guild-a")

	resp := dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "first"}))
	if resp.Content != "The scope option must be a number." {
		t.Errorf("unexpected response: %q", resp.Content)
	}

	resp = dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "7"}))
	if resp.Content != "That scope number is not in the configured list." {
		t.Errorf("unexpected response: %q", resp.Content)
	}
}

func TestDispatchRegisterPropagatesFromMaster(t *testing.T) {
	d, responder, backend := newTestDispatcher(t, nil, "guild-a")
	ctx := context.Background()

	if err := backend.AppendRow(ctx, "master", []string{"alice#0", "u1", "0xAA"}); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))

	resp := dispatch(t, d, responder, componentInteraction(ComponentRegister, "msg-1", domain.Actor{ID: "u1", DisplayName: "alice#0"}))
	if resp.NeedsInput {
		t.Fatal("expected no address prompt when the master scope has an entry")
	}
	if !strings.Contains(resp.Content, "saved address 0xAA") {
		t.Errorf("unexpected confirmation: %q", resp.Content)
	}
}

func TestDispatchCheckVariants(t *testing.T) {
	actor := domain.Actor{ID: "u1", DisplayName: "alice#0"}

	t.Run("absent", func(t *testing.T) {
		d, responder, _ := newTestDispatcher(t, nil, "guild-a")
		dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))

		resp := dispatch(t, d, responder, componentInteraction(ComponentCheck, "msg-1", actor))
		if !strings.Contains(resp.Content, "not registered") {
			t.Errorf("expected an absent notice, got %q", resp.Content)
		}
	})

	t.Run("master only", func(t *testing.T) {
		d, responder, backend := newTestDispatcher(t, nil, "guild-a")
		ctx := context.Background()
		if err := backend.AppendRow(ctx, "master", []string{"alice#0", "u1", "0xAA"}); err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}
		dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))

		resp := dispatch(t, d, responder, componentInteraction(ComponentCheck, "msg-1", actor))
		if !strings.Contains(resp.Content, "saved address is 0xAA") {
			t.Errorf("expected a master-only notice, got %q", resp.Content)
		}
	})

	t.Run("enrolled", func(t *testing.T) {
		d, responder, backend := newTestDispatcher(t, nil, "guild-a")
		ctx := context.Background()
		dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))
		if err := backend.AppendRow(ctx, "guild-a", []string{"alice#0", "u1", "0xBB"}); err != nil {
			t.Fatalf("AppendRow failed: %v", err)
		}

		resp := dispatch(t, d, responder, componentInteraction(ComponentCheck, "msg-1", actor))
		if !strings.Contains(resp.Content, "Your registered address for guild-a is 0xBB") {
			t.Errorf("expected the scope entry, got %q", resp.Content)
		}
	})
}

func TestDispatchChangeRewritesEnrolledScopes(t *testing.T) {
	d, responder, backend := newTestDispatcher(t, nil, "guild-a", "guild-b")
	ctx := context.Background()
	actor := domain.Actor{ID: "u1", DisplayName: "alice#0"}

	dispatch(t, d, responder, commandInteraction(CommandBind, map[string]string{"scope": "1"}))
	dispatch(t, d, responder, modalInteraction(ModalRegisterAddress, "msg-1", actor, map[string]string{"address": "0xAA"}))

	resp := dispatch(t, d, responder, componentInteraction(ComponentChange, "msg-1", actor))
	if !resp.NeedsInput {
		t.Fatalf("expected an address prompt, got %q", resp.Content)
	}

	resp = dispatch(t, d, responder, modalInteraction(ModalChangeAddress, "msg-1", actor, map[string]string{"address": "0xBB"}))
	if !strings.Contains(resp.Content, "0xBB") || !strings.Contains(resp.Content, "guild-a") {
		t.Errorf("unexpected confirmation: %q", resp.Content)
	}

	for _, scope := range []string{"master", "guild-a"} {
		rows, err := backend.ReadAllRows(ctx, scope)
		if err != nil {
			t.Fatalf("ReadAllRows(%s) failed: %v", scope, err)
		}
		if len(rows) != 1 || rows[0][2] != "0xBB" {
			t.Errorf("expected the %s row rewritten to 0xBB, got %v", scope, rows)
		}
	}

	// guild-b never materialized, the change must not create it.
	if _, err := backend.ReadAllRows(ctx, "guild-b"); !errors.Is(err, rowstore.ErrScopeNotFound) {
		t.Errorf("expected guild-b to stay absent, got err=%v", err)
	}
}

func TestDispatchComponentOnUnboundMessage(t *testing.T) {
	d, responder, _ := newTestDispatcher(t, nil, "guild-a")

	resp := dispatch(t, d, responder, componentInteraction(ComponentRegister, "msg-unbound", domain.Actor{ID: "u1"}))
	if resp.Content != "This message is not linked to a wallet scope." {
		t.Errorf("unexpected response: %q", resp.Content)
	}
}

func TestDispatchUnknownInputsStayGeneric(t *testing.T) {
	d, responder, _ := newTestDispatcher(t, nil, "guild-a")

	resp := dispatch(t, d, responder, componentInteraction("bogus", "msg-1", domain.Actor{ID: "u1"}))
	if resp.Content != genericFailure {
		t.Errorf("expected the generic failure message, got %q", resp.Content)
	}

	inter := commandInteraction("nope", nil)
	resp = dispatch(t, d, responder, inter)
	if !strings.Contains(resp.Content, `"nope"`) {
		t.Errorf("expected an unknown-command notice, got %q", resp.Content)
	}

	inter.Kind = "telepathy"
	resp = dispatch(t, d, responder, inter)
	if resp.Content != genericFailure {
		t.Errorf("expected the generic failure message, got %q", resp.Content)
	}
}

func TestDispatchHistoryListsArchivedRuns(t *testing.T) {
	holders := []scan.Holder{{Address: "0xaaa", Quantity: "10"}}
	d, responder, _ := newTestDispatcher(t, holders, "guild-a")

	dispatch(t, d, responder, commandInteraction(CommandSnapshot, map[string]string{"contract": "0xdead"}))

	resp := dispatch(t, d, responder, commandInteraction(CommandHistory, nil))
	if !strings.Contains(resp.Content, "0xdead") || !strings.Contains(resp.Content, "1 holders") {
		t.Errorf("unexpected history: %q", resp.Content)
	}

	resp = dispatch(t, d, responder, commandInteraction(CommandHistory, map[string]string{"limit": "zero"}))
	if resp.Content != "The limit option must be a positive number." {
		t.Errorf("unexpected response: %q", resp.Content)
	}

	resp = dispatch(t, d, responder, commandInteraction(CommandHistory, map[string]string{"contract": "0xother"}))
	if resp.Content != "No archived snapshots yet." {
		t.Errorf("expected an empty history, got %q", resp.Content)
	}
}

func TestDispatchHistoryWithoutArchive(t *testing.T) {
	d, responder, _ := newTestDispatcher(t, nil, "guild-a")
	d.archive = nil

	resp := dispatch(t, d, responder, commandInteraction(CommandHistory, nil))
	if resp.Content != "Snapshot history is not enabled." {
		t.Errorf("unexpected response: %q", resp.Content)
	}
}

func TestRunStopsWhenStreamCloses(t *testing.T) {
	d, _, _ := newTestDispatcher(t, nil, "guild-a")

	events := make(chan Interaction)
	close(events)
	if err := d.Run(context.Background(), events); err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d, _, _ := newTestDispatcher(t, nil, "guild-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx, make(chan Interaction)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
