package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"holdersnap/internal/domain"
	"holdersnap/internal/observability"
	"holdersnap/internal/rowstore"
)

// DefaultMasterScope is the authoritative wallet scope name.
const DefaultMasterScope = "master"

// RegisterOutcome describes how a register request concluded.
type RegisterOutcome string

const (
	// OutcomeAlreadyEnrolled means the scope already holds an entry.
	OutcomeAlreadyEnrolled RegisterOutcome = "already_enrolled"
	// OutcomeEnrolledFromMaster means the master entry was propagated.
	OutcomeEnrolledFromMaster RegisterOutcome = "enrolled_from_master"
	// OutcomeNeedsAddress means no entry exists anywhere and the caller
	// must collect an address, then call RegisterWithAddress.
	OutcomeNeedsAddress RegisterOutcome = "needs_address"
)

// RegisterResult is the outcome of a register request.
type RegisterResult struct {
	Outcome RegisterOutcome
	// Entry is set unless the caller still has to collect an address.
	Entry *domain.WalletEntry
}

// ChangeResult reports what an address change reached.
type ChangeResult struct {
	Entry domain.WalletEntry
	// UpdatedScopes lists the named scopes overwritten, master excluded.
	UpdatedScopes []string
}

// CheckResult reports where an actor's entry was found.
type CheckResult struct {
	// Entry is nil when the actor is not enrolled anywhere.
	Entry *domain.WalletEntry
	// MasterOnly marks an entry found in the master scope but not in the
	// requested scope.
	MasterOnly bool
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Store is the shared row store client. Required.
	Store *rowstore.Client
	// MasterScope holds the authoritative entry per user.
	MasterScope string
	// BindingScope holds scope bindings; it should be configured as
	// uncached on the store client.
	BindingScope string
	// EventScopes are the named wallet scopes, bindable by 1-based index.
	EventScopes []string
	// ReservedScopes are store scopes that never hold wallet rows (the audit
	// scope, for instance). Change skips them when it enumerates the store;
	// the master and binding scopes are always skipped.
	ReservedScopes []string
	// Logger defaults to a [registry]-prefixed stdout logger.
	Logger *log.Logger
}

// Service implements the wallet and binding flows on top of the row store.
type Service struct {
	store       *rowstore.Client
	wallets     *WalletDirectory
	bindings    *BindingBook
	masterScope string
	eventScopes []string
	reserved    map[string]struct{}
	logger      *log.Logger
}

// NewService creates a Service with defaults applied.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		store:       opts.Store,
		wallets:     NewWalletDirectory(opts.Store),
		bindings:    NewBindingBook(opts.Store, opts.BindingScope),
		masterScope: opts.MasterScope,
		eventScopes: opts.EventScopes,
		reserved:    make(map[string]struct{}),
		logger:      opts.Logger,
	}
	if s.masterScope == "" {
		s.masterScope = DefaultMasterScope
	}
	bindingScope := opts.BindingScope
	if bindingScope == "" {
		bindingScope = DefaultBindingScope
	}
	s.reserved[s.masterScope] = struct{}{}
	s.reserved[bindingScope] = struct{}{}
	for _, scope := range opts.ReservedScopes {
		s.reserved[scope] = struct{}{}
	}
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[registry] ", log.LstdFlags|log.Lshortfile)
	}
	return s
}

// Register enrolls actor into scope.
//
// An existing entry in the scope wins and nothing is written. Otherwise the
// master entry, when present, is propagated into the scope verbatim. With no
// entry anywhere the caller must collect an address and follow up with
// RegisterWithAddress.
func (s *Service) Register(ctx context.Context, scope string, actor domain.Actor) (*RegisterResult, error) {
	existing, err := s.wallets.Lookup(ctx, scope, actor.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		observability.RecordWalletOp("register", "already_enrolled")
		return &RegisterResult{Outcome: OutcomeAlreadyEnrolled, Entry: existing}, nil
	}

	master, err := s.wallets.Lookup(ctx, s.masterScope, actor.ID)
	if err != nil {
		return nil, err
	}
	if master != nil {
		if err := s.wallets.Upsert(ctx, scope, *master); err != nil {
			return nil, err
		}
		s.logger.Printf("register: propagated master entry for %s into %s", actor.ID, scope)
		observability.RecordWalletOp("register", "enrolled_from_master")
		return &RegisterResult{Outcome: OutcomeEnrolledFromMaster, Entry: master}, nil
	}

	observability.RecordWalletOp("register", "needs_address")
	return &RegisterResult{Outcome: OutcomeNeedsAddress}, nil
}

// RegisterWithAddress enrolls actor into scope with a freshly collected
// address, writing the entry to both the scope and the master scope.
func (s *Service) RegisterWithAddress(ctx context.Context, scope string, actor domain.Actor, address string) (*domain.WalletEntry, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address is empty", rowstore.ErrInvalidInput)
	}

	entry := domain.WalletEntry{
		DisplayName:    actor.DisplayName,
		ExternalUserID: actor.ID,
		Address:        address,
	}
	if err := s.wallets.Upsert(ctx, scope, entry); err != nil {
		return nil, err
	}
	if err := s.wallets.Upsert(ctx, s.masterScope, entry); err != nil {
		return nil, err
	}

	s.logger.Printf("register: enrolled %s into %s and %s", actor.ID, scope, s.masterScope)
	observability.RecordWalletOp("register", "registered")
	return &entry, nil
}

// Check reports actor's entry in scope. When the scope has no entry but the
// master scope does, the master entry is returned flagged MasterOnly.
func (s *Service) Check(ctx context.Context, scope string, actor domain.Actor) (*CheckResult, error) {
	entry, err := s.wallets.Lookup(ctx, scope, actor.ID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		observability.RecordWalletOp("check", "present")
		return &CheckResult{Entry: entry}, nil
	}

	master, err := s.wallets.Lookup(ctx, s.masterScope, actor.ID)
	if err != nil {
		return nil, err
	}
	if master != nil {
		observability.RecordWalletOp("check", "master_only")
		return &CheckResult{Entry: master, MasterOnly: true}, nil
	}

	observability.RecordWalletOp("check", "absent")
	return &CheckResult{}, nil
}

// Change rewrites actor's address in the master scope and in every wallet
// scope of the store that already has an entry for them. It never enrolls
// the actor into a scope they were not in. The master, binding and reserved
// scopes are excluded from the enumeration.
func (s *Service) Change(ctx context.Context, actor domain.Actor, newAddress string) (*ChangeResult, error) {
	newAddress = strings.TrimSpace(newAddress)
	if newAddress == "" {
		return nil, fmt.Errorf("%w: address is empty", rowstore.ErrInvalidInput)
	}

	entry := domain.WalletEntry{
		DisplayName:    actor.DisplayName,
		ExternalUserID: actor.ID,
		Address:        newAddress,
	}
	if err := s.wallets.Upsert(ctx, s.masterScope, entry); err != nil {
		return nil, err
	}

	scopes, err := s.store.ListScopes(ctx)
	if err != nil {
		return nil, err
	}

	res := &ChangeResult{Entry: entry}
	for _, scope := range scopes {
		if _, skip := s.reserved[scope]; skip {
			continue
		}
		existing, err := s.wallets.Lookup(ctx, scope, actor.ID)
		if err != nil {
			if errors.Is(err, rowstore.ErrScopeNotFound) {
				// Scope dropped between the listing and the read.
				continue
			}
			return nil, err
		}
		if existing == nil {
			continue
		}
		if err := s.wallets.Upsert(ctx, scope, entry); err != nil {
			return nil, err
		}
		res.UpdatedScopes = append(res.UpdatedScopes, scope)
	}

	s.logger.Printf("change: rewrote address for %s in master and %d scopes", actor.ID, len(res.UpdatedScopes))
	observability.RecordWalletOp("change", "ok")
	return res, nil
}

// BindScope binds (tenantID, ref) to the named scope at the 1-based index,
// creating the scope in the store on first use.
func (s *Service) BindScope(ctx context.Context, tenantID string, ref domain.ExternalRef, index int, refresh bool) (string, error) {
	if index < 1 || index > len(s.eventScopes) {
		return "", fmt.Errorf("%w: index %d not in 1..%d", ErrUnknownScope, index, len(s.eventScopes))
	}
	scopeName := s.eventScopes[index-1]

	if err := s.store.EnsureScope(ctx, scopeName); err != nil {
		return "", err
	}
	if err := s.bindings.Create(ctx, tenantID, scopeName, ref, refresh); err != nil {
		return "", err
	}

	s.logger.Printf("bind: tenant=%s scope=%s message=%s", tenantID, scopeName, ref.MessageID)
	observability.RecordBindingCreated()
	return scopeName, nil
}

// ResolveScope maps an inbound reference to its bound scope name.
func (s *Service) ResolveScope(ctx context.Context, ref domain.ExternalRef) (string, error) {
	return s.bindings.Resolve(ctx, ref)
}

// Bindings lists tenantID's bindings in creation order.
func (s *Service) Bindings(ctx context.Context, tenantID string) ([]domain.ScopeBinding, error) {
	return s.bindings.List(ctx, tenantID)
}
