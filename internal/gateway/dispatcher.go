package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"holdersnap/internal/archive"
	"holdersnap/internal/registry"
	"holdersnap/internal/rowstore"
	"holdersnap/internal/snapshot"
)

// Commands routed by the dispatcher.
const (
	// CommandSnapshot runs a holder snapshot for the contract option.
	CommandSnapshot = "snapshot"
	// CommandBind binds a wallet scope to the target message.
	CommandBind = "bind"
	// CommandBindings lists the tenant's scope bindings.
	CommandBindings = "bindings"
	// CommandHistory lists archived snapshot runs.
	CommandHistory = "history"
)

// Component and modal custom IDs used on bound registration messages.
const (
	// ComponentRegister is the register button.
	ComponentRegister = "register"
	// ComponentCheck is the check-address button.
	ComponentCheck = "check"
	// ComponentChange is the change-address button.
	ComponentChange = "change"
	// ModalRegisterAddress is the address form submitted to finish a
	// first-time registration.
	ModalRegisterAddress = "register_address"
	// ModalChangeAddress is the address form submitted for an address change.
	ModalChangeAddress = "change_address"
)

// genericFailure is the only message unexpected errors ever surface. The
// detail stays in the internal log.
const genericFailure = "Something went wrong on our side. Please try again in a moment."

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Snapshots runs holder snapshot reports. Required.
	Snapshots *snapshot.Service
	// Registry serves wallet and binding actions. Required.
	Registry *registry.Service
	// Archive serves the history command. Optional.
	Archive archive.Store
	// Responder delivers outcomes back to the platform. Required.
	Responder Responder
	// Logger defaults to a [dispatch]-prefixed stdout logger.
	Logger *log.Logger
}

// Dispatcher routes interactions to the snapshot and registry services and
// translates their outcomes into user-facing responses.
type Dispatcher struct {
	snapshots *snapshot.Service
	registry  *registry.Service
	archive   archive.Store
	responder Responder
	logger    *log.Logger
}

// NewDispatcher creates a Dispatcher with defaults applied.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		snapshots: opts.Snapshots,
		registry:  opts.Registry,
		archive:   opts.Archive,
		responder: opts.Responder,
		logger:    opts.Logger,
	}
	if d.logger == nil {
		d.logger = log.New(os.Stdout, "[dispatch] ", log.LstdFlags|log.Lshortfile)
	}
	return d
}

// Run consumes interactions until the stream closes or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Interaction) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case inter, ok := <-events:
			if !ok {
				return nil
			}
			d.Dispatch(ctx, inter)
		}
	}
}

// Dispatch handles one interaction and delivers the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, inter Interaction) {
	resp := d.handle(ctx, inter)
	if err := d.responder.Respond(ctx, inter, resp); err != nil {
		d.logger.Printf("respond to interaction %s: %v", inter.ID, err)
	}
}

func (d *Dispatcher) handle(ctx context.Context, inter Interaction) Response {
	switch inter.Kind {
	case KindCommand:
		return d.handleCommand(ctx, inter)
	case KindComponent:
		return d.handleComponent(ctx, inter)
	case KindModal:
		return d.handleModal(ctx, inter)
	default:
		d.logger.Printf("interaction %s has unknown kind %q", inter.ID, inter.Kind)
		return Response{Content: genericFailure}
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, inter Interaction) Response {
	switch inter.Command {
	case CommandSnapshot:
		return d.runSnapshot(ctx, inter)
	case CommandBind:
		return d.bindScope(ctx, inter)
	case CommandBindings:
		return d.listBindings(ctx, inter)
	case CommandHistory:
		return d.listHistory(ctx, inter)
	default:
		return Response{Content: fmt.Sprintf("Unknown command %q.", inter.Command)}
	}
}

func (d *Dispatcher) runSnapshot(ctx context.Context, inter Interaction) Response {
	contract := strings.TrimSpace(inter.Options["contract"])

	report, err := d.snapshots.Run(ctx, inter.Actor, contract)
	if err != nil {
		return d.failure(inter, "snapshot", err)
	}
	return Response{
		Content: report.SummaryText(),
		File:    &Attachment{Name: report.Filename, Data: []byte(report.CSV)},
	}
}

func (d *Dispatcher) bindScope(ctx context.Context, inter Interaction) Response {
	index, err := strconv.Atoi(strings.TrimSpace(inter.Options["scope"]))
	if err != nil {
		return Response{Content: "The scope option must be a number."}
	}
	refresh := inter.Options["refresh"] == "true"

	scope, err := d.registry.BindScope(ctx, inter.TenantID, inter.Ref(), index, refresh)
	if err != nil {
		return d.failure(inter, "bind", err)
	}
	return Response{Content: fmt.Sprintf("Scope %q is now bound to this message.", scope)}
}

func (d *Dispatcher) listBindings(ctx context.Context, inter Interaction) Response {
	bindings, err := d.registry.Bindings(ctx, inter.TenantID)
	if err != nil {
		return d.failure(inter, "bindings", err)
	}
	if len(bindings) == 0 {
		return Response{Content: "No scopes are bound yet."}
	}

	var b strings.Builder
	b.WriteString("Bound scopes:\n")
	for _, bd := range bindings {
		fmt.Fprintf(&b, "- %s: message %s in channel %s\n", bd.ScopeName, bd.Ref.MessageID, bd.Ref.ChannelID)
	}
	return Response{Content: strings.TrimSuffix(b.String(), "\n")}
}

func (d *Dispatcher) listHistory(ctx context.Context, inter Interaction) Response {
	if d.archive == nil {
		return Response{Content: "Snapshot history is not enabled."}
	}

	contract := strings.TrimSpace(inter.Options["contract"])
	limit := 5
	if raw := inter.Options["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Response{Content: "The limit option must be a positive number."}
		}
		limit = n
	}

	metas, err := d.archive.RecentSnapshots(ctx, contract, limit)
	if err != nil {
		return d.failure(inter, "history", err)
	}
	if len(metas) == 0 {
		return Response{Content: "No archived snapshots yet."}
	}

	var b strings.Builder
	b.WriteString("Recent snapshots:\n")
	for _, m := range metas {
		fmt.Fprintf(&b, "- %s %s: %d holders, supply %s",
			m.TakenAt.UTC().Format("2006-01-02 15:04"), m.Contract, m.HolderCount, m.TotalSupply)
		if m.Truncated {
			b.WriteString(" (partial)")
		}
		b.WriteString("\n")
	}
	return Response{Content: strings.TrimSuffix(b.String(), "\n")}
}

func (d *Dispatcher) handleComponent(ctx context.Context, inter Interaction) Response {
	switch inter.CustomID {
	case ComponentRegister:
		return d.register(ctx, inter)
	case ComponentCheck:
		return d.check(ctx, inter)
	case ComponentChange:
		return Response{Content: "Enter the new wallet address.", NeedsInput: true}
	default:
		d.logger.Printf("interaction %s has unknown component %q", inter.ID, inter.CustomID)
		return Response{Content: genericFailure}
	}
}

func (d *Dispatcher) register(ctx context.Context, inter Interaction) Response {
	scope, err := d.registry.ResolveScope(ctx, inter.Ref())
	if err != nil {
		return d.failure(inter, "register", err)
	}

	res, err := d.registry.Register(ctx, scope, inter.Actor)
	if err != nil {
		return d.failure(inter, "register", err)
	}

	switch res.Outcome {
	case registry.OutcomeAlreadyEnrolled:
		return Response{Content: fmt.Sprintf("You are already registered for %s with address %s.", scope, res.Entry.Address)}
	case registry.OutcomeEnrolledFromMaster:
		return Response{Content: fmt.Sprintf("Registered you for %s with your saved address %s.", scope, res.Entry.Address)}
	case registry.OutcomeNeedsAddress:
		return Response{Content: "We have no wallet address for you yet. Enter one to finish registering.", NeedsInput: true}
	default:
		d.logger.Printf("register: interaction %s got unknown outcome %q", inter.ID, res.Outcome)
		return Response{Content: genericFailure}
	}
}

func (d *Dispatcher) check(ctx context.Context, inter Interaction) Response {
	scope, err := d.registry.ResolveScope(ctx, inter.Ref())
	if err != nil {
		return d.failure(inter, "check", err)
	}

	res, err := d.registry.Check(ctx, scope, inter.Actor)
	if err != nil {
		return d.failure(inter, "check", err)
	}

	switch {
	case res.Entry == nil:
		return Response{Content: fmt.Sprintf("You are not registered for %s.", scope)}
	case res.MasterOnly:
		return Response{Content: fmt.Sprintf("You are not registered for %s, but your saved address is %s. Press register to enroll.", scope, res.Entry.Address)}
	default:
		return Response{Content: fmt.Sprintf("Your registered address for %s is %s.", scope, res.Entry.Address)}
	}
}

func (d *Dispatcher) handleModal(ctx context.Context, inter Interaction) Response {
	switch inter.CustomID {
	case ModalRegisterAddress:
		return d.registerWithAddress(ctx, inter)
	case ModalChangeAddress:
		return d.changeAddress(ctx, inter)
	default:
		d.logger.Printf("interaction %s has unknown modal %q", inter.ID, inter.CustomID)
		return Response{Content: genericFailure}
	}
}

func (d *Dispatcher) registerWithAddress(ctx context.Context, inter Interaction) Response {
	scope, err := d.registry.ResolveScope(ctx, inter.Ref())
	if err != nil {
		return d.failure(inter, "register", err)
	}

	entry, err := d.registry.RegisterWithAddress(ctx, scope, inter.Actor, inter.Options["address"])
	if err != nil {
		return d.failure(inter, "register", err)
	}
	return Response{Content: fmt.Sprintf("Registered you for %s with address %s.", scope, entry.Address)}
}

func (d *Dispatcher) changeAddress(ctx context.Context, inter Interaction) Response {
	res, err := d.registry.Change(ctx, inter.Actor, inter.Options["address"])
	if err != nil {
		return d.failure(inter, "change", err)
	}

	if len(res.UpdatedScopes) == 0 {
		return Response{Content: fmt.Sprintf("Saved %s as your address. No scope enrollments needed updating.", res.Entry.Address)}
	}
	return Response{Content: fmt.Sprintf("Saved %s as your address and updated %s.", res.Entry.Address, strings.Join(res.UpdatedScopes, ", "))}
}

// failure translates a service error into a user-facing response. Typed
// rejections get specific wording; anything else surfaces only the generic
// message while the full detail goes to the internal log.
func (d *Dispatcher) failure(inter Interaction, op string, err error) Response {
	switch {
	case errors.Is(err, snapshot.ErrNoContract):
		return Response{Content: "A contract address is required."}
	case errors.Is(err, registry.ErrDuplicateBinding):
		return Response{Content: "That scope is already bound to a message here. Re-run with the refresh option to move it."}
	case errors.Is(err, registry.ErrUnknownScope):
		return Response{Content: "That scope number is not in the configured list."}
	case errors.Is(err, registry.ErrBindingNotFound):
		return Response{Content: "This message is not linked to a wallet scope."}
	case errors.Is(err, rowstore.ErrScopeNotFound):
		return Response{Content: "A required worksheet is missing from the store. Ask an operator to create it."}
	case errors.Is(err, rowstore.ErrInvalidInput):
		return Response{Content: "That input could not be used. Check the value and try again."}
	case rowstore.IsTransient(err):
		d.logger.Printf("%s: interaction %s hit store rate limits: %v", op, inter.ID, err)
		return Response{Content: "The storage backend is busy right now. Please try again shortly."}
	default:
		d.logger.Printf("%s: interaction %s from %s failed: %v", op, inter.ID, inter.Actor.ID, err)
		return Response{Content: genericFailure}
	}
}
