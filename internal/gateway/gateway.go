// Package gateway connects the bot to its chat platform. A WebSocket source
// delivers user interactions, a dispatcher routes them to the snapshot and
// registry services, and a Responder carries the outcome back.
package gateway

import (
	"context"
	"log"
	"os"

	"holdersnap/internal/domain"
)

// Interaction kinds delivered by the platform gateway.
const (
	// KindCommand is a typed slash command with named options.
	KindCommand = "command"
	// KindComponent is a click on a button attached to a message.
	KindComponent = "component"
	// KindModal is a submitted input form.
	KindModal = "modal"
)

// Interaction is one user action received from the chat platform.
type Interaction struct {
	// ID is the platform-assigned interaction ID.
	ID string
	// Kind is one of KindCommand, KindComponent, KindModal.
	Kind string
	// Command is the command name for KindCommand interactions.
	Command string
	// Options holds named command or modal inputs.
	Options map[string]string
	// CustomID identifies the component or modal for non-command kinds.
	CustomID string
	// TenantID is the chat server the interaction happened in.
	TenantID string
	// ChannelID and MessageID locate the message the interaction targets.
	ChannelID string
	MessageID string
	// Actor is the user behind the interaction.
	Actor domain.Actor
}

// Ref returns the message reference the interaction targets.
func (i Interaction) Ref() domain.ExternalRef {
	return domain.ExternalRef{ChannelID: i.ChannelID, MessageID: i.MessageID}
}

// Attachment is a file posted with a response.
type Attachment struct {
	Name string
	Data []byte
}

// Response is what the dispatcher sends back for one interaction.
type Response struct {
	// Content is the user-visible message text.
	Content string
	// File is an optional attachment delivered with the message.
	File *Attachment
	// NeedsInput asks the platform layer to collect a wallet address from
	// the user before the flow can finish.
	NeedsInput bool
}

// Source delivers interactions from the chat platform.
type Source interface {
	// Events returns the interaction stream. The channel closes when the
	// source shuts down.
	Events() <-chan Interaction

	// Close shuts the source down.
	Close() error
}

// Responder carries a Response back to the chat platform.
type Responder interface {
	Respond(ctx context.Context, inter Interaction, resp Response) error
}

// LogResponder writes responses to a logger. It stands in for the platform
// REST layer in tests and local runs.
type LogResponder struct {
	Logger *log.Logger
}

// Compile-time interface check.
var _ Responder = (*LogResponder)(nil)

// Respond logs the response content and attachment size.
func (r *LogResponder) Respond(_ context.Context, inter Interaction, resp Response) error {
	logger := r.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[responder] ", log.LstdFlags)
	}
	if resp.File != nil {
		logger.Printf("to %s (interaction %s): %q + file %s (%d bytes)",
			inter.Actor.ID, inter.ID, resp.Content, resp.File.Name, len(resp.File.Data))
		return nil
	}
	logger.Printf("to %s (interaction %s): %q", inter.Actor.ID, inter.ID, resp.Content)
	return nil
}
