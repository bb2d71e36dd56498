package domain

// ExternalRef locates a posted registration message on the chat platform.
type ExternalRef struct {
	ChannelID string
	MessageID string
}

// ScopeBinding links a tenant's registration message to a wallet scope.
// Column order in the binding scope: tenant ID, channel ID, message ID,
// scope name, created-at timestamp.
type ScopeBinding struct {
	TenantID  string
	Ref       ExternalRef
	ScopeName string
	CreatedAt int64 // Unix timestamp in milliseconds
}
