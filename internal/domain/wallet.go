package domain

// WalletEntry is one row of a wallet scope in the remote tabular store.
// Column order: display name, external user ID, wallet address.
type WalletEntry struct {
	DisplayName    string // human-readable name, refreshed on every write
	ExternalUserID string // stable chat-platform user ID, the upsert key
	Address        string // wallet address supplied by the user
}

// Actor identifies the chat user behind an interaction or snapshot run.
type Actor struct {
	ID          string
	DisplayName string
}
