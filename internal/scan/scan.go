// Package scan talks to an etherscan-family explorer API to enumerate
// the holders of an asset contract, one page at a time.
package scan

import "context"

// HolderSource defines the explorer holder-list interface.
type HolderSource interface {
	// HolderPage fetches one page of the holder list for a contract.
	// A non-nil error means the page could not be obtained at all;
	// explorer-level rejections come back as a page with OK=false.
	HolderPage(ctx context.Context, contract string, page, offset int) (*HolderPage, error)
}

// Holder is a single entry of a holder-list page, quantities kept as the
// decimal strings the explorer sent.
type Holder struct {
	Address  string
	Quantity string
}

// HolderPage is one decoded page of the holder list.
type HolderPage struct {
	OK      bool   // explorer success indicator ("status" == "1")
	Message string // explorer status message, e.g. "OK" or a rejection reason
	Records []Holder
}
