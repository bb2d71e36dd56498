package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// RunReport is the outcome of one completed snapshot run.
type RunReport struct {
	// RunID correlates logs, audit rows and archived snapshots.
	RunID string
	// Contract is the asset the run was taken for.
	Contract string
	// HolderCount is the number of exported entries.
	HolderCount int
	// TotalSupply is the display rendering of the exact accumulated total.
	TotalSupply string
	// Truncated marks a partial run (record cap or error budget).
	Truncated bool
	// CSV is the rendered export, ready to attach or write out.
	CSV string
	// Filename is the suggested name for the CSV attachment.
	Filename string
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
	// AuditLogged reports whether the audit row reached the store.
	AuditLogged bool
}

// SummaryText renders the run summary posted alongside the CSV attachment.
func (r *RunReport) SummaryText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Contract Address**: %s\n", r.Contract)
	fmt.Fprintf(&b, "**Total Holders**: %d\n", r.HolderCount)
	fmt.Fprintf(&b, "**Total Supply**: %s\n\n", r.TotalSupply)
	if r.Truncated {
		b.WriteString("Note: the run stopped early, so the attached list is partial.\n\n")
	}
	b.WriteString("Your CSV file is attached below.")
	return b.String()
}
