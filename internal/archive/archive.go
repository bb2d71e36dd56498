// Package archive persists completed holder snapshots for later analysis.
package archive

import (
	"context"
	"time"

	"holdersnap/internal/domain"
)

// SnapshotMeta describes one completed run.
type SnapshotMeta struct {
	RunID        string
	Contract     string
	Actor        string
	TakenAt      time.Time
	PagesFetched int
	Truncated    bool
	TotalSupply  string
	// HolderCount is derived from the record set on save; callers populating
	// a SnapshotMeta for SaveSnapshot can leave it zero.
	HolderCount int
}

// Store is the long-term snapshot sink.
type Store interface {
	// SaveSnapshot writes the full record set of one run. Records are stored
	// in fetch order; the position of each record within the run is kept so
	// exports can be reproduced byte for byte.
	SaveSnapshot(ctx context.Context, meta SnapshotMeta, records []domain.HolderRecord) error

	// RecentSnapshots returns metadata for the latest runs of a contract,
	// newest first. An empty contract matches all runs.
	RecentSnapshots(ctx context.Context, contract string, limit int) ([]SnapshotMeta, error)

	// Close releases the underlying connection.
	Close() error
}
