package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"holdersnap/internal/archive"
	"holdersnap/internal/domain"
)

// Store implements archive.Store using ClickHouse.
//
// Runs split across two MergeTree tables: one metadata row per run in
// holder_snapshots, and the full record set in holder_records ordered by
// (run_id, seq) so the fetch order of a run can be reproduced exactly.
type Store struct {
	conn *Conn
}

// NewStore creates a Store over conn.
func NewStore(conn *Conn) *Store {
	return &Store{conn: conn}
}

// Compile-time interface check.
var _ archive.Store = (*Store)(nil)

// SaveSnapshot writes the metadata row and the full record set of one run.
// Quantities are stored as their exact decimal string rendering.
func (s *Store) SaveSnapshot(ctx context.Context, meta archive.SnapshotMeta, records []domain.HolderRecord) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO holder_snapshots (
			run_id, contract, actor, taken_at,
			pages_fetched, truncated, total_supply, holder_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		meta.RunID, meta.Contract, meta.Actor, meta.TakenAt,
		uint32(meta.PagesFetched), meta.Truncated, meta.TotalSupply, uint64(len(records)),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot meta: %w", err)
	}

	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO holder_records (run_id, seq, address, quantity)
	`)
	if err != nil {
		return fmt.Errorf("prepare records batch: %w", err)
	}

	for i, r := range records {
		if err := batch.Append(meta.RunID, uint32(i), r.Address, r.Quantity.String()); err != nil {
			return fmt.Errorf("append record %d to batch: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send records batch: %w", err)
	}
	return nil
}

// RecentSnapshots retrieves metadata for the latest runs, newest first.
// An empty contract matches all runs.
func (s *Store) RecentSnapshots(ctx context.Context, contract string, limit int) ([]archive.SnapshotMeta, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT run_id, contract, actor, taken_at,
			pages_fetched, truncated, total_supply, holder_count
		FROM holder_snapshots
	`
	args := []any{}
	if contract != "" {
		query += ` WHERE contract = ?`
		args = append(args, contract)
	}
	query += ` ORDER BY taken_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent snapshots: %w", err)
	}
	defer rows.Close()

	var metas []archive.SnapshotMeta
	for rows.Next() {
		var (
			m       archive.SnapshotMeta
			pages   uint32
			holders uint64
		)
		err := rows.Scan(&m.RunID, &m.Contract, &m.Actor, &m.TakenAt, &pages, &m.Truncated, &m.TotalSupply, &holders)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		m.PagesFetched = int(pages)
		m.HolderCount = int(holders)
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return metas, nil
}

// Records retrieves the stored record set of one run in fetch order.
func (s *Store) Records(ctx context.Context, runID string) ([]domain.HolderRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT address, quantity
		FROM holder_records
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.HolderRecord
	for rows.Next() {
		var (
			address  string
			quantity string
		)
		if err := rows.Scan(&address, &quantity); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		q, err := decimal.NewFromString(quantity)
		if err != nil {
			return nil, fmt.Errorf("parse stored quantity %q: %w", quantity, err)
		}
		records = append(records, domain.HolderRecord{Address: address, Quantity: q})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
