package snapshot

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"holdersnap/internal/archive"
	"holdersnap/internal/domain"
	"holdersnap/internal/observability"
	"holdersnap/internal/rowstore"
	"holdersnap/internal/runid"
)

// DefaultAuditScope is the scope audit rows land in when none is configured.
const DefaultAuditScope = "log"

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Fetcher drives pagination. Required.
	Fetcher *Fetcher
	// Store receives one audit row per run. Nil disables audit logging.
	Store *rowstore.Client
	// AuditScope is the scope audit rows are appended to.
	AuditScope string
	// Archive receives the full record set of each run. Nil disables it.
	Archive archive.Store
	// IntegerDisplay truncates quantities toward zero for export and summary.
	IntegerDisplay bool
	// Logger defaults to a [snapshot]-prefixed stdout logger.
	Logger *log.Logger
}

// Service runs snapshots end to end: fetch, aggregate, export, audit.
//
// Audit and archive failures are logged and reflected in the report but do
// not fail a run that produced a complete result set.
type Service struct {
	fetcher        *Fetcher
	store          *rowstore.Client
	auditScope     string
	archive        archive.Store
	integerDisplay bool
	logger         *log.Logger
}

// NewService creates a Service with defaults applied.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		fetcher:        opts.Fetcher,
		store:          opts.Store,
		auditScope:     opts.AuditScope,
		archive:        opts.Archive,
		integerDisplay: opts.IntegerDisplay,
		logger:         opts.Logger,
	}
	if s.auditScope == "" {
		s.auditScope = DefaultAuditScope
	}
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[snapshot] ", log.LstdFlags|log.Lshortfile)
	}
	return s
}

// Run takes a snapshot of contract on behalf of actor.
func (s *Service) Run(ctx context.Context, actor domain.Actor, contract string) (*RunReport, error) {
	start := time.Now()

	res, err := s.fetcher.FetchAll(ctx, contract)
	if err != nil {
		observability.RecordSnapshotRun("error", time.Since(start).Seconds())
		return nil, err
	}

	id := runid.New(actor.ID, contract, start.UnixNano())

	report := &RunReport{
		RunID:       id,
		Contract:    contract,
		HolderCount: res.RecordCount(),
		TotalSupply: FormatQuantity(res.TotalQuantity, s.integerDisplay),
		Truncated:   res.Truncated,
		CSV:         RenderCSV(res.Records, s.integerDisplay),
		Filename:    CSVFilename,
	}

	s.logger.Printf("run %s: contract=%s holders=%d supply=%s pages=%d truncated=%t",
		id, contract, report.HolderCount, report.TotalSupply, res.PagesFetched, res.Truncated)

	if res.Truncated {
		observability.RecordSnapshotTruncated()
	}

	if s.store != nil {
		row := []string{actor.DisplayName, contract, strconv.Itoa(report.HolderCount), report.TotalSupply}
		if err := s.store.AppendRow(ctx, s.auditScope, row); err != nil {
			s.logger.Printf("run %s: audit append failed: %v", id, err)
		} else {
			report.AuditLogged = true
		}
	}

	if s.archive != nil {
		meta := archive.SnapshotMeta{
			RunID:        id,
			Contract:     contract,
			Actor:        actor.DisplayName,
			TakenAt:      start,
			PagesFetched: res.PagesFetched,
			Truncated:    res.Truncated,
			TotalSupply:  report.TotalSupply,
		}
		if err := s.archive.SaveSnapshot(ctx, meta, res.Records); err != nil {
			s.logger.Printf("run %s: archive write failed: %v", id, err)
		}
	}

	report.Elapsed = time.Since(start)
	observability.RecordSnapshotRun("ok", report.Elapsed.Seconds())
	observability.MarkSnapshotSuccess(float64(time.Now().Unix()))
	return report, nil
}
