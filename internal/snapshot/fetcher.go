// Package snapshot drives holder pagination to completion, aggregates the
// result set exactly and renders it for export.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"holdersnap/internal/domain"
	"holdersnap/internal/observability"
	"holdersnap/internal/scan"
)

// Default fetch loop configuration.
const (
	DefaultPageSize             = 100
	DefaultMaxRecords           = 30000
	DefaultMaxConsecutiveErrors = 5
	DefaultRetryBackoff         = 1 * time.Second
	DefaultPageDelay            = 200 * time.Millisecond
)

// ErrNoContract is returned when a run is requested without a contract address.
var ErrNoContract = errors.New("contract address is required")

// Options configures a Fetcher.
type Options struct {
	// Source supplies holder pages. Required.
	Source scan.HolderSource
	// PageSize is the number of records requested per page.
	PageSize int
	// MaxRecords caps the accumulated entries; reaching it stops the run.
	MaxRecords int
	// MaxConsecutiveErrors is the failed-attempt budget for a single page.
	MaxConsecutiveErrors int
	// RetryBackoff is the fixed wait between failed attempts on one page.
	RetryBackoff time.Duration
	// PageDelay is the pause between successive page requests.
	PageDelay time.Duration
	// MergeDuplicates folds repeated addresses into their first entry
	// instead of accumulating them separately.
	MergeDuplicates bool
	// Logger defaults to a [snapshot]-prefixed stdout logger.
	Logger *log.Logger
}

// Fetcher walks holder pagination for one contract at a time.
//
// A page that cannot be obtained is retried in place; once the consecutive
// failure budget is spent the run stops and returns what accumulated so far
// with Truncated set. Callers must treat Truncated as the partial-success
// signal, not as an error.
type Fetcher struct {
	source               scan.HolderSource
	pageSize             int
	maxRecords           int
	maxConsecutiveErrors int
	retryBackoff         time.Duration
	pageDelay            time.Duration
	mergeDuplicates      bool
	logger               *log.Logger
}

// NewFetcher creates a Fetcher with defaults applied.
func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		source:               opts.Source,
		pageSize:             opts.PageSize,
		maxRecords:           opts.MaxRecords,
		maxConsecutiveErrors: opts.MaxConsecutiveErrors,
		retryBackoff:         opts.RetryBackoff,
		pageDelay:            opts.PageDelay,
		mergeDuplicates:      opts.MergeDuplicates,
		logger:               opts.Logger,
	}
	if f.pageSize <= 0 {
		f.pageSize = DefaultPageSize
	}
	if f.maxRecords <= 0 {
		f.maxRecords = DefaultMaxRecords
	}
	if f.maxConsecutiveErrors <= 0 {
		f.maxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if f.retryBackoff <= 0 {
		f.retryBackoff = DefaultRetryBackoff
	}
	if f.pageDelay <= 0 {
		f.pageDelay = DefaultPageDelay
	}
	if f.logger == nil {
		f.logger = log.New(os.Stdout, "[snapshot] ", log.LstdFlags|log.Lshortfile)
	}
	return f
}

// FetchAll drains the holder list for contract, starting at page 1.
//
// Termination, in order of precedence per page: the accumulated record cap
// (Truncated=true, no further page requested), the consecutive-error budget
// (Truncated=true with the partial result), an explorer end-of-data page or
// short page (Truncated=false). Context cancellation aborts the run with
// ctx.Err() at the next wait or request boundary.
func (f *Fetcher) FetchAll(ctx context.Context, contract string) (*domain.AggregationResult, error) {
	if contract == "" {
		return nil, ErrNoContract
	}

	acc := newAccumulator(f.mergeDuplicates, f.maxRecords)
	page := 1
	consecutive := 0
	pages := 0
	truncated := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parsed, err := f.fetchPage(ctx, contract, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			consecutive++
			observability.RecordPageError()
			f.logger.Printf("page %d attempt failed (%d/%d): %v", page, consecutive, f.maxConsecutiveErrors, err)

			if consecutive >= f.maxConsecutiveErrors {
				truncated = true
				f.logger.Printf("error budget exhausted on page %d, returning %d records", page, acc.count())
				break
			}

			if err := wait(ctx, f.retryBackoff); err != nil {
				return nil, err
			}
			continue
		}
		consecutive = 0

		if len(parsed) == 0 {
			// End of data
			break
		}

		consumed, capped := acc.add(parsed)
		pages++
		observability.RecordPageFetched()
		observability.RecordHoldersAccumulated(consumed)

		if capped {
			truncated = true
			f.logger.Printf("record cap %d reached on page %d", f.maxRecords, page)
			break
		}

		if len(parsed) < f.pageSize {
			// Short page: the list is exhausted
			break
		}

		page++
		if err := wait(ctx, f.pageDelay); err != nil {
			return nil, err
		}
	}

	return acc.result(contract, pages, truncated), nil
}

// fetchPage obtains and parses one page. Any failure to obtain a clean page
// (transport, HTTP status, undecodable body, explorer rejection mid-stream,
// malformed quantity) comes back as an error for the budget accounting; an
// end-of-data page comes back as an empty slice.
func (f *Fetcher) fetchPage(ctx context.Context, contract string, page int) ([]domain.HolderRecord, error) {
	p, err := f.source.HolderPage(ctx, contract, page, f.pageSize)
	if err != nil {
		return nil, err
	}

	if !p.OK {
		if len(p.Records) == 0 {
			// The explorer signals end-of-data with a failed status and an
			// empty result once pagination walks off the end of the list.
			return nil, nil
		}
		return nil, fmt.Errorf("explorer rejected page %d: %s", page, p.Message)
	}

	return parseHolders(p.Records)
}

// wait sleeps for d or until ctx is cancelled.
func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
