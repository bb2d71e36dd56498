package rowstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"holdersnap/internal/observability"
)

// Default retry and cache configuration.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultCacheSize  = 64
)

// Client wraps a Backend with the retry and caching policy all store access
// goes through: transient failures are retried with doubling backoff, reads
// are served from a per-scope LRU cache that every successful write
// invalidates. Scopes registered as uncached always hit the backend, so
// out-of-band writers stay visible.
//
// Reads may be stale relative to a concurrent writer; they are never torn,
// because cached rows are deep copies private to the cache.
type Client struct {
	backend    Backend
	maxRetries int
	retryDelay time.Duration
	cacheSize  int
	logger     *log.Logger

	cache    *lru.Cache[string, [][]string]
	uncached map[string]struct{}

	revMu sync.Mutex
	revs  map[string]uint64
}

// Option configures Client.
type Option func(*Client)

// WithMaxRetries sets maximum retry attempts for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay. Each retry doubles it.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithCacheSize sets the number of scopes the read cache holds.
func WithCacheSize(n int) Option {
	return func(c *Client) {
		c.cacheSize = n
	}
}

// WithUncachedScopes exempts scopes from read caching entirely.
func WithUncachedScopes(scopes ...string) Option {
	return func(c *Client) {
		for _, s := range scopes {
			c.uncached[s] = struct{}{}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client around backend.
func New(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:    backend,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		cacheSize:  DefaultCacheSize,
		logger:     log.New(os.Stdout, "[rowstore] ", log.LstdFlags|log.Lshortfile),
		uncached:   make(map[string]struct{}),
		revs:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize < 1 {
		c.cacheSize = DefaultCacheSize
	}
	c.cache, _ = lru.New[string, [][]string](c.cacheSize)
	return c
}

// ReadAllRows returns every row of a scope, from cache when possible.
// The returned slices are the caller's to keep.
func (c *Client) ReadAllRows(ctx context.Context, scope string) ([][]string, error) {
	_, skipCache := c.uncached[scope]

	if !skipCache {
		if rows, ok := c.cache.Get(scope); ok {
			observability.RecordStoreCacheHit()
			return copyRows(rows), nil
		}
		observability.RecordStoreCacheMiss()
	}

	var rows [][]string
	err := c.do(ctx, "read rows", func() error {
		var err error
		rows, err = c.backend.ReadAllRows(ctx, scope)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !skipCache {
		c.cache.Add(scope, copyRows(rows))
	}
	return rows, nil
}

// AppendRow appends one row to a scope and invalidates its cached view.
func (c *Client) AppendRow(ctx context.Context, scope string, row []string) error {
	err := c.do(ctx, "append row", func() error {
		return c.backend.AppendRow(ctx, scope, row)
	})
	if err != nil {
		return err
	}
	c.invalidate(scope)
	return nil
}

// UpdateCell overwrites a single cell and invalidates the scope's cached view.
func (c *Client) UpdateCell(ctx context.Context, scope string, rowIdx, colIdx int, value string) error {
	err := c.do(ctx, "update cell", func() error {
		return c.backend.UpdateCell(ctx, scope, rowIdx, colIdx, value)
	})
	if err != nil {
		return err
	}
	c.invalidate(scope)
	return nil
}

// EnsureScope creates a scope if it does not exist yet.
func (c *Client) EnsureScope(ctx context.Context, scope string) error {
	return c.do(ctx, "ensure scope", func() error {
		return c.backend.EnsureScope(ctx, scope)
	})
}

// ListScopes returns the names of all scopes in the store. Never cached.
func (c *Client) ListScopes(ctx context.Context) ([]string, error) {
	var scopes []string
	err := c.do(ctx, "list scopes", func() error {
		var err error
		scopes, err = c.backend.ListScopes(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return scopes, nil
}

// Revision returns a counter that increases every time a write invalidates
// the scope's cached view. Callers memoize derived indexes against it.
func (c *Client) Revision(scope string) uint64 {
	c.revMu.Lock()
	defer c.revMu.Unlock()
	return c.revs[scope]
}

// do runs one store operation under the retry policy: transient failures are
// retried up to maxRetries additional times with doubling backoff, anything
// else returns immediately.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	observability.RecordStoreCall(op)

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			observability.RecordStoreRetry(op)
		}

		err := fn()
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			observability.RecordStoreError(op)
			return err
		}

		lastErr = err
		c.logger.Printf("%s: transient failure (attempt %d/%d): %v", op, attempt+1, c.maxRetries+1, err)
	}

	observability.RecordStoreError(op)
	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

func (c *Client) invalidate(scope string) {
	c.cache.Remove(scope)
	c.revMu.Lock()
	c.revs[scope]++
	c.revMu.Unlock()
}

// copyRows deep-copies a row grid so cache and callers never share cells.
func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
