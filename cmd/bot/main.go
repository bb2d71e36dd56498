// Package main provides the holder snapshot bot:
// - Gateway (continuous): WebSocket interaction source + dispatcher
// - Snapshot runs: paginated holder fetch → CSV report → audit row → archive
// - Wallet registry: register/check/change across scopes, message bindings
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"holdersnap/internal/archive"
	chstore "holdersnap/internal/archive/clickhouse"
	archmem "holdersnap/internal/archive/memory"
	"holdersnap/internal/gateway"
	"holdersnap/internal/migrations"
	"holdersnap/internal/observability"
	"holdersnap/internal/registry"
	"holdersnap/internal/rowstore"
	"holdersnap/internal/rowstore/memory"
	pgstore "holdersnap/internal/rowstore/postgres"
	"holdersnap/internal/rowstore/sheets"
	"holdersnap/internal/scan"
	"holdersnap/internal/snapshot"
)

// Bot holds the wired components of the service.
type Bot struct {
	// Configuration
	backendName string
	eventScopes []string
	archive     bool

	// Components
	source     gateway.Source
	dispatcher *gateway.Dispatcher
	logger     *log.Logger

	// State
	mu        sync.Mutex
	startedAt time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	gatewayEndpoint := flag.String("gateway-endpoint", os.Getenv("GATEWAY_ENDPOINT"), "Chat platform gateway WebSocket endpoint")
	gatewayToken := flag.String("gateway-token", os.Getenv("GATEWAY_TOKEN"), "Gateway authentication token")
	scanEndpoint := flag.String("scan-endpoint", os.Getenv("SCAN_ENDPOINT"), "Explorer API endpoint for holder lists")
	scanAPIKey := flag.String("scan-api-key", os.Getenv("SCAN_API_KEY"), "Explorer API key")
	spreadsheetID := flag.String("spreadsheet-id", os.Getenv("SPREADSHEET_ID"), "Google spreadsheet backing the row store")
	serviceAccountFile := flag.String("service-account-file", os.Getenv("SERVICE_ACCOUNT_FILE"), "Path to the service account JSON (SERVICE_ACCOUNT_INFO env holds raw JSON)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string backing the row store")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the snapshot archive")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of a remote row store")
	masterScope := flag.String("master-scope", registry.DefaultMasterScope, "Scope holding the authoritative wallet entry per user")
	eventScopes := flag.String("event-scopes", os.Getenv("EVENT_SCOPES"), "Comma-separated wallet scopes bindable by index")
	auditScope := flag.String("audit-scope", snapshot.DefaultAuditScope, "Scope receiving one audit row per snapshot run")
	bindingScope := flag.String("binding-scope", registry.DefaultBindingScope, "Scope storing message-to-scope bindings")
	mergeHolders := flag.Bool("merge-holders", false, "Fold duplicate addresses into one entry during aggregation")
	integerDisplay := flag.Bool("integer-display", false, "Truncate quantities toward zero in summaries and CSV exports")
	maxRecords := flag.Int("max-records", snapshot.DefaultMaxRecords, "Record cap per snapshot run")
	pageSize := flag.Int("page-size", snapshot.DefaultPageSize, "Holder list page size")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *gatewayEndpoint == "" {
		logger.Fatal("--gateway-endpoint is required")
	}
	if *gatewayToken == "" {
		logger.Fatal("--gateway-token is required")
	}
	if *scanEndpoint == "" {
		logger.Fatal("--scan-endpoint is required")
	}
	if !*useMemory && *spreadsheetID == "" && *postgresDSN == "" {
		logger.Fatal("--spreadsheet-id or --postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	scopes := parseScopes(*eventScopes)
	if len(scopes) == 0 {
		logger.Println("No event scopes configured; bind and register actions are unavailable")
	} else {
		logger.Printf("Event scopes: %v", scopes)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create the row store backend
	backend, backendName, cleanup, err := createBackend(ctx, *spreadsheetID, *serviceAccountFile, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create row store: %v", err)
	}
	defer cleanup()
	logger.Printf("Row store backend: %s", backendName)

	store := rowstore.New(backend, rowstore.WithUncachedScopes(*bindingScope))

	// The reserved scopes must exist before any interaction is served
	for _, scope := range []string{*masterScope, *auditScope, *bindingScope} {
		if err := store.EnsureScope(ctx, scope); err != nil {
			logger.Fatalf("Failed to ensure scope %q: %v", scope, err)
		}
	}

	// Create the snapshot archive
	arch, archCleanup, err := createArchive(ctx, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create archive: %v", err)
	}
	defer archCleanup()

	// Wire services
	holderSource := scan.NewClient(*scanEndpoint, scan.WithAPIKey(*scanAPIKey))

	snapshots := snapshot.NewService(snapshot.ServiceOptions{
		Fetcher: snapshot.NewFetcher(snapshot.Options{
			Source:          holderSource,
			PageSize:        *pageSize,
			MaxRecords:      *maxRecords,
			MergeDuplicates: *mergeHolders,
		}),
		Store:          store,
		AuditScope:     *auditScope,
		Archive:        arch,
		IntegerDisplay: *integerDisplay,
	})

	reg := registry.NewService(registry.ServiceOptions{
		Store:          store,
		MasterScope:    *masterScope,
		BindingScope:   *bindingScope,
		EventScopes:    scopes,
		ReservedScopes: []string{*auditScope},
	})

	wsSource, err := gateway.NewWSSource(ctx, *gatewayEndpoint, *gatewayToken, nil)
	if err != nil {
		logger.Fatalf("Failed to connect to gateway: %v", err)
	}
	defer wsSource.Close()

	dispatcher := gateway.NewDispatcher(gateway.DispatcherOptions{
		Snapshots: snapshots,
		Registry:  reg,
		Archive:   arch,
		Responder: &gateway.LogResponder{},
	})

	bot := &Bot{
		backendName: backendName,
		eventScopes: scopes,
		archive:     arch != nil,
		source:      wsSource,
		dispatcher:  dispatcher,
		logger:      logger,
		startedAt:   time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go bot.startHTTPServer(*metricsAddr)

	// Run the bot
	err = bot.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Bot error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// parseScopes splits the comma-separated scope list. Order is preserved
// because bindings address scopes by 1-based index.
func parseScopes(raw string) []string {
	var scopes []string
	seen := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		scopes = append(scopes, s)
	}
	return scopes
}

// createBackend selects the row store implementation.
func createBackend(ctx context.Context, spreadsheetID, serviceAccountFile, postgresDSN string, useMemory bool) (rowstore.Backend, string, func(), error) {
	if useMemory {
		return memory.NewStore(), "memory", func() {}, nil
	}

	if spreadsheetID != "" {
		credentials := []byte(os.Getenv("SERVICE_ACCOUNT_INFO"))
		if serviceAccountFile != "" {
			data, err := os.ReadFile(serviceAccountFile)
			if err != nil {
				return nil, "", nil, fmt.Errorf("read service account file: %w", err)
			}
			credentials = data
		}
		if len(credentials) == 0 {
			return nil, "", nil, fmt.Errorf("sheets backend needs --service-account-file or SERVICE_ACCOUNT_INFO")
		}

		backend, err := sheets.NewBackend(ctx, spreadsheetID, credentials)
		if err != nil {
			return nil, "", nil, fmt.Errorf("connect to sheets: %w", err)
		}
		return backend, "sheets", func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, "", nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, "", nil, fmt.Errorf("run postgres migrations: %w", err)
	}
	return pgstore.NewBackend(pool), "postgres", func() { pool.Close() }, nil
}

// createArchive selects the snapshot archive sink, nil when disabled.
func createArchive(ctx context.Context, clickhouseDSN string, useMemory bool) (archive.Store, func(), error) {
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		store := chstore.NewStore(conn)
		return store, func() { store.Close() }, nil
	}
	if useMemory {
		return archmem.NewStore(), func() {}, nil
	}
	return nil, func() {}, nil
}

// Run consumes gateway interactions until shutdown.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Println("Starting bot...")

	errCh := make(chan error, 1)
	go func() {
		err := b.dispatcher.Run(ctx, b.source.Events())
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	b.logger.Println("Bot started")

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (b *Bot) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", b.handleStatus)

	b.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		b.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	StartedAt      time.Time `json:"started_at"`
	RowStore       string    `json:"row_store"`
	EventScopes    []string  `json:"event_scopes"`
	ArchiveEnabled bool      `json:"archive_enabled"`
}

// handleStatus returns bot status as JSON.
func (b *Bot) handleStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(b.startedAt).String(),
		StartedAt:      b.startedAt,
		RowStore:       b.backendName,
		EventScopes:    b.eventScopes,
		ArchiveEnabled: b.archive,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
