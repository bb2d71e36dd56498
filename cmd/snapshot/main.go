package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"holdersnap/internal/domain"
	"holdersnap/internal/scan"
	"holdersnap/internal/snapshot"
)

func main() {
	// Parse flags
	contract := flag.String("contract", "", "Contract address to snapshot")
	scanEndpoint := flag.String("scan-endpoint", os.Getenv("SCAN_ENDPOINT"), "Explorer API endpoint for holder lists")
	scanAPIKey := flag.String("scan-api-key", os.Getenv("SCAN_API_KEY"), "Explorer API key")
	pageSize := flag.Int("page-size", snapshot.DefaultPageSize, "Holder list page size")
	maxRecords := flag.Int("max-records", snapshot.DefaultMaxRecords, "Record cap for the run")
	mergeHolders := flag.Bool("merge-holders", false, "Fold duplicate addresses into one entry")
	integerDisplay := flag.Bool("integer-display", false, "Truncate quantities toward zero")
	outPath := flag.String("out", snapshot.CSVFilename, "Path the CSV export is written to")
	flag.Parse()

	ctx := context.Background()

	// Validate flags
	if *contract == "" {
		fmt.Fprintln(os.Stderr, "Error: --contract is required")
		os.Exit(1)
	}
	if *scanEndpoint == "" {
		fmt.Fprintln(os.Stderr, "Error: --scan-endpoint is required (or set SCAN_ENDPOINT)")
		os.Exit(1)
	}

	source := scan.NewClient(*scanEndpoint, scan.WithAPIKey(*scanAPIKey))

	// One-shot runs skip the store: no audit row, no archive
	service := snapshot.NewService(snapshot.ServiceOptions{
		Fetcher: snapshot.NewFetcher(snapshot.Options{
			Source:          source,
			PageSize:        *pageSize,
			MaxRecords:      *maxRecords,
			MergeDuplicates: *mergeHolders,
		}),
		IntegerDisplay: *integerDisplay,
	})

	actor := domain.Actor{ID: "cli", DisplayName: "cli"}
	report, err := service.Run(ctx, actor, *contract)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error taking snapshot: %v\n", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(*outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
			os.Exit(1)
		}
	}
	if err := os.WriteFile(*outPath, []byte(report.CSV), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		os.Exit(1)
	}

	// The summary is markdown for chat delivery; strip the bold markers here
	fmt.Println(strings.ReplaceAll(report.SummaryText(), "**", ""))
	fmt.Printf("\nWrote %d holders to %s in %s\n", report.HolderCount, *outPath, report.Elapsed.Round(time.Millisecond))
}
