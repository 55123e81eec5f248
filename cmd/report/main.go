package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rai-sim-lab/internal/metrics"
	"rai-sim-lab/internal/reporting"
	"rai-sim-lab/internal/storage"
	chstore "rai-sim-lab/internal/storage/clickhouse"
	pgstore "rai-sim-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	runID := flag.String("run-id", "", "Run ID to report on (required)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (required, holds run records)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (read snapshots from ClickHouse instead of PostgreSQL)")
	outDir := flag.String("out", "docs", "Output directory for the CSV and markdown report")
	flag.Parse()

	ctx := context.Background()

	if *runID == "" {
		fmt.Fprintln(os.Stderr, "Error: --run-id is required")
		os.Exit(1)
	}
	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required (run records live in PostgreSQL)")
		os.Exit(1)
	}

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	runStore := pgstore.NewRunStore(pool)

	var snapStore storage.TickSnapshotStore = pgstore.NewTickSnapshotStore(pool)
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		snapStore = chstore.NewTickSnapshotStore(conn)
	}

	run, err := runStore.GetByID(ctx, *runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading run %s: %v\n", *runID, err)
		os.Exit(1)
	}

	snapshots, err := snapStore.GetByRunID(ctx, *runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading snapshots for %s: %v\n", *runID, err)
		os.Exit(1)
	}
	if len(snapshots) == 0 {
		fmt.Fprintf(os.Stderr, "No snapshots recorded for run %s\n", *runID)
		os.Exit(1)
	}

	summary := metrics.ComputeRunSummary(*runID, snapshots)
	report := &reporting.Report{
		GeneratedAt: time.Now().UTC(),
		Run:         run,
		Summary:     summary,
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output dir: %v\n", err)
		os.Exit(1)
	}

	csvPath := filepath.Join(*outDir, *runID+".csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(snapshots)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		os.Exit(1)
	}

	mdPath := filepath.Join(*outDir, *runID+".md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s\n", csvPath)
	fmt.Printf("  - %s\n", mdPath)
}
