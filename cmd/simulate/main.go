package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rai-sim-lab/internal/agent"
	"rai-sim-lab/internal/amm"
	"rai-sim-lab/internal/cdp"
	"rai-sim-lab/internal/config"
	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/logger"
	"rai-sim-lab/internal/metrics"
	"rai-sim-lab/internal/prices"
	"rai-sim-lab/internal/reporting"
	"rai-sim-lab/internal/sim"
	"rai-sim-lab/internal/storage"
	chstore "rai-sim-lab/internal/storage/clickhouse"
	"rai-sim-lab/internal/storage/memory"
	"rai-sim-lab/internal/storage/migrations"
	pgstore "rai-sim-lab/internal/storage/postgres"
	"rai-sim-lab/internal/stream"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	runID := flag.String("run-id", "", "Run ID (default: generated from timestamp)")
	seed := flag.Int64("seed", 0, "Override config seed (0 keeps the config value)")
	days := flag.Int("days", 0, "Override simulated days (0 keeps the config value)")

	// Storage
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Force in-memory storage")

	// Streaming
	listenAddr := flag.String("listen", "", "WebSocket listen address for live snapshots (overrides config)")

	// Output
	outDir := flag.String("out", "", "Directory for the CSV and markdown report (empty disables file output)")
	outputJSON := flag.Bool("json", false, "Print the run summary as JSON")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Apply flag overrides before validation.
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if *days != 0 {
		cfg.Run.Days = *days
		cfg.ETHPrice.Length = *days * 24
	}
	if *postgresDSN != "" {
		cfg.Storage.Backend = config.BackendPostgres
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.Backend = config.BackendClickhouse
		cfg.Storage.ClickhouseDSN = *clickhouseDSN
	}
	if *useMemory {
		cfg.Storage.Backend = config.BackendMemory
	}
	if *listenAddr != "" {
		cfg.Stream.Enabled = true
		cfg.Stream.ListenAddr = *listenAddr
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Run.LogLevel)
	log := logger.GetForComponent("simulate")

	if *runID == "" {
		*runID = fmt.Sprintf("run-%d", time.Now().Unix())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	// Create stores
	var (
		runStore  storage.RunStore          = memory.NewRunStore()
		snapStore storage.TickSnapshotStore = memory.NewTickSnapshotStore()
	)

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to postgres")
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("apply postgres migrations")
		}
		runStore = pgstore.NewRunStore(pool)
		snapStore = pgstore.NewTickSnapshotStore(pool)
	case config.BackendClickhouse:
		// Run records stay in process memory: ClickHouse holds the snapshot
		// time series only, mirroring the transactional/timeseries split.
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("apply clickhouse migrations")
		}
		defer conn.Close()
		snapStore = chstore.NewTickSnapshotStore(conn)
	}

	// Seed a single rng for the whole run: price walk, population draw and
	// the per-tick shuffle all consume from it in that order.
	rng := rand.New(rand.NewSource(cfg.Run.Seed))

	ethPrices, err := prices.BoundedRandomWalk(rng, cfg.ETHPrice)
	if err != nil {
		log.Fatal().Err(err).Msg("generate price series")
	}

	agents, err := agent.BuildPopulation(rng, cfg.Agents)
	if err != nil {
		log.Fatal().Err(err).Msg("build agent population")
	}

	pool, err := amm.NewPool(cfg.Pool.InitialRAI, cfg.Pool.InitialETH)
	if err != nil {
		log.Fatal().Err(err).Msg("create pool")
	}

	// The pool opens at the redemption price: the initial reserves define
	// both the spot price and the peg target.
	initialRedemption := ethPrices[0] * cfg.Pool.InitialETH / cfg.Pool.InitialRAI
	ledger, err := cdp.NewSystem(cdp.Controller{
		Kind:  cdp.ControllerKind(cfg.Controller.Kind),
		Gains: cfg.Controller.Gains,
	}, initialRedemption, ethPrices[0])
	if err != nil {
		log.Fatal().Err(err).Msg("create debt system")
	}

	var broadcaster sim.Broadcaster
	if cfg.Stream.Enabled {
		hub := stream.NewHub()
		defer hub.Close()
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.Stream.ListenAddr); err != nil {
				log.Error().Err(err).Msg("stream server stopped")
			}
		}()
		broadcaster = hub
	}

	runner, err := sim.NewRunner(sim.RunnerOptions{
		RunID:           *runID,
		Seed:            cfg.Run.Seed,
		Pool:            pool,
		Ledger:          ledger,
		Agents:          agents,
		ETHPrices:       ethPrices,
		FLXPerDay:       cfg.Run.FLXPerDay,
		UpdatePeriod:    cfg.Run.UpdatePeriod,
		WarmupTicks:     cfg.Run.WarmupTicks,
		RateWindowTicks: cfg.Run.RateWindowTicks,
		RunStore:        runStore,
		SnapshotStore:   snapStore,
		Broadcaster:     broadcaster,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create runner")
	}

	log.Info().
		Str("run_id", *runID).
		Int("days", cfg.Run.Days).
		Int("agents", len(agents)).
		Str("backend", cfg.Storage.Backend).
		Msg("starting simulation")

	result, err := runner.Run(ctx, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("simulation failed")
	}

	summary := metrics.ComputeRunSummary(*runID, result.Snapshots)

	if *outDir != "" {
		run, err := runStore.GetByID(ctx, *runID)
		if err != nil {
			log.Fatal().Err(err).Msg("load run record")
		}
		if err := writeOutputs(*outDir, run, result, summary); err != nil {
			log.Fatal().Err(err).Msg("write outputs")
		}
		log.Info().Str("dir", *outDir).Msg("report written")
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(output))
	} else {
		printSummary(summary)
	}
}

// writeOutputs renders the snapshot CSV and the markdown report into dir.
func writeOutputs(dir string, run *domain.RunRecord, result *sim.Result, summary *metrics.RunSummary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	csvPath := filepath.Join(dir, result.RunID+".csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(result.Snapshots)), 0o644); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	report := &reporting.Report{
		GeneratedAt: time.Now().UTC(),
		Run:         run,
		Summary:     summary,
	}
	mdPath := filepath.Join(dir, result.RunID+".md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// printSummary outputs a human-readable run summary.
func printSummary(s *metrics.RunSummary) {
	fmt.Println()
	fmt.Println("=== Simulation Summary ===")
	fmt.Printf("Run ID:             %s\n", s.RunID)
	fmt.Printf("Ticks:              %d\n", s.Ticks)
	fmt.Println()

	fmt.Println("Peg deviation (spot vs redemption, %):")
	fmt.Printf("  Mean:             %+.4f\n", s.DeviationMean)
	fmt.Printf("  Median:           %+.4f\n", s.DeviationMedian)
	fmt.Printf("  P10 / P90:        %+.4f / %+.4f\n", s.DeviationP10, s.DeviationP90)
	fmt.Printf("  Min / Max:        %+.4f / %+.4f\n", s.DeviationMin, s.DeviationMax)
	fmt.Printf("  Stddev:           %.4f\n", s.DeviationStddev)
	fmt.Printf("  Time in band:     %.1f%%\n", s.TimeInBand*100)
	fmt.Println()

	fmt.Printf("Redemption price:   %.6f -> %.6f USD\n", s.RedemptionStart, s.RedemptionEnd)
}
