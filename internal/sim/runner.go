// Package sim drives the hourly tick loop: it advances the debt system,
// lets shuffled agents act against the pool, engages the controller on its
// cadence and records one snapshot per tick.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"rai-sim-lab/internal/agent"
	"rai-sim-lab/internal/amm"
	"rai-sim-lab/internal/cdp"
	"rai-sim-lab/internal/domain"
	"rai-sim-lab/internal/logger"
	"rai-sim-lab/internal/storage"
)

// Broadcaster receives every snapshot as it is produced. Implemented by the
// stream hub; nil disables streaming.
type Broadcaster interface {
	Broadcast(snap *domain.TickSnapshot)
}

// Runner executes one simulation run.
type Runner struct {
	runID     string
	seed      int64
	pool      *amm.Pool
	ledger    *cdp.System
	agents    []agent.Agent
	ethPrices []float64

	flxPerDay       float64
	updatePeriod    int
	warmupTicks     int
	rateWindowTicks int

	runStore      storage.RunStore
	snapshotStore storage.TickSnapshotStore
	broadcaster   Broadcaster

	log zerolog.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	RunID     string
	Seed      int64
	Pool      *amm.Pool
	Ledger    *cdp.System
	Agents    []agent.Agent
	ETHPrices []float64 // one entry per tick

	FLXPerDay       float64
	UpdatePeriod    int // ticks between controller updates
	WarmupTicks     int // ticks before the controller engages
	RateWindowTicks int // trailing window for the positive-rate signal

	// Stores may be nil; a nil store is simply skipped.
	RunStore      storage.RunStore
	SnapshotStore storage.TickSnapshotStore

	// Broadcaster may be nil.
	Broadcaster Broadcaster
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Pool == nil || opts.Ledger == nil {
		return nil, fmt.Errorf("new runner: pool and ledger are required")
	}
	if len(opts.ETHPrices) == 0 {
		return nil, fmt.Errorf("new runner: empty price series")
	}
	if opts.UpdatePeriod <= 0 {
		return nil, fmt.Errorf("new runner: update period must be positive, got %d", opts.UpdatePeriod)
	}
	if opts.RateWindowTicks <= 0 {
		return nil, fmt.Errorf("new runner: rate window must be positive, got %d", opts.RateWindowTicks)
	}

	return &Runner{
		runID:           opts.RunID,
		seed:            opts.Seed,
		pool:            opts.Pool,
		ledger:          opts.Ledger,
		agents:          opts.Agents,
		ethPrices:       opts.ETHPrices,
		flxPerDay:       opts.FLXPerDay,
		updatePeriod:    opts.UpdatePeriod,
		warmupTicks:     opts.WarmupTicks,
		rateWindowTicks: opts.RateWindowTicks,
		runStore:        opts.RunStore,
		snapshotStore:   opts.SnapshotStore,
		broadcaster:     opts.Broadcaster,
		log:             logger.GetForComponent("sim"),
	}, nil
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Ticks     int
	Snapshots []*domain.TickSnapshot
}

// Run executes the tick loop over the whole price series. The rng must be
// the run's single source of randomness; the per-tick agent shuffle is the
// only nondeterminism in the loop. Any agent or system error halts the run.
func (r *Runner) Run(ctx context.Context, rng *rand.Rand) (*Result, error) {
	ticks := len(r.ethPrices)

	if err := r.recordStart(ctx, ticks); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("run_id", r.runID).
		Int64("seed", r.seed).
		Int("ticks", ticks).
		Int("agents", len(r.agents)).
		Msg("run starting")

	snapshots := make([]*domain.TickSnapshot, 0, ticks)

	// Tick-start redemption rate, in percent of the redemption price, one
	// entry per tick. Feeds the trailing positive-rate window.
	ratePctHistory := make([]float64, 0, ticks)

	for tick := 0; tick < ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(ctx, fmt.Errorf("run cancelled at tick %d: %w", tick, err))
		}

		ethUSD := r.ethPrices[tick]

		// Tick-start observations. The controller acts on this TWAP even
		// though it engages after the agents have traded.
		twapETH := r.pool.TWAP()
		redemptionPrice := r.ledger.RedemptionPrice()
		ratePctHistory = append(ratePctHistory, 100*r.ledger.RedemptionRateHourly()/redemptionPrice)

		if err := r.ledger.AdvanceRedemptionPrice(); err != nil {
			return nil, r.fail(ctx, fmt.Errorf("tick %d: %w", tick, err))
		}

		market := &agent.Market{
			Pool:               r.pool,
			Ledger:             r.ledger,
			ETHUSDPrice:        ethUSD,
			PriceHistory:       r.ethPrices[:tick+1],
			RatePositiveWindow: ratePositive(ratePctHistory, r.rateWindowTicks),
			FLXPerDay:          r.flxPerDay,
		}

		rng.Shuffle(len(r.agents), func(i, j int) {
			r.agents[i], r.agents[j] = r.agents[j], r.agents[i]
		})
		for _, a := range r.agents {
			if err := a.Act(market); err != nil {
				return nil, r.fail(ctx, fmt.Errorf("tick %d: agent %s: %w", tick, a.Kind(), err))
			}
		}

		spotETH := r.pool.SpotPrice()

		if tick > r.warmupTicks && tick%r.updatePeriod == 0 {
			if err := r.ledger.UpdateRedemptionRate(twapETH, ethUSD); err != nil {
				return nil, r.fail(ctx, fmt.Errorf("tick %d: %w", tick, err))
			}
		}

		r.pool.RecordHourlyPrice(spotETH)

		snap := r.snapshot(tick, ethUSD, spotETH, twapETH)
		snapshots = append(snapshots, snap)

		if r.broadcaster != nil {
			r.broadcaster.Broadcast(snap)
		}
		if r.snapshotStore != nil {
			if err := r.snapshotStore.Insert(ctx, snap); err != nil {
				return nil, r.fail(ctx, fmt.Errorf("tick %d: persist snapshot: %w", tick, err))
			}
		}

		if tick%1000 == 0 {
			r.log.Debug().
				Int("tick", tick).
				Float64("spot_eth", spotETH).
				Float64("redemption_usd", r.ledger.RedemptionPrice()).
				Int("safes", r.ledger.SafeCount()).
				Msg("tick complete")
		}
	}

	if err := r.recordEnd(ctx, domain.RunStatusFinished, nil); err != nil {
		return nil, err
	}

	r.log.Info().Str("run_id", r.runID).Int("ticks", ticks).Msg("run finished")

	return &Result{
		RunID:     r.runID,
		Ticks:     ticks,
		Snapshots: snapshots,
	}, nil
}

// ratePositive reports whether every recorded rate in the trailing window is
// strictly positive.
func ratePositive(ratePctHistory []float64, window int) bool {
	start := len(ratePctHistory) - window
	if start < 0 {
		start = 0
	}
	for _, pct := range ratePctHistory[start:] {
		if pct <= 0 {
			return false
		}
	}
	return len(ratePctHistory) > 0
}

func (r *Runner) snapshot(tick int, ethUSD, spotETH, twapETH float64) *domain.TickSnapshot {
	raiReserve, ethReserve := r.pool.Reserves()
	return &domain.TickSnapshot{
		RunID:              r.runID,
		Tick:               tick,
		ETHUSDPrice:        ethUSD,
		SpotPriceETH:       spotETH,
		SpotPriceUSD:       spotETH * ethUSD,
		TWAPPriceETH:       twapETH,
		RedemptionPriceUSD: r.ledger.RedemptionPrice(),
		RedemptionRateHrly: r.ledger.RedemptionRateHourly(),
		PoolRAIReserve:     raiReserve,
		PoolETHReserve:     ethReserve,
		TotalCollateral:    r.ledger.TotalCollateral(),
		TotalDebt:          r.ledger.TotalDebt(),
		SafeCount:          r.ledger.SafeCount(),
	}
}

func (r *Runner) recordStart(ctx context.Context, ticks int) error {
	if r.runStore == nil {
		return nil
	}
	rec := &domain.RunRecord{
		RunID:       r.runID,
		Seed:        r.seed,
		Days:        ticks / 24,
		AgentCount:  len(r.agents),
		Controller:  string(r.ledger.ControllerKind()),
		Status:      domain.RunStatusRunning,
		StartedAtMs: time.Now().UnixMilli(),
	}
	if err := r.runStore.Insert(ctx, rec); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

func (r *Runner) recordEnd(ctx context.Context, status string, failureMsg *string) error {
	if r.runStore == nil {
		return nil
	}
	if err := r.runStore.SetStatus(ctx, r.runID, status, failureMsg, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("record run end: %w", err)
	}
	return nil
}

// fail marks the run failed and returns the original error.
func (r *Runner) fail(ctx context.Context, cause error) error {
	r.log.Error().Err(cause).Str("run_id", r.runID).Msg("run failed")
	msg := cause.Error()
	if err := r.recordEnd(ctx, domain.RunStatusFailed, &msg); err != nil {
		r.log.Error().Err(err).Msg("could not record run failure")
	}
	return cause
}
