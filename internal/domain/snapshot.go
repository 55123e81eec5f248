// Package domain holds the plain record types the packages share: per-tick
// market snapshots and run-level metadata. Storage backends persist these
// types as-is.
package domain

// TickSnapshot captures the full observable market state at the end of one
// hourly tick. Corresponds to the tick_snapshots table in PostgreSQL and
// ClickHouse.
type TickSnapshot struct {
	RunID              string  // FK to simulation_runs
	Tick               int     // hour index, 0-based
	ETHUSDPrice        float64 // exogenous reference price
	SpotPriceETH       float64 // pool RAI price in ETH
	SpotPriceUSD       float64 // pool RAI price in USD
	TWAPPriceETH       float64 // windowed average pool price in ETH
	RedemptionPriceUSD float64 // system redemption price
	RedemptionRateHrly float64 // signed per-tick redemption drift
	PoolRAIReserve     float64
	PoolETHReserve     float64
	TotalCollateral    float64 // ETH locked across live safes
	TotalDebt          float64 // RAI issued across live safes
	SafeCount          int
}
