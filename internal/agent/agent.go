// Package agent holds the autonomous participants of the model: the liquidity
// ape, the RAI shorter and the leveraged ETH longer. Each owns a private
// wallet and immutable strategy parameters drawn at construction, reads pool
// and ledger state through the Market view it is handed each tick, and
// conditionally mutates them. Agents are processed strictly one at a time;
// whatever one agent does is visible to the next.
package agent

import (
	"rai-sim-lab/internal/amm"
	"rai-sim-lab/internal/cdp"
)

// Kind identifies an agent strategy.
type Kind string

// Agent kinds.
const (
	KindLiquidityApe Kind = "LIQUIDITY_APE"
	KindShorter      Kind = "SHORTER"
	KindLonger       Kind = "LONGER"
)

// Market is the slice of world state an agent may read and mutate during its
// turn. The driver rebuilds it every tick.
type Market struct {
	Pool   *amm.Pool
	Ledger *cdp.System

	// ETHUSDPrice is the exogenous reference-asset price for the current tick.
	ETHUSDPrice float64

	// PriceHistory is the hourly ETH/USD series up to and including the
	// current tick. Read-only.
	PriceHistory []float64

	// RatePositiveWindow reports whether the hourly redemption rate has been
	// positive for the entire trailing observation window.
	RatePositiveWindow bool

	// FLXPerDay is the protocol reward dripped to liquidity providers per
	// simulated day.
	FLXPerDay float64
}

// Agent is one simulated participant. Act runs the agent's decision
// predicates against the market and performs at most one conditional action.
// Any returned error is a modeling bug and halts the run.
type Agent interface {
	Kind() Kind
	Act(m *Market) error
}

// Wallet is an agent's private token holdings. Balances are denominated in
// RAI, ETH and pool liquidity shares; they only change through the owning
// agent's actions.
type Wallet struct {
	RAI float64
	ETH float64
	LP  float64
}
