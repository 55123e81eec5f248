// Package cdp is the collateralized-debt side of the model: the ledger of
// safes, the aggregate collateral/debt totals and the feedback-controlled
// redemption price. The System is an explicit aggregate handed to every agent
// action; there is no ambient state.
package cdp

import (
	"errors"
	"fmt"
)

// MinCollateralizationPct is the minimum collateralization ratio, in percent,
// enforced when a safe is opened or modified.
const MinCollateralizationPct = 145.0

// Ledger errors. Every one of these is fatal to a run: the model treats them
// as economically impossible under its assumptions, not as recoverable
// conditions.
var (
	ErrBelowMinCollateralization = errors.New("collateralization at or below minimum")
	ErrSafeNotFound              = errors.New("safe not found")
	ErrNonPositiveCollateral     = errors.New("collateral must be positive")
	ErrNegativeRedemptionPrice   = errors.New("redemption price dropped below zero")
)

// Safe is a single collateralized position: ETH collateral backing RAI debt.
type Safe struct {
	ID         int
	Collateral float64 // ETH
	Debt       float64 // RAI
}

// System is the global debt ledger. Safes are keyed by id; the running totals
// equal the sums over live safes after every mutation.
type System struct {
	controller Controller

	redemptionPrice     float64 // USD per RAI
	redemptionRateHrly  float64 // USD per RAI per tick, signed
	totalCollateral     float64
	totalDebt           float64
	safes               map[int]*Safe
	nextSafeID          int
	initialMaxRAIPerETH float64
}

// NewSystem builds the ledger with a validated controller, an initial
// redemption price and the current ETH/USD price, which fixes the initial
// issuance ceiling per unit of collateral.
func NewSystem(controller Controller, initialRedemptionPrice, ethUSDPrice float64) (*System, error) {
	if err := controller.Validate(); err != nil {
		return nil, fmt.Errorf("new system: %w", err)
	}
	if initialRedemptionPrice <= 0 {
		return nil, fmt.Errorf("new system: initial redemption price must be positive, got %f", initialRedemptionPrice)
	}
	return &System{
		controller:          controller,
		redemptionPrice:     initialRedemptionPrice,
		safes:               make(map[int]*Safe),
		initialMaxRAIPerETH: (ethUSDPrice / (MinCollateralizationPct / 100)) / initialRedemptionPrice,
	}, nil
}

// ControllerKind returns the kind of the controller steering the system.
func (s *System) ControllerKind() ControllerKind { return s.controller.Kind }

// RedemptionPrice returns the current redemption price in USD per RAI.
func (s *System) RedemptionPrice() float64 { return s.redemptionPrice }

// RedemptionRateHourly returns the signed per-tick redemption price drift.
func (s *System) RedemptionRateHourly() float64 { return s.redemptionRateHrly }

// TotalCollateral returns the ETH held across all live safes.
func (s *System) TotalCollateral() float64 { return s.totalCollateral }

// TotalDebt returns the RAI debt issued across all live safes.
func (s *System) TotalDebt() float64 { return s.totalDebt }

// SafeCount returns the number of live safes.
func (s *System) SafeCount() int { return len(s.safes) }

// OpenSafe registers a new safe with the given collateral at the desired
// collateralization (percent, strictly above the minimum) and returns its id
// and the RAI minted against it.
func (s *System) OpenSafe(collateral, collateralizationPct, ethUSDPrice float64) (int, float64, error) {
	if collateral <= 0 {
		return 0, 0, fmt.Errorf("open safe: %w: %f", ErrNonPositiveCollateral, collateral)
	}
	if collateralizationPct <= MinCollateralizationPct {
		return 0, 0, fmt.Errorf("open safe: %w: %f%%", ErrBelowMinCollateralization, collateralizationPct)
	}

	raiToMint := (collateral * ethUSDPrice / (collateralizationPct / 100)) / s.redemptionPrice

	id := s.nextSafeID
	s.nextSafeID++
	s.safes[id] = &Safe{ID: id, Collateral: collateral, Debt: raiToMint}
	s.totalCollateral += collateral
	s.totalDebt += raiToMint

	return id, raiToMint, nil
}

// ModifySafe applies net collateral and debt deltas (either may be negative)
// and re-validates the collateralization. The totals track the deltas so the
// ledger invariant holds after every mutation.
func (s *System) ModifySafe(id int, netCollateral, netDebt, ethUSDPrice float64) error {
	safe, ok := s.safes[id]
	if !ok {
		return fmt.Errorf("modify safe %d: %w", id, ErrSafeNotFound)
	}

	newCollateral := safe.Collateral + netCollateral
	newDebt := safe.Debt + netDebt

	collateralizationPct := 100 * newCollateral * ethUSDPrice / (newDebt * s.redemptionPrice)
	if collateralizationPct <= MinCollateralizationPct {
		return fmt.Errorf("modify safe %d: %w: %f%%", id, ErrBelowMinCollateralization, collateralizationPct)
	}

	safe.Collateral = newCollateral
	safe.Debt = newDebt
	s.totalCollateral += netCollateral
	s.totalDebt += netDebt
	return nil
}

// CloseSafe deletes the safe and returns its remaining collateral
// unconditionally. The caller is trusted to have already retired the debt;
// the ledger does not verify repayment; the closing agents buy to cover
// immediately before calling this.
func (s *System) CloseSafe(id int) (float64, error) {
	safe, ok := s.safes[id]
	if !ok {
		return 0, fmt.Errorf("close safe %d: %w", id, ErrSafeNotFound)
	}

	s.totalCollateral -= safe.Collateral
	s.totalDebt -= safe.Debt
	delete(s.safes, id)

	return safe.Collateral, nil
}

// GetSafe returns a copy of the safe's current state.
func (s *System) GetSafe(id int) (Safe, error) {
	safe, ok := s.safes[id]
	if !ok {
		return Safe{}, fmt.Errorf("get safe %d: %w", id, ErrSafeNotFound)
	}
	return *safe, nil
}

// AdvanceRedemptionPrice applies one tick of the current redemption rate. A
// negative resulting price has no economic meaning and ends the run.
func (s *System) AdvanceRedemptionPrice() error {
	s.redemptionPrice += s.redemptionRateHrly
	if s.redemptionPrice < 0 {
		return fmt.Errorf("advance redemption price: %w: %f", ErrNegativeRedemptionPrice, s.redemptionPrice)
	}
	return nil
}

// UpdateRedemptionRate lets the controller act on the gap between the
// redemption price and the pool TWAP expressed in USD.
func (s *System) UpdateRedemptionRate(twapETH, ethUSDPrice float64) error {
	rate, err := s.controller.hourlyRate(s.redemptionPrice, twapETH*ethUSDPrice)
	if err != nil {
		return fmt.Errorf("update redemption rate: %w", err)
	}
	s.redemptionRateHrly = rate
	return nil
}
