package agent

import "fmt"

// Shorter mints RAI against its whole ETH stack and dumps it on the market
// when the market price runs far enough above the redemption price, betting
// on reversion. It covers and closes when its stop loss trips, or once the
// market price has fallen back under the redemption price recorded at mint
// time while the redemption rate has stayed positive for the trailing window.
// One safe at a time.
type Shorter struct {
	wallet Wallet

	differenceThresholdPct      float64
	stopLossPct                 float64
	desiredCollateralizationPct float64

	safeID  int
	hasSafe bool

	netWorthBeforeShorting float64
	priceTargetUSD         float64 // redemption price at mint time
}

// NewShorter builds a shorter with the given sampled parameters.
func NewShorter(walletETH, differenceThresholdPct, stopLossPct, desiredCollateralizationPct float64) *Shorter {
	return &Shorter{
		wallet:                      Wallet{ETH: walletETH},
		differenceThresholdPct:      differenceThresholdPct,
		stopLossPct:                 stopLossPct,
		desiredCollateralizationPct: desiredCollateralizationPct,
		netWorthBeforeShorting:      walletETH,
	}
}

// Kind implements Agent.
func (s *Shorter) Kind() Kind { return KindShorter }

// Wallet returns the shorter's current holdings.
func (s *Shorter) Wallet() Wallet { return s.wallet }

// HasOpenPosition reports whether the shorter currently holds a safe.
func (s *Shorter) HasOpenPosition() bool { return s.hasSafe }

// Act opens a short when the premium predicate fires and no position exists,
// otherwise watches the open position for either exit condition.
func (s *Shorter) Act(m *Market) error {
	if !s.hasSafe {
		if s.differenceAboveThreshold(m) && s.wallet.ETH > 0 {
			if err := s.mintAndSell(m); err != nil {
				return fmt.Errorf("shorter: %w", err)
			}
		}
		return nil
	}

	over, err := s.lossAboveStopLoss(m)
	if err != nil {
		return fmt.Errorf("shorter: %w", err)
	}
	if over || (s.spotBelowTarget(m) && m.RatePositiveWindow) {
		if err := s.buyAndRepay(m); err != nil {
			return fmt.Errorf("shorter: %w", err)
		}
	}
	return nil
}

// differenceAboveThreshold checks the market premium over the redemption
// price, both in ETH terms. Negative when the redemption price sits above
// the market.
func (s *Shorter) differenceAboveThreshold(m *Market) bool {
	redemptionInETH := m.Ledger.RedemptionPrice() / m.ETHUSDPrice
	spotInETH := m.Pool.SpotPrice()
	differencePct := 100 * (1 - redemptionInETH/spotInETH)
	return differencePct > s.differenceThresholdPct
}

// mintAndSell opens the safe with the entire ETH stack, records the price
// target and net-worth baseline, and sells every minted RAI into the pool.
func (s *Shorter) mintAndSell(m *Market) error {
	collateral := s.wallet.ETH
	s.netWorthBeforeShorting = s.wallet.ETH

	id, minted, err := m.Ledger.OpenSafe(collateral, s.desiredCollateralizationPct, m.ETHUSDPrice)
	if err != nil {
		return err
	}
	s.safeID = id
	s.hasSafe = true
	s.wallet.ETH -= collateral
	s.wallet.RAI += minted
	s.priceTargetUSD = m.Ledger.RedemptionPrice()

	ethObtained, err := m.Pool.SellRAI(s.wallet.RAI)
	if err != nil {
		return err
	}
	s.wallet.ETH += ethObtained
	s.wallet.RAI = 0
	return nil
}

// lossAboveStopLoss marks the position to market: net worth is wallet ETH
// plus safe collateral minus the ETH it would currently cost to buy the debt
// back.
func (s *Shorter) lossAboveStopLoss(m *Market) (bool, error) {
	safe, err := m.Ledger.GetSafe(s.safeID)
	if err != nil {
		return false, err
	}
	ethNeeded, err := m.Pool.ETHInGivenRAIOut(safe.Debt)
	if err != nil {
		return false, err
	}
	netWorth := s.wallet.ETH + safe.Collateral - ethNeeded
	unrealizedLossPct := 100 * (1 - netWorth/s.netWorthBeforeShorting)
	return unrealizedLossPct > s.stopLossPct, nil
}

// spotBelowTarget checks the market price against the redemption price
// recorded when the short was opened, both in ETH terms.
func (s *Shorter) spotBelowTarget(m *Market) bool {
	targetInETH := s.priceTargetUSD / m.ETHUSDPrice
	return m.Pool.SpotPrice() < targetInETH
}

// buyAndRepay buys exactly the RAI needed to retire the debt and closes the
// safe. When the wallet holds less ETH than the cover costs, the difference
// is credited first, the model's stand-in for a fresh fiat on-ramp; it adds
// nothing to net worth since it is consumed by the repayment.
func (s *Shorter) buyAndRepay(m *Market) error {
	safe, err := m.Ledger.GetSafe(s.safeID)
	if err != nil {
		return err
	}
	ethNeeded, err := m.Pool.ETHInGivenRAIOut(safe.Debt)
	if err != nil {
		return err
	}
	if ethNeeded > s.wallet.ETH {
		s.wallet.ETH = ethNeeded
	}

	raiBought, err := m.Pool.BuyRAI(ethNeeded)
	if err != nil {
		return err
	}
	s.wallet.ETH -= ethNeeded
	s.wallet.RAI += raiBought

	collateral, err := m.Ledger.CloseSafe(s.safeID)
	if err != nil {
		return err
	}
	s.wallet.ETH += collateral
	s.wallet.RAI = 0 // entire buy went to the repayment
	s.hasSafe = false
	return nil
}
