package agent

import "fmt"

const (
	// hoursPerWeek is the step between the samples a longer compares when it
	// judges a trend.
	hoursPerWeek = 168

	// leverageCollateralizationPct is the ratio a longer opens its safe at:
	// just above the minimum, maximizing the debt minted per unit of
	// collateral.
	leverageCollateralizationPct = 145.01

	// liquidationWarningPct is the collateralization below which a longer
	// considers its position critical and exits.
	liquidationWarningPct = 150.0
)

// Longer goes leveraged-long ETH through the debt system: after a sustained
// weekly uptrend in the exogenous ETH price it mints RAI against its whole
// stack near the minimum collateralization, sells the RAI for ETH and
// re-deposits the proceeds as additional collateral. It exits on a stop-loss
// breach, a near-liquidation collateralization or a sustained downtrend,
// whichever fires first.
type Longer struct {
	wallet Wallet

	stopLossPct    float64
	uptrendWeeks   int // weekly rises in a row required to enter
	downtrendWeeks int // weekly falls in a row required to exit

	safeID  int
	hasSafe bool

	netWorthBeforeLonging float64
}

// NewLonger builds a longer with the given sampled parameters.
func NewLonger(walletETH, stopLossPct float64, uptrendWeeks, downtrendWeeks int) *Longer {
	return &Longer{
		wallet:                Wallet{ETH: walletETH},
		stopLossPct:           stopLossPct,
		uptrendWeeks:          uptrendWeeks,
		downtrendWeeks:        downtrendWeeks,
		netWorthBeforeLonging: walletETH,
	}
}

// Kind implements Agent.
func (l *Longer) Kind() Kind { return KindLonger }

// Wallet returns the longer's current holdings.
func (l *Longer) Wallet() Wallet { return l.wallet }

// HasOpenPosition reports whether the longer currently holds a safe.
func (l *Longer) HasOpenPosition() bool { return l.hasSafe }

// Act enters once enough price history exists and the uptrend predicate
// fires; with a position open it watches the three exit conditions.
func (l *Longer) Act(m *Market) error {
	if !l.hasSafe {
		lookback := l.uptrendWeeks
		if l.downtrendWeeks > lookback {
			lookback = l.downtrendWeeks
		}
		if len(m.PriceHistory) <= hoursPerWeek*(lookback+1) {
			return nil
		}
		if weeklyRun(m.PriceHistory, l.uptrendWeeks, true) && l.wallet.ETH > 0 {
			if err := l.enterLeveraged(m); err != nil {
				return fmt.Errorf("longer: %w", err)
			}
		}
		return nil
	}

	exit, err := l.shouldExit(m)
	if err != nil {
		return fmt.Errorf("longer: %w", err)
	}
	if exit {
		if err := l.buyAndRepay(m); err != nil {
			return fmt.Errorf("longer: %w", err)
		}
	}
	return nil
}

// weeklyRun reports whether the series moved in one direction across n
// consecutive week-spaced samples ending at the newest one: rising when up
// is true, falling otherwise.
func weeklyRun(prices []float64, n int, up bool) bool {
	if n <= 0 || len(prices) <= hoursPerWeek*(n+1) {
		return false
	}
	last := len(prices)
	for i := n; i >= 1; i-- {
		older := prices[last-hoursPerWeek*(i+1)]
		newer := prices[last-hoursPerWeek*i]
		if up && !(older < newer) {
			return false
		}
		if !up && !(older > newer) {
			return false
		}
	}
	return true
}

// enterLeveraged opens the safe with the full stack at just-above-minimum
// collateralization, sells the minted RAI and deposits the ETH proceeds back
// as collateral.
func (l *Longer) enterLeveraged(m *Market) error {
	collateral := l.wallet.ETH
	l.netWorthBeforeLonging = l.wallet.ETH

	id, minted, err := m.Ledger.OpenSafe(collateral, leverageCollateralizationPct, m.ETHUSDPrice)
	if err != nil {
		return err
	}
	l.safeID = id
	l.hasSafe = true
	l.wallet.ETH -= collateral
	l.wallet.RAI += minted

	ethObtained, err := m.Pool.SellRAI(l.wallet.RAI)
	if err != nil {
		return err
	}
	l.wallet.ETH += ethObtained
	l.wallet.RAI = 0

	// Leverage: everything the sale returned goes back in as collateral.
	if err := m.Ledger.ModifySafe(l.safeID, l.wallet.ETH, 0, m.ETHUSDPrice); err != nil {
		return err
	}
	l.wallet.ETH = 0
	return nil
}

// shouldExit checks stop loss, near-liquidation and downtrend in that order.
func (l *Longer) shouldExit(m *Market) (bool, error) {
	over, err := l.lossAboveStopLoss(m)
	if err != nil {
		return false, err
	}
	if over {
		return true, nil
	}
	critical, err := l.closeToLiquidation(m)
	if err != nil {
		return false, err
	}
	if critical {
		return true, nil
	}
	return weeklyRun(m.PriceHistory, l.downtrendWeeks, false), nil
}

// lossAboveStopLoss marks the position to market the same way the shorter
// does: wallet plus collateral minus the current cost of covering the debt.
func (l *Longer) lossAboveStopLoss(m *Market) (bool, error) {
	safe, err := m.Ledger.GetSafe(l.safeID)
	if err != nil {
		return false, err
	}
	ethNeeded, err := m.Pool.ETHInGivenRAIOut(safe.Debt)
	if err != nil {
		return false, err
	}
	netWorth := l.wallet.ETH + safe.Collateral - ethNeeded
	unrealizedLossPct := 100 * (1 - netWorth/l.netWorthBeforeLonging)
	return unrealizedLossPct > l.stopLossPct, nil
}

// closeToLiquidation values the debt at the redemption price and flags the
// position once collateralization drops under the warning level.
func (l *Longer) closeToLiquidation(m *Market) (bool, error) {
	safe, err := m.Ledger.GetSafe(l.safeID)
	if err != nil {
		return false, err
	}
	debtInETH := safe.Debt * m.Ledger.RedemptionPrice() / m.ETHUSDPrice
	collateralizationPct := 100 * safe.Collateral / debtInETH
	return collateralizationPct < liquidationWarningPct, nil
}

// buyAndRepay covers the debt on the market and closes the safe, topping the
// wallet up first when the cover costs more than it holds (same on-ramp
// convention as the shorter).
func (l *Longer) buyAndRepay(m *Market) error {
	safe, err := m.Ledger.GetSafe(l.safeID)
	if err != nil {
		return err
	}
	ethNeeded, err := m.Pool.ETHInGivenRAIOut(safe.Debt)
	if err != nil {
		return err
	}
	if ethNeeded > l.wallet.ETH {
		l.wallet.ETH = ethNeeded
	}

	raiBought, err := m.Pool.BuyRAI(ethNeeded)
	if err != nil {
		return err
	}
	l.wallet.ETH -= ethNeeded
	l.wallet.RAI += raiBought

	collateral, err := m.Ledger.CloseSafe(l.safeID)
	if err != nil {
		return err
	}
	l.wallet.ETH += collateral
	l.wallet.RAI = 0
	l.hasSafe = false
	return nil
}
