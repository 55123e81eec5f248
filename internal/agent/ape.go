package agent

import (
	"fmt"
	"math"
)

// totalFLXSupply is the fixed supply the reward token valuation is spread
// over when an ape converts its expected valuation into a per-token price.
const totalFLXSupply = 1_000_000

// hoursPerYear extrapolates the hourly redemption drift to an annual figure.
const hoursPerYear = 8760

// LiquidityApe buys RAI on the market and provides two-sided liquidity when
// the yield it expects (protocol reward share plus system redemption drift)
// clears its personal threshold, and unwinds the whole position when it no
// longer does. It never mints debt.
type LiquidityApe struct {
	wallet Wallet

	apyThresholdPct      float64 // required APY, percent
	expectedFLXValuation float64 // expected total reward-token valuation, USD

	// Cached by the predicate phase for later reads.
	currentAPYPct    float64
	currentPoolShare float64
}

// NewLiquidityApe builds an ape with the given sampled parameters.
func NewLiquidityApe(walletETH, apyThresholdPct, expectedFLXValuation float64) *LiquidityApe {
	return &LiquidityApe{
		wallet:               Wallet{ETH: walletETH},
		apyThresholdPct:      apyThresholdPct,
		expectedFLXValuation: expectedFLXValuation,
	}
}

// Kind implements Agent.
func (a *LiquidityApe) Kind() Kind { return KindLiquidityApe }

// Wallet returns the ape's current holdings.
func (a *LiquidityApe) Wallet() Wallet { return a.wallet }

// CurrentAPY returns the APY (percent) the ape computed during its most
// recent predicate evaluation.
func (a *LiquidityApe) CurrentAPY() float64 { return a.currentAPYPct }

// Act evaluates the APY predicate and, depending on whether the ape already
// provides liquidity, either enters with its full net worth, exits entirely
// or holds steady.
func (a *LiquidityApe) Act(m *Market) error {
	good, err := a.apyGood(m)
	if err != nil {
		return fmt.Errorf("liquidity ape: %w", err)
	}
	switch {
	case good && a.wallet.LP == 0:
		return a.buyAndProvide(m)
	case !good && a.wallet.LP != 0:
		return a.removeAndSell(m)
	}
	return nil
}

// ethToBuyWith is the closed-form ETH amount to spend buying RAI so the rest
// of the wallet pairs exactly with the bought RAI as liquidity:
// E*(sqrt(1 + walletETH/E) - 1). Only accurate while the pool's ETH reserve
// is small relative to typical wallet sizes (documented domain restriction
// of the model).
func ethToBuyWith(ethReserve, walletETH float64) float64 {
	return ethReserve * (math.Sqrt(1+walletETH/ethReserve) - 1)
}

// apyGood computes the APY the ape would realize (or currently realizes) on
// its pool share and caches it. The pool share is hypothetical when the ape
// has no LP tokens yet, real otherwise.
func (a *LiquidityApe) apyGood(m *Market) (bool, error) {
	var poolShare float64
	if a.wallet.LP == 0 {
		if a.wallet.ETH <= 0 {
			// Nothing to enter with; not a modeling bug, just no trade.
			return false, nil
		}
		_, ethReserve := m.Pool.Reserves()
		spend := ethToBuyWith(ethReserve, a.wallet.ETH)
		preview, err := m.Pool.PreviewProvideAfterBuy(spend)
		if err != nil {
			return false, err
		}
		poolShare = preview.LPMinted / (m.Pool.LPSupply() + preview.LPMinted)
	} else {
		poolShare = a.wallet.LP / m.Pool.LPSupply()
	}

	// Value of the expected daily reward drop that lands on this share.
	rewardPerDayUSD := a.expectedFLXValuation * (m.FLXPerDay / totalFLXSupply)
	rewardPerYearUSD := poolShare * rewardPerDayUSD * 365
	shareValueUSD := m.Pool.TotalValueLockedETH() * m.ETHUSDPrice * poolShare

	// The system's own APY is the annualized redemption drift relative to
	// the market price; it can be negative.
	redemptionPrice := m.Ledger.RedemptionPrice()
	marketPriceUSD := m.Pool.SpotPrice() * m.ETHUSDPrice
	rateProportion := m.Ledger.RedemptionRateHourly() / redemptionPrice
	extrapolated := redemptionPrice * math.Pow(1+rateProportion, hoursPerYear)
	systemAPY := 100 * math.Abs(1-extrapolated/marketPriceUSD)
	if rateProportion <= 0 {
		systemAPY = -systemAPY
	}

	apy := (rewardPerYearUSD/shareValueUSD-1)*100 + systemAPY
	a.currentAPYPct = apy
	a.currentPoolShare = poolShare

	return apy >= a.apyThresholdPct, nil
}

// buyAndProvide spends exactly enough ETH buying RAI that the remaining ETH
// pairs with it, then supplies the ape's entire net worth as liquidity.
func (a *LiquidityApe) buyAndProvide(m *Market) error {
	_, ethReserve := m.Pool.Reserves()
	spend := ethToBuyWith(ethReserve, a.wallet.ETH)

	raiObtained, err := m.Pool.BuyRAI(spend)
	if err != nil {
		return fmt.Errorf("buy and provide: %w", err)
	}
	a.wallet.ETH -= spend

	minted, err := m.Pool.AddLiquidity(raiObtained, a.wallet.ETH)
	if err != nil {
		return fmt.Errorf("buy and provide: %w", err)
	}
	a.wallet.LP += minted
	a.wallet.ETH = 0
	return nil
}

// removeAndSell withdraws the ape's whole position and sells the RAI leg
// back into the pool immediately.
func (a *LiquidityApe) removeAndSell(m *Market) error {
	amountRAI, amountETH, err := m.Pool.RemoveLiquidity(a.wallet.LP)
	if err != nil {
		return fmt.Errorf("remove and sell: %w", err)
	}
	ethFromSale, err := m.Pool.SellRAI(amountRAI)
	if err != nil {
		return fmt.Errorf("remove and sell: %w", err)
	}
	a.wallet.ETH += amountETH + ethFromSale
	a.wallet.LP = 0
	return nil
}
