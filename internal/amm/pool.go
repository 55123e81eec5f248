// Package amm models the RAI/ETH constant-product pool the simulated agents
// trade against. There is a single pool per run; all trades and liquidity
// operations preserve the product of the two reserves. No fees anywhere.
package amm

import (
	"errors"
	"fmt"
	"math"
)

// PriceWindowSize is the number of end-of-hour spot prices retained for the
// time-weighted average price.
const PriceWindowSize = 16

// Pool errors.
var (
	ErrNonPositiveAmount     = errors.New("amount must be positive")
	ErrNonPositiveReserves   = errors.New("initial reserves must be positive")
	ErrInsufficientLiquidity = errors.New("amount exceeds pool reserves")
)

// Pool holds the mutable state of the RAI/ETH pool: the two reserves, the
// liquidity-share supply and the rolling hourly price window. RAI amounts are
// debt-token units, ETH amounts are reference-asset units; prices are ETH per
// RAI unless stated otherwise.
type Pool struct {
	raiReserve float64
	ethReserve float64
	lpSupply   float64

	initialSpotPrice float64
	hourlyPrices     []float64
}

// NewPool seeds the pool with the given liquidity pair. The liquidity-share
// supply starts at sqrt(rai*eth), consistent with Uniswap v2 share
// initialization.
func NewPool(initialRAI, initialETH float64) (*Pool, error) {
	if initialRAI <= 0 || initialETH <= 0 {
		return nil, fmt.Errorf("%w: rai=%f eth=%f", ErrNonPositiveReserves, initialRAI, initialETH)
	}
	return &Pool{
		raiReserve:       initialRAI,
		ethReserve:       initialETH,
		lpSupply:         math.Sqrt(initialRAI * initialETH),
		initialSpotPrice: initialETH / initialRAI,
		hourlyPrices:     make([]float64, 0, PriceWindowSize),
	}, nil
}

// Reserves returns the current (RAI, ETH) reserves.
func (p *Pool) Reserves() (rai, eth float64) {
	return p.raiReserve, p.ethReserve
}

// LPSupply returns the outstanding liquidity-share supply.
func (p *Pool) LPSupply() float64 {
	return p.lpSupply
}

// SpotPrice returns the instantaneous ETH-per-RAI price, i.e. the reserve
// ratio.
func (p *Pool) SpotPrice() float64 {
	return p.ethReserve / p.raiReserve
}

// TotalValueLockedETH returns the pool value denominated in ETH: the RAI
// reserve at spot plus the ETH reserve.
func (p *Pool) TotalValueLockedETH() float64 {
	return p.raiReserve*p.SpotPrice() + p.ethReserve
}

// BuyRAI swaps amountETH into the pool and returns the RAI paid out. The
// reserve product is unchanged.
func (p *Pool) BuyRAI(amountETH float64) (float64, error) {
	if amountETH <= 0 {
		return 0, fmt.Errorf("buy rai: %w: %f", ErrNonPositiveAmount, amountETH)
	}
	invariant := p.raiReserve * p.ethReserve
	p.ethReserve += amountETH
	prevRAI := p.raiReserve
	p.raiReserve = invariant / p.ethReserve
	return prevRAI - p.raiReserve, nil
}

// PreviewBuyRAI computes the RAI a BuyRAI call would pay out without touching
// pool state.
func (p *Pool) PreviewBuyRAI(amountETH float64) (float64, error) {
	if amountETH <= 0 {
		return 0, fmt.Errorf("preview buy rai: %w: %f", ErrNonPositiveAmount, amountETH)
	}
	invariant := p.raiReserve * p.ethReserve
	newETH := p.ethReserve + amountETH
	return p.raiReserve - invariant/newETH, nil
}

// SellRAI swaps amountRAI into the pool and returns the ETH paid out. The
// reserve product is unchanged.
func (p *Pool) SellRAI(amountRAI float64) (float64, error) {
	if amountRAI <= 0 {
		return 0, fmt.Errorf("sell rai: %w: %f", ErrNonPositiveAmount, amountRAI)
	}
	invariant := p.raiReserve * p.ethReserve
	p.raiReserve += amountRAI
	prevETH := p.ethReserve
	p.ethReserve = invariant / p.raiReserve
	return prevETH - p.ethReserve, nil
}

// PreviewSellRAI computes the ETH a SellRAI call would pay out without
// touching pool state.
func (p *Pool) PreviewSellRAI(amountRAI float64) (float64, error) {
	if amountRAI <= 0 {
		return 0, fmt.Errorf("preview sell rai: %w: %f", ErrNonPositiveAmount, amountRAI)
	}
	invariant := p.raiReserve * p.ethReserve
	newRAI := p.raiReserve + amountRAI
	return p.ethReserve - invariant/newRAI, nil
}

// ETHInGivenRAIOut returns the ETH that must be swapped in to receive exactly
// amountRAIOut, derived from the invariant: eth*(R/(R-out) - 1). Fails if the
// requested output is not strictly inside the RAI reserve.
func (p *Pool) ETHInGivenRAIOut(amountRAIOut float64) (float64, error) {
	if amountRAIOut <= 0 {
		return 0, fmt.Errorf("eth in given rai out: %w: %f", ErrNonPositiveAmount, amountRAIOut)
	}
	if amountRAIOut >= p.raiReserve {
		return 0, fmt.Errorf("eth in given rai out: %w: want %f of %f", ErrInsufficientLiquidity, amountRAIOut, p.raiReserve)
	}
	return p.ethReserve * (p.raiReserve/(p.raiReserve-amountRAIOut) - 1), nil
}

// AddLiquidity deposits both tokens and mints liquidity shares proportional to
// the RAI contribution. The caller is responsible for the amounts being
// price-balanced; the pool does not re-balance or reject imbalance (known
// simplification: no fees, no slippage protection).
func (p *Pool) AddLiquidity(amountRAI, amountETH float64) (float64, error) {
	if amountRAI <= 0 || amountETH <= 0 {
		return 0, fmt.Errorf("add liquidity: %w: rai=%f eth=%f", ErrNonPositiveAmount, amountRAI, amountETH)
	}
	minted := (amountRAI / p.raiReserve) * p.lpSupply
	p.raiReserve += amountRAI
	p.ethReserve += amountETH
	p.lpSupply += minted
	return minted, nil
}

// PreviewAddLiquidity computes the shares AddLiquidity would mint without
// touching pool state.
func (p *Pool) PreviewAddLiquidity(amountRAI, amountETH float64) (float64, error) {
	if amountRAI <= 0 || amountETH <= 0 {
		return 0, fmt.Errorf("preview add liquidity: %w: rai=%f eth=%f", ErrNonPositiveAmount, amountRAI, amountETH)
	}
	return (amountRAI / p.raiReserve) * p.lpSupply, nil
}

// RemoveLiquidity burns lpBurned shares and returns the proportional claim on
// both reserves.
func (p *Pool) RemoveLiquidity(lpBurned float64) (amountRAI, amountETH float64, err error) {
	if lpBurned <= 0 {
		return 0, 0, fmt.Errorf("remove liquidity: %w: %f", ErrNonPositiveAmount, lpBurned)
	}
	share := lpBurned / p.lpSupply
	amountRAI = share * p.raiReserve
	amountETH = share * p.ethReserve
	p.raiReserve -= amountRAI
	p.ethReserve -= amountETH
	p.lpSupply -= lpBurned
	return amountRAI, amountETH, nil
}

// ProvideAfterBuyPreview is the result of PreviewProvideAfterBuy.
type ProvideAfterBuyPreview struct {
	RAIObtained float64 // RAI bought in the first leg
	ETHToAdd    float64 // ETH that pairs with the bought RAI at the post-buy price
	LPMinted    float64 // shares the subsequent AddLiquidity would mint
}

// PreviewProvideAfterBuy computes the outcome of buying RAI with ethToBuyWith
// and then supplying the bought RAI plus the matching ETH as liquidity. It is
// a pure recomputation over hypothetical reserves; pool state is never
// touched, so there is no rollback to get wrong.
func (p *Pool) PreviewProvideAfterBuy(ethToBuyWith float64) (ProvideAfterBuyPreview, error) {
	if ethToBuyWith <= 0 {
		return ProvideAfterBuyPreview{}, fmt.Errorf("preview provide after buy: %w: %f", ErrNonPositiveAmount, ethToBuyWith)
	}
	invariant := p.raiReserve * p.ethReserve
	ethAfterBuy := p.ethReserve + ethToBuyWith
	raiAfterBuy := invariant / ethAfterBuy
	raiObtained := p.raiReserve - raiAfterBuy

	newSpot := ethAfterBuy / raiAfterBuy
	ethToAdd := newSpot * raiObtained
	lpMinted := (raiObtained / raiAfterBuy) * p.lpSupply

	return ProvideAfterBuyPreview{
		RAIObtained: raiObtained,
		ETHToAdd:    ethToAdd,
		LPMinted:    lpMinted,
	}, nil
}

// RecordHourlyPrice pushes an end-of-hour spot price into the bounded window,
// evicting the oldest sample once the window is full.
func (p *Pool) RecordHourlyPrice(endPrice float64) {
	if len(p.hourlyPrices) < PriceWindowSize {
		p.hourlyPrices = append(p.hourlyPrices, endPrice)
		return
	}
	copy(p.hourlyPrices, p.hourlyPrices[1:])
	p.hourlyPrices[PriceWindowSize-1] = endPrice
}

// TWAP returns the mean of the last PriceWindowSize hourly samples, in ETH per
// RAI. Until the window has filled it reports the pool's initial spot price;
// not a true time-weighted average during that cold start.
func (p *Pool) TWAP() float64 {
	if len(p.hourlyPrices) < PriceWindowSize {
		return p.initialSpotPrice
	}
	var sum float64
	for _, price := range p.hourlyPrices {
		sum += price
	}
	return sum / PriceWindowSize
}
