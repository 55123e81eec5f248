// Package prices generates the exogenous ETH/USD series the model runs
// against: a random walk pinned to chosen start and end values and folded
// back whenever it would leave the configured band.
package prices

import (
	"errors"
	"fmt"
	"math/rand"
)

// Walk errors.
var (
	ErrWalkLength = errors.New("walk length must be at least 2")
	ErrWalkBounds = errors.New("walk start and end must lie within the bounds")
)

// WalkConfig parameterizes a bounded random walk.
type WalkConfig struct {
	Length int     `yaml:"length"`
	Lower  float64 `yaml:"lower"`
	Upper  float64 `yaml:"upper"`
	Start  float64 `yaml:"start"`
	End    float64 `yaml:"end"`
	Std    float64 `yaml:"std"`
}

// Validate checks the length and that the endpoints sit inside the band.
func (c WalkConfig) Validate() error {
	if c.Length < 2 {
		return fmt.Errorf("%w: got %d", ErrWalkLength, c.Length)
	}
	if c.Start < c.Lower || c.Start > c.Upper || c.End < c.Lower || c.End > c.Upper {
		return fmt.Errorf("%w: bounds [%f, %f], start %f, end %f", ErrWalkBounds, c.Lower, c.Upper, c.Start, c.End)
	}
	return nil
}

// BoundedRandomWalk draws a series of cfg.Length samples that starts at
// cfg.Start, ends at cfg.End and never leaves [cfg.Lower, cfg.Upper].
//
// The construction follows the geometric argument from
// https://stackoverflow.com/a/47005958: accumulate a plain random walk, strip
// its own start-to-end trend line, rescale the residuals so their spread fits
// the band, then fold any residual that still slips past a margin back inside
// and add the result onto the start-to-end trend line.
func BoundedRandomWalk(rng *rand.Rand, cfg WalkConfig) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bounded random walk: %w", err)
	}

	n := cfg.Length
	band := cfg.Upper - cfg.Lower

	walk := make([]float64, n)
	sum := 0.0
	for i := range walk {
		sum += cfg.Std * (rng.Float64() - 0.5)
		walk[i] = sum
	}

	deltas := make([]float64, n)
	minDelta, maxDelta := 0.0, 0.0
	for i := range deltas {
		deltas[i] = walk[i] - linspace(walk[0], walk[n-1], n, i)
		if i == 0 || deltas[i] < minDelta {
			minDelta = deltas[i]
		}
		if i == 0 || deltas[i] > maxDelta {
			maxDelta = deltas[i]
		}
	}
	if scale := (maxDelta - minDelta) / band; scale > 1 {
		for i := range deltas {
			deltas[i] /= scale
		}
	}

	out := make([]float64, n)
	for i := range out {
		trend := linspace(cfg.Start, cfg.End, n, i)
		upperDelta := cfg.Upper - trend
		lowerDelta := cfg.Lower - trend

		d := deltas[i]
		if d >= upperDelta {
			d = upperDelta - (d - upperDelta)
		}
		if d <= lowerDelta {
			d = lowerDelta + (lowerDelta - d)
		}
		out[i] = trend + d
	}
	return out, nil
}

// linspace returns the i-th of n evenly spaced values from start to end.
func linspace(start, end float64, n, i int) float64 {
	return start + (end-start)*float64(i)/float64(n-1)
}
