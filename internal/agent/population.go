package agent

import (
	"errors"
	"fmt"
	"math/rand"

	"rai-sim-lab/internal/dist"
)

// Population errors.
var (
	ErrProportionsSum   = errors.New("agent proportions must sum to 100")
	ErrNonPositiveCount = errors.New("agent count must be positive")
)

// ApeDists are the parameter distributions for liquidity apes.
type ApeDists struct {
	ETHHoldings          dist.Config `yaml:"eth_holdings"`
	APYThresholdPct      dist.Config `yaml:"apy_threshold_pct"`
	ExpectedFLXValuation dist.Config `yaml:"expected_flx_valuation"`
}

// ShorterDists are the parameter distributions for shorters.
type ShorterDists struct {
	ETHHoldings            dist.Config `yaml:"eth_holdings"`
	DifferenceThresholdPct dist.Config `yaml:"difference_threshold_pct"`
	StopLossPct            dist.Config `yaml:"stop_loss_pct"`
	CollateralizationPct   dist.Config `yaml:"collateralization_pct"`
}

// LongerDists are the parameter distributions for longers. Trend lengths are
// sampled as floats and truncated to whole weeks.
type LongerDists struct {
	ETHHoldings    dist.Config `yaml:"eth_holdings"`
	UptrendWeeks   dist.Config `yaml:"uptrend_weeks"`
	DowntrendWeeks dist.Config `yaml:"downtrend_weeks"`
	StopLossPct    dist.Config `yaml:"stop_loss_pct"`
}

// PopulationConfig describes how many agents to build and how to draw each
// variant's parameters.
type PopulationConfig struct {
	Count int `yaml:"count"`

	ApeProportionPct     float64 `yaml:"ape_proportion_pct"`
	ShorterProportionPct float64 `yaml:"shorter_proportion_pct"`
	LongerProportionPct  float64 `yaml:"longer_proportion_pct"`

	Ape     ApeDists     `yaml:"ape"`
	Shorter ShorterDists `yaml:"shorter"`
	Longer  LongerDists  `yaml:"longer"`
}

// Validate checks count and proportions.
func (c PopulationConfig) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveCount, c.Count)
	}
	sum := c.ApeProportionPct + c.ShorterProportionPct + c.LongerProportionPct
	if sum < 99.999 || sum > 100.001 {
		return fmt.Errorf("%w: got %f", ErrProportionsSum, sum)
	}
	return nil
}

// BuildPopulation draws cfg.Count agents, choosing each agent's kind from
// the configured proportions and its parameters from the configured
// distributions, all through the single provided source of randomness.
func BuildPopulation(rng *rand.Rand, cfg PopulationConfig) ([]Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("build population: %w", err)
	}

	samplers, err := buildSamplers(cfg)
	if err != nil {
		return nil, fmt.Errorf("build population: %w", err)
	}

	agents := make([]Agent, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		switch draw := rng.Float64() * 100; {
		case draw < cfg.ApeProportionPct:
			agents = append(agents, NewLiquidityApe(
				samplers.apeETH.Sample(rng),
				samplers.apeAPY.Sample(rng),
				samplers.apeFLX.Sample(rng),
			))
		case draw < cfg.ApeProportionPct+cfg.ShorterProportionPct:
			agents = append(agents, NewShorter(
				samplers.shorterETH.Sample(rng),
				samplers.shorterDiff.Sample(rng),
				samplers.shorterStop.Sample(rng),
				samplers.shorterColl.Sample(rng),
			))
		default:
			agents = append(agents, NewLonger(
				samplers.longerETH.Sample(rng),
				samplers.longerStop.Sample(rng),
				int(samplers.longerUp.Sample(rng)),
				int(samplers.longerDown.Sample(rng)),
			))
		}
	}
	return agents, nil
}

type populationSamplers struct {
	apeETH, apeAPY, apeFLX                            dist.Sampler
	shorterETH, shorterDiff, shorterStop, shorterColl dist.Sampler
	longerETH, longerUp, longerDown, longerStop       dist.Sampler
}

func buildSamplers(cfg PopulationConfig) (*populationSamplers, error) {
	s := &populationSamplers{}
	for _, entry := range []struct {
		name   string
		cfg    dist.Config
		target *dist.Sampler
	}{
		{"ape.eth_holdings", cfg.Ape.ETHHoldings, &s.apeETH},
		{"ape.apy_threshold_pct", cfg.Ape.APYThresholdPct, &s.apeAPY},
		{"ape.expected_flx_valuation", cfg.Ape.ExpectedFLXValuation, &s.apeFLX},
		{"shorter.eth_holdings", cfg.Shorter.ETHHoldings, &s.shorterETH},
		{"shorter.difference_threshold_pct", cfg.Shorter.DifferenceThresholdPct, &s.shorterDiff},
		{"shorter.stop_loss_pct", cfg.Shorter.StopLossPct, &s.shorterStop},
		{"shorter.collateralization_pct", cfg.Shorter.CollateralizationPct, &s.shorterColl},
		{"longer.eth_holdings", cfg.Longer.ETHHoldings, &s.longerETH},
		{"longer.uptrend_weeks", cfg.Longer.UptrendWeeks, &s.longerUp},
		{"longer.downtrend_weeks", cfg.Longer.DowntrendWeeks, &s.longerDown},
		{"longer.stop_loss_pct", cfg.Longer.StopLossPct, &s.longerStop},
	} {
		sampler, err := dist.FromConfig(entry.cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.name, err)
		}
		*entry.target = sampler
	}
	return s, nil
}
