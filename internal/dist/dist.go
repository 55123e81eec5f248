// Package dist maps distribution configuration onto sampling strategies used
// to draw agent parameters. Adding a distribution means adding a Kind and a
// Sampler here; agent construction code never changes.
package dist

import (
	"errors"
	"fmt"
	"math/rand"
)

// Kind identifies a parameter distribution.
type Kind string

// Recognized distribution kinds. Only uniform has a sampling rule today;
// gaussian and pareto are reserved and fail explicitly when selected.
const (
	Uniform  Kind = "uniform"
	Gaussian Kind = "gaussian"
	Pareto   Kind = "pareto"
)

// Factory errors.
var (
	ErrUnknownKind    = errors.New("unknown distribution kind")
	ErrNotImplemented = errors.New("distribution not implemented")
	ErrInvalidBounds  = errors.New("lower bound exceeds upper bound")
)

// Config describes a distribution by kind and a parameter pair. For uniform
// the pair is (lower, upper).
type Config struct {
	Kind  Kind    `yaml:"kind"`
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// Sampler draws values from a configured distribution.
type Sampler interface {
	Sample(rng *rand.Rand) float64
}

// FromConfig builds a Sampler for the configured kind.
func FromConfig(cfg Config) (Sampler, error) {
	switch cfg.Kind {
	case Uniform:
		if cfg.Lower > cfg.Upper {
			return nil, fmt.Errorf("%w: [%f, %f]", ErrInvalidBounds, cfg.Lower, cfg.Upper)
		}
		return uniformSampler{lower: cfg.Lower, upper: cfg.Upper}, nil
	case Gaussian, Pareto:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, cfg.Kind)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

type uniformSampler struct {
	lower, upper float64
}

func (u uniformSampler) Sample(rng *rand.Rand) float64 {
	return u.lower + rng.Float64()*(u.upper-u.lower)
}
