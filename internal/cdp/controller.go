package cdp

import (
	"errors"
	"fmt"
)

// ControllerKind selects the feedback rule that steers the redemption rate.
type ControllerKind string

// Supported controller kinds. Only the proportional controller has an update
// rule; PI and PID reserve their parameter slots for future work and fail
// explicitly when invoked.
const (
	ControllerP   ControllerKind = "P"
	ControllerPI  ControllerKind = "PI"
	ControllerPID ControllerKind = "PID"
)

// Controller errors.
var (
	ErrUnknownControllerKind  = errors.New("unknown controller kind")
	ErrControllerGainCount    = errors.New("wrong number of controller gains")
	ErrControllerNotImplement = errors.New("controller update rule not implemented")
)

// Controller is a controller kind plus its fixed gain vector: [Kp] for P,
// [Kp, Ki] for PI, [Kp, Ki, Kd] for PID.
type Controller struct {
	Kind  ControllerKind
	Gains []float64
}

// gainCount returns the gain vector length each kind requires.
func gainCount(kind ControllerKind) (int, error) {
	switch kind {
	case ControllerP:
		return 1, nil
	case ControllerPI:
		return 2, nil
	case ControllerPID:
		return 3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownControllerKind, kind)
	}
}

// Validate checks the kind and gain vector length.
func (c Controller) Validate() error {
	want, err := gainCount(c.Kind)
	if err != nil {
		return err
	}
	if len(c.Gains) != want {
		return fmt.Errorf("%w: kind %s wants %d, got %d", ErrControllerGainCount, c.Kind, want, len(c.Gains))
	}
	return nil
}

// hourlyRate computes the new hourly redemption rate from the price error.
// The error signal is redemptionPrice - marketPriceUSD, so the rate pushes the
// redemption price toward the market price from above and away from below.
func (c Controller) hourlyRate(redemptionPrice, marketPriceUSD float64) (float64, error) {
	switch c.Kind {
	case ControllerP:
		kp := c.Gains[0]
		return kp * (redemptionPrice - marketPriceUSD), nil
	case ControllerPI, ControllerPID:
		return 0, fmt.Errorf("%w: %s", ErrControllerNotImplement, c.Kind)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownControllerKind, c.Kind)
	}
}
