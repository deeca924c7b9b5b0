package geometry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/LaneGo/internal/config"
)

var (
	// ErrInvalidSpeed is returned for NaN or infinite speeds, whatever the policy.
	ErrInvalidSpeed = errors.New("invalid speed")
	// ErrSpeedOutOfRange is returned for speeds outside [0, 1] under the reject policy.
	ErrSpeedOutOfRange = errors.New("speed out of range [0, 1]")
)

// SpeedConverter maps a normalized speed to the delay between two steps:
// 1.0 gives minDelay, 0.0 gives maxDelay, linear in between.
type SpeedConverter struct {
	minDelay time.Duration
	maxDelay time.Duration
	clamp    bool
}

// NewSpeedConverter creates a converter from the motors configuration.
func NewSpeedConverter(cfg *config.Config) *SpeedConverter {
	return &SpeedConverter{
		minDelay: cfg.MinDelay(),
		maxDelay: cfg.MaxDelay(),
		clamp:    cfg.ClampSpeed(),
	}
}

// Normalize applies the speed policy and returns the speed actually used.
func (c *SpeedConverter) Normalize(speed float64) (float64, error) {
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0, fmt.Errorf("%w: %g", ErrInvalidSpeed, speed)
	}
	if speed >= 0 && speed <= 1 {
		return speed, nil
	}
	if !c.clamp {
		return 0, fmt.Errorf("%w: got %g", ErrSpeedOutOfRange, speed)
	}
	return math.Max(0, math.Min(1, speed)), nil
}

// Delay returns the inter-step delay for speed.
func (c *SpeedConverter) Delay(speed float64) (time.Duration, error) {
	s, err := c.Normalize(speed)
	if err != nil {
		return 0, err
	}
	span := float64(c.maxDelay - c.minDelay)
	return c.minDelay + time.Duration(math.Round(span*(1-s))), nil
}
