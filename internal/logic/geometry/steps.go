package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/LaneGo/internal/config"
)

// ErrTooManyRotations is returned when a step count does not fit in an int.
var ErrTooManyRotations = errors.New("rotation count too large")

// StepsCalculator converts rotation counts to motor step counts.
type StepsCalculator struct {
	stepsPerRev int
}

// NewStepsCalculator creates a step calculator from configuration.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	return &StepsCalculator{stepsPerRev: cfg.Motors.StepsPerRev}
}

// StepsPerRev returns the number of table steps in one full turn.
func (s *StepsCalculator) StepsPerRev() int {
	return s.stepsPerRev
}

// maxSteps is the largest step count exactly representable as a float64.
const maxSteps = 1 << 53

// MaxRotations returns the largest turn count StepsFromRotations accepts.
func (s *StepsCalculator) MaxRotations() float64 {
	if s.stepsPerRev <= 0 {
		return 0
	}
	return float64(maxSteps) / float64(s.stepsPerRev)
}

// StepsFromRotations converts fractional turns to a step count, rounded to
// the nearest step. Zero, negative and NaN counts give 0 steps; counts
// above MaxRotations (including +Inf) return ErrTooManyRotations.
func (s *StepsCalculator) StepsFromRotations(rotations float64) (int, error) {
	if math.IsNaN(rotations) || rotations <= 0 {
		return 0, nil
	}
	if rotations > s.MaxRotations() {
		return 0, fmt.Errorf("%w: %g turns, max %g", ErrTooManyRotations, rotations, s.MaxRotations())
	}
	return int(math.Round(rotations * float64(s.stepsPerRev))), nil
}
