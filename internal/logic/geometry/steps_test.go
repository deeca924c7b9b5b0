package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/cjeanneret/LaneGo/internal/config"
)

func newStepsConfig(stepsPerRev int) *config.Config {
	return &config.Config{
		Motors: config.MotorsConfig{StepsPerRev: stepsPerRev},
	}
}

func TestStepsCalculator_KnownConfig(t *testing.T) {
	sc := NewStepsCalculator(newStepsConfig(4096))

	cases := []struct {
		name      string
		rotations float64
		want      int
	}{
		{"full_turn", 1.0, 4096},
		{"half_turn", 0.5, 2048},
		{"quarter_turn", 0.25, 1024},
		{"two_turns", 2.0, 8192},
		{"zero", 0, 0},
		{"negative", -1, 0},
		{"rounds_up", 1.0 / 4096 * 0.6, 1},
		{"rounds_down", 1.0 / 4096 * 0.4, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sc.StepsFromRotations(tc.rotations)
			if err != nil || got != tc.want {
				t.Errorf("StepsFromRotations(%v) = %d, %v, want %d", tc.rotations, got, err, tc.want)
			}
		})
	}
}

func TestStepsCalculator_NaNAndNegativeInf(t *testing.T) {
	sc := NewStepsCalculator(newStepsConfig(400))
	for _, r := range []float64{math.NaN(), math.Inf(-1)} {
		if got, err := sc.StepsFromRotations(r); err != nil || got != 0 {
			t.Errorf("StepsFromRotations(%v) = %d, %v, want 0", r, got, err)
		}
	}
}

func TestStepsCalculator_TooManyRotations(t *testing.T) {
	sc := NewStepsCalculator(newStepsConfig(400))
	for _, r := range []float64{1e18, math.Inf(1), sc.MaxRotations() * 2} {
		got, err := sc.StepsFromRotations(r)
		if !errors.Is(err, ErrTooManyRotations) {
			t.Errorf("StepsFromRotations(%g) err = %v, want ErrTooManyRotations", r, err)
		}
		if got != 0 {
			t.Errorf("StepsFromRotations(%g) = %d, want 0", r, got)
		}
	}
	n, err := sc.StepsFromRotations(sc.MaxRotations())
	if err != nil || n <= 0 {
		t.Errorf("StepsFromRotations(max) = %d, %v, want a positive count", n, err)
	}
}

func TestStepsCalculator_DifferentMotors(t *testing.T) {
	for _, spr := range []int{200, 400, 2048, 4096} {
		sc := NewStepsCalculator(newStepsConfig(spr))
		if sc.StepsPerRev() != spr {
			t.Errorf("StepsPerRev() = %d, want %d", sc.StepsPerRev(), spr)
		}
		if got, _ := sc.StepsFromRotations(1.5); got != spr*3/2 {
			t.Errorf("spr=%d: StepsFromRotations(1.5) = %d, want %d", spr, got, spr*3/2)
		}
	}
}
