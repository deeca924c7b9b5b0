package geometry

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cjeanneret/LaneGo/internal/config"
)

func newSpeedConfig(minMs, maxMs int, policy string) *config.Config {
	return &config.Config{
		Motors: config.MotorsConfig{MinDelayMs: minMs, MaxDelayMs: maxMs, SpeedPolicy: policy},
	}
}

func TestSpeedConverter_Bounds(t *testing.T) {
	sc := NewSpeedConverter(newSpeedConfig(2, 10, config.SpeedClamp))

	cases := []struct {
		name  string
		speed float64
		want  time.Duration
	}{
		{"fastest", 1.0, 2 * time.Millisecond},
		{"slowest", 0.0, 10 * time.Millisecond},
		{"midpoint", 0.5, 6 * time.Millisecond},
		{"quarter", 0.25, 8 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sc.Delay(tc.speed)
			if err != nil {
				t.Fatalf("Delay(%v): %v", tc.speed, err)
			}
			if got != tc.want {
				t.Errorf("Delay(%v) = %v, want %v", tc.speed, got, tc.want)
			}
		})
	}
}

func TestSpeedConverter_Deterministic(t *testing.T) {
	sc := NewSpeedConverter(newSpeedConfig(1, 100, config.SpeedClamp))
	first, _ := sc.Delay(0.37)
	for i := 0; i < 100; i++ {
		if got, _ := sc.Delay(0.37); got != first {
			t.Fatalf("Delay(0.37) = %v, previously %v", got, first)
		}
	}
}

func TestSpeedConverter_ClampPolicy(t *testing.T) {
	sc := NewSpeedConverter(newSpeedConfig(1, 100, config.SpeedClamp))

	fast, err := sc.Delay(2.0)
	if err != nil {
		t.Fatalf("Delay(2.0): %v", err)
	}
	if fast != time.Millisecond {
		t.Errorf("Delay(2.0) = %v, want 1ms (clamped)", fast)
	}

	slow, err := sc.Delay(-0.5)
	if err != nil {
		t.Fatalf("Delay(-0.5): %v", err)
	}
	if slow != 100*time.Millisecond {
		t.Errorf("Delay(-0.5) = %v, want 100ms (clamped)", slow)
	}
}

func TestSpeedConverter_RejectPolicy(t *testing.T) {
	sc := NewSpeedConverter(newSpeedConfig(1, 100, config.SpeedReject))
	for _, s := range []float64{-0.01, 1.01, 2} {
		if _, err := sc.Delay(s); !errors.Is(err, ErrSpeedOutOfRange) {
			t.Errorf("Delay(%v) = %v, want ErrSpeedOutOfRange", s, err)
		}
	}
	if _, err := sc.Delay(1.0); err != nil {
		t.Errorf("Delay(1.0) boundary should be accepted, got %v", err)
	}
	if _, err := sc.Delay(0.0); err != nil {
		t.Errorf("Delay(0.0) boundary should be accepted, got %v", err)
	}
}

func TestSpeedConverter_NonFiniteAlwaysRejected(t *testing.T) {
	for _, policy := range []string{config.SpeedClamp, config.SpeedReject} {
		sc := NewSpeedConverter(newSpeedConfig(1, 100, policy))
		for _, s := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			if _, err := sc.Delay(s); !errors.Is(err, ErrInvalidSpeed) {
				t.Errorf("%s: Delay(%v) = %v, want ErrInvalidSpeed", policy, s, err)
			}
		}
	}
}
