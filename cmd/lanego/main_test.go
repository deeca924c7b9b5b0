package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cjeanneret/LaneGo/internal/config"
	"github.com/cjeanneret/LaneGo/internal/hw/address"
	"github.com/cjeanneret/LaneGo/internal/hw/gpio"
	"github.com/cjeanneret/LaneGo/internal/hw/stepper"
)

const mockConfig = `
boards:
  - name: a
    type: mcp23017
    address: 0x20
    pin_base: 100
    pins: 12
  - name: b
    type: mcp23017
    address: 0x21
    pin_base: 200
    pins: 12
motors:
  steps_per_rev: 8
lanes:
  settle_ms: -1
defaults:
  mock_gpio: true
`

func loadTestConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "configs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

// ---------- rotateFlag ----------

func TestRotateFlag(t *testing.T) {
	var r rotateFlag
	for _, s := range []string{"0:cw:1:6", "3:ccw:0.5:1.5"} {
		if err := r.Set(s); err != nil {
			t.Fatalf("Set(%q): %v", s, err)
		}
	}
	want := rotateFlag{
		{Channel: 0, Direction: stepper.Clockwise, Speed: 1, Rotations: 6},
		{Channel: 3, Direction: stepper.CounterClockwise, Speed: 0.5, Rotations: 1.5},
	}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("flags (-want +got):\n%s", diff)
	}
	if got := r.String(); got != "0:cw:1:6,3:ccw:0.5:1.5" {
		t.Errorf("String() = %q", got)
	}
}

func TestRotateFlag_Invalid(t *testing.T) {
	for _, s := range []string{"", "0:cw:1", "a:cw:1:1", "0:up:1:1", "0:cw:x:1", "0:cw:1:x"} {
		var r rotateFlag
		if err := r.Set(s); err == nil {
			t.Errorf("Set(%q): expected error", s)
		}
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 8080, false},
		{"8980", 8980, false},
		{"0", 0, true},
		{"65536", 0, true},
		{"http", 0, true},
	}
	for _, tc := range cases {
		w := &webPortFlag{defaultPort: 8080}
		err := w.Set(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Set(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && w.port() != tc.want {
			t.Errorf("Set(%q) port = %d, want %d", tc.in, w.port(), tc.want)
		}
	}
}

// ---------- assembly ----------

func TestAddressLayout(t *testing.T) {
	cfg := loadTestConfig(t, mockConfig)
	want := address.Layout{
		Boards:         []address.Board{{Name: "a", Base: 100, Pins: 12}, {Name: "b", Base: 200, Pins: 12}},
		MotorsPerBoard: 3,
		PinsPerMotor:   4,
	}
	if diff := cmp.Diff(want, addressLayout(cfg)); diff != "" {
		t.Errorf("layout (-want +got):\n%s", diff)
	}
}

func TestBuildMachine_Mock(t *testing.T) {
	cfg := loadTestConfig(t, mockConfig)
	m, err := buildMachine(cfg)
	if err != nil {
		t.Fatalf("buildMachine: %v", err)
	}
	defer m.Close()

	info := m.info(cfg)
	if info.Channels != 6 || info.Capacity != 3 || info.Sequence != "half8" {
		t.Errorf("info = %+v", info)
	}
	if diff := cmp.Diff([][]int{{0, 3}, {1, 4}, {2, 5}}, info.Layout); diff != "" {
		t.Errorf("layout (-want +got):\n%s", diff)
	}

	cmds := rotateFlag{
		{Channel: 0, Direction: stepper.Clockwise, Speed: 1, Rotations: 1},
		{Channel: 5, Direction: stepper.CounterClockwise, Speed: 1, Rotations: 2},
	}
	if err := runOnce(m.controller, cmds, false); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	for _, pin := range []int{100, 103, 208, 211} {
		if lvl, err := m.hw.space.ReadPin(pin); err != nil || lvl != gpio.Low {
			t.Errorf("pin %d = %v, %v after run", pin, lvl, err)
		}
	}
	if err := runOnce(m.controller, nil, true); err != nil {
		t.Errorf("zero: %v", err)
	}
	if err := runOnce(m.controller, nil, false); err == nil {
		t.Error("expected error with nothing to do")
	}
}

func TestRunOnce_RejectsBadBatch(t *testing.T) {
	cfg := loadTestConfig(t, mockConfig)
	m, err := buildMachine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	cmds := rotateFlag{
		{Channel: 1, Direction: stepper.Clockwise, Speed: 1, Rotations: 1},
		{Channel: 9, Direction: stepper.Clockwise, Speed: 1, Rotations: 1},
	}
	if err := runOnce(m.controller, cmds, false); !errors.Is(err, address.ErrChannelOutOfRange) {
		t.Errorf("err = %v, want ErrChannelOutOfRange", err)
	}
}

func TestShippedConfigs(t *testing.T) {
	for _, name := range []string{"default.yaml", "28byj48.yaml"} {
		data, err := os.ReadFile(filepath.Join("..", "..", "configs", name))
		if err != nil {
			t.Fatal(err)
		}
		m, err := buildMachine(loadTestConfig(t, string(data)))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		_ = m.Close()
	}
}
