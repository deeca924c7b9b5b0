package gpio

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestMockDriver_RecordsWrites(t *testing.T) {
	drv := &MockDriver{}
	_ = drv.WritePin(3, High)
	_ = drv.WritePin(4, Low)
	_ = drv.WritePin(3, Low)

	want := []Write{{3, High}, {4, Low}, {3, Low}}
	if diff := cmp.Diff(want, drv.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if got := drv.WritesForPin(3); len(got) != 2 {
		t.Errorf("WritesForPin(3) = %v, want 2 writes", got)
	}
	if lvl, _ := drv.ReadPin(3); lvl != Low {
		t.Errorf("ReadPin(3) = %v, want Low", lvl)
	}
}

func TestMockDriver_FailWrite(t *testing.T) {
	boom := errors.New("boom")
	drv := &MockDriver{FailWrite: func(pin int, level Level) error {
		if pin == 7 {
			return boom
		}
		return nil
	}}
	if err := drv.WritePin(7, High); !errors.Is(err, boom) {
		t.Fatalf("WritePin(7) = %v, want boom", err)
	}
	if err := drv.WritePin(6, High); err != nil {
		t.Fatalf("WritePin(6) = %v", err)
	}
	if len(drv.Writes()) != 1 {
		t.Errorf("failed writes must not be recorded, got %v", drv.Writes())
	}
}

func TestMockDriver_SetupPin(t *testing.T) {
	drv := &MockDriver{}
	_ = drv.SetupPin(5, Output)
	if mode, ok := drv.Mode(5); !ok || mode != Output {
		t.Errorf("Mode(5) = %v,%v want Output,true", mode, ok)
	}
}

func TestPinSpace_RoutesToBoards(t *testing.T) {
	a, b := &MockDriver{}, &MockDriver{}
	space, err := NewPinSpace(
		Board{Name: "mcp1", Base: 200, Pins: 16, Driver: b},
		Board{Name: "mcp0", Base: 100, Pins: 16, Driver: a},
	)
	if err != nil {
		t.Fatalf("NewPinSpace: %v", err)
	}

	if err := space.WritePin(104, High); err != nil {
		t.Fatal(err)
	}
	if err := space.WritePin(215, High); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]Write{{4, High}}, a.Writes()); diff != "" {
		t.Errorf("board mcp0 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Write{{15, High}}, b.Writes()); diff != "" {
		t.Errorf("board mcp1 (-want +got):\n%s", diff)
	}
}

func TestPinSpace_UnmappedPin(t *testing.T) {
	space, err := NewPinSpace(Board{Name: "mcp0", Base: 100, Pins: 12, Driver: &MockDriver{}})
	if err != nil {
		t.Fatal(err)
	}
	for _, pin := range []int{0, 99, 112, 200} {
		if err := space.WritePin(pin, High); !errors.Is(err, ErrPinNotMapped) {
			t.Errorf("WritePin(%d) = %v, want ErrPinNotMapped", pin, err)
		}
	}
}

func TestPinSpace_OverlapRejected(t *testing.T) {
	_, err := NewPinSpace(
		Board{Name: "a", Base: 100, Pins: 16, Driver: &MockDriver{}},
		Board{Name: "b", Base: 110, Pins: 16, Driver: &MockDriver{}},
	)
	if err == nil {
		t.Fatal("expected overlap error, got nil")
	}
}

func TestPinSpace_InvalidBoard(t *testing.T) {
	cases := []struct {
		name  string
		board Board
	}{
		{"no_driver", Board{Name: "x", Base: 0, Pins: 4}},
		{"zero_pins", Board{Name: "x", Base: 0, Pins: 0, Driver: &MockDriver{}}},
		{"negative_base", Board{Name: "x", Base: -1, Pins: 4, Driver: &MockDriver{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPinSpace(tc.board); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPinSpace_SetupOutputs(t *testing.T) {
	drv := &MockDriver{}
	space, err := NewPinSpace(Board{Name: "a", Base: 100, Pins: 4, Driver: drv})
	if err != nil {
		t.Fatal(err)
	}
	if err := space.SetupOutputs(); err != nil {
		t.Fatal(err)
	}
	for off := 0; off < 4; off++ {
		if mode, ok := drv.Mode(off); !ok || mode != Output {
			t.Errorf("pin %d not set up as output", off)
		}
	}
}

func TestRemapDriver(t *testing.T) {
	host := &MockDriver{}
	r := NewRemapDriver(host, []int{17, 18, 27, 22})
	for off := 0; off < 4; off++ {
		if err := r.WritePin(off, High); err != nil {
			t.Fatal(err)
		}
	}
	want := []Write{{17, High}, {18, High}, {27, High}, {22, High}}
	if diff := cmp.Diff(want, host.Writes()); diff != "" {
		t.Errorf("remapped writes (-want +got):\n%s", diff)
	}
	if err := r.WritePin(4, High); !errors.Is(err, ErrPinNotMapped) {
		t.Errorf("WritePin(4) = %v, want ErrPinNotMapped", err)
	}
}

func newTestExpander(n int) (*ExpanderDriver, []*gpiotest.Pin) {
	fakes := make([]*gpiotest.Pin, n)
	pins := make([]pgpio.PinIO, n)
	for i := range fakes {
		fakes[i] = &gpiotest.Pin{N: "GPIO", Num: i, L: pgpio.High}
		pins[i] = fakes[i]
	}
	return NewExpanderFromPins("fake@0x20", pins), fakes
}

func TestExpanderDriver_WriteRead(t *testing.T) {
	exp, fakes := newTestExpander(16)
	if exp.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", exp.Len())
	}
	if err := exp.WritePin(9, Low); err != nil {
		t.Fatal(err)
	}
	if fakes[9].L != pgpio.Low {
		t.Errorf("pin 9 level = %v, want Low", fakes[9].L)
	}
	lvl, err := exp.ReadPin(9)
	if err != nil || lvl != Low {
		t.Errorf("ReadPin(9) = %v,%v want Low,nil", lvl, err)
	}
	if err := exp.WritePin(16, High); !errors.Is(err, ErrPinNotMapped) {
		t.Errorf("WritePin(16) = %v, want ErrPinNotMapped", err)
	}
}

func TestExpanderDriver_CloseDrivesLow(t *testing.T) {
	exp, fakes := newTestExpander(8)
	if err := exp.Close(); err != nil {
		t.Fatal(err)
	}
	for i, p := range fakes {
		if p.L != pgpio.Low {
			t.Errorf("pin %d = %v after Close, want Low", i, p.L)
		}
	}
}

func TestIsExpander(t *testing.T) {
	for _, kind := range []string{"mcp23017", "MCP23008", "pcf8574", "pcf8575", "tca9555", "tca9535", "tca9534"} {
		if !IsExpander(kind) {
			t.Errorf("IsExpander(%q) = false", kind)
		}
	}
	for _, kind := range []string{"", "mock", "rpio", "mcp3008"} {
		if IsExpander(kind) {
			t.Errorf("IsExpander(%q) = true", kind)
		}
	}
}
