package gpio

import (
	"errors"
	"fmt"
	"sort"
)

// RemapDriver exposes an arbitrary list of pins of another driver as
// offsets 0..n-1. Used for motors wired straight to host GPIOs.
type RemapDriver struct {
	drv  Driver
	pins []int
}

// NewRemapDriver maps offset i to pins[i] on drv.
func NewRemapDriver(drv Driver, pins []int) *RemapDriver {
	return &RemapDriver{drv: drv, pins: append([]int(nil), pins...)}
}

func (r *RemapDriver) target(offset int) (int, error) {
	if offset < 0 || offset >= len(r.pins) {
		return 0, fmt.Errorf("remap offset %d out of range [0,%d): %w", offset, len(r.pins), ErrPinNotMapped)
	}
	return r.pins[offset], nil
}

func (r *RemapDriver) SetupPin(pin int, mode PinMode) error {
	p, err := r.target(pin)
	if err != nil {
		return err
	}
	return r.drv.SetupPin(p, mode)
}

func (r *RemapDriver) WritePin(pin int, level Level) error {
	p, err := r.target(pin)
	if err != nil {
		return err
	}
	return r.drv.WritePin(p, level)
}

func (r *RemapDriver) ReadPin(pin int) (Level, error) {
	p, err := r.target(pin)
	if err != nil {
		return Low, err
	}
	return r.drv.ReadPin(p)
}

// Close does not close the underlying driver, which may be shared.
func (r *RemapDriver) Close() error {
	return nil
}

// Board is one segment of the logical pin space.
type Board struct {
	Name   string
	Base   int // first logical pin number
	Pins   int // number of pins starting at Base
	Driver Driver
}

// PinSpace routes logical pin numbers (Base+offset, wiringPi style) to the
// board that owns them. Board ranges never overlap.
type PinSpace struct {
	boards []Board
}

// NewPinSpace builds a pin space. Overlapping board ranges are rejected.
func NewPinSpace(boards ...Board) (*PinSpace, error) {
	sorted := append([]Board(nil), boards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	for i, b := range sorted {
		if b.Driver == nil {
			return nil, fmt.Errorf("board %q has no driver", b.Name)
		}
		if b.Pins <= 0 || b.Base < 0 {
			return nil, fmt.Errorf("board %q: invalid range base=%d pins=%d", b.Name, b.Base, b.Pins)
		}
		if i > 0 {
			prev := sorted[i-1]
			if prev.Base+prev.Pins > b.Base {
				return nil, fmt.Errorf("boards %q and %q overlap at pin %d", prev.Name, b.Name, b.Base)
			}
		}
	}
	return &PinSpace{boards: sorted}, nil
}

func (s *PinSpace) locate(pin int) (Board, int, error) {
	for _, b := range s.boards {
		if pin >= b.Base && pin < b.Base+b.Pins {
			return b, pin - b.Base, nil
		}
	}
	return Board{}, 0, fmt.Errorf("pin %d: %w", pin, ErrPinNotMapped)
}

func (s *PinSpace) SetupPin(pin int, mode PinMode) error {
	b, off, err := s.locate(pin)
	if err != nil {
		return err
	}
	return b.Driver.SetupPin(off, mode)
}

func (s *PinSpace) WritePin(pin int, level Level) error {
	b, off, err := s.locate(pin)
	if err != nil {
		return err
	}
	return b.Driver.WritePin(off, level)
}

func (s *PinSpace) ReadPin(pin int) (Level, error) {
	b, off, err := s.locate(pin)
	if err != nil {
		return Low, err
	}
	return b.Driver.ReadPin(off)
}

// Close closes every board driver and joins their errors.
func (s *PinSpace) Close() error {
	var errs []error
	for _, b := range s.boards {
		if err := b.Driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close board %q: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}

// SetupOutputs configures every pin of every board as an output.
func (s *PinSpace) SetupOutputs() error {
	for _, b := range s.boards {
		for off := 0; off < b.Pins; off++ {
			if err := b.Driver.SetupPin(off, Output); err != nil {
				return fmt.Errorf("setup board %q pin %d: %w", b.Name, b.Base+off, err)
			}
		}
	}
	return nil
}
