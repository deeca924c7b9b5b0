// Package address maps logical motor channels onto the pin space of the
// expander boards.
package address

import (
	"errors"
	"fmt"
	"sort"
)

// PinsPerMotor is the number of coil-drive pins of one motor.
const PinsPerMotor = 4

var (
	ErrChannelOutOfRange = errors.New("channel out of range")
	ErrInvalidLayout     = errors.New("invalid board layout")
	ErrOverlappingLayout = errors.New("overlapping board layout")
)

// Board describes the pin range of one expander board.
type Board struct {
	Name string
	Base int // first logical pin of the board (e.g. 100, 200)
	Pins int // pin capacity of the board
}

// Layout is the static addressing configuration.
type Layout struct {
	Boards         []Board
	MotorsPerBoard int
	PinsPerMotor   int
}

// PinAddress is the resolved pin range of one motor.
type PinAddress struct {
	Channel int
	Board   int
	Base    int
	Width   int
}

// Pins returns the logical pin numbers of the motor, in coil order.
func (a PinAddress) Pins() []int {
	pins := make([]int, a.Width)
	for i := range pins {
		pins[i] = a.Base + i
	}
	return pins
}

// Overlaps reports whether two addresses share at least one pin.
func (a PinAddress) Overlaps(b PinAddress) bool {
	return a.Base < b.Base+b.Width && b.Base < a.Base+a.Width
}

// Resolver converts channels to pin addresses.
type Resolver struct {
	layout Layout
}

// New validates the layout and returns a resolver. A layout in which two
// motors could share a pin is rejected here rather than at run time.
func New(layout Layout) (*Resolver, error) {
	if len(layout.Boards) == 0 {
		return nil, fmt.Errorf("%w: no boards configured", ErrInvalidLayout)
	}
	if layout.MotorsPerBoard < 1 {
		return nil, fmt.Errorf("%w: motors_per_board must be >= 1, got %d", ErrInvalidLayout, layout.MotorsPerBoard)
	}
	if layout.PinsPerMotor != PinsPerMotor {
		return nil, fmt.Errorf("%w: pins_per_motor must be %d, got %d", ErrInvalidLayout, PinsPerMotor, layout.PinsPerMotor)
	}

	need := layout.MotorsPerBoard * layout.PinsPerMotor
	for i, b := range layout.Boards {
		if b.Base < 0 {
			return nil, fmt.Errorf("%w: board %d has negative base %d", ErrInvalidLayout, i, b.Base)
		}
		if b.Pins < need {
			return nil, fmt.Errorf("%w: board %d has %d pins, %d motors x %d pins need %d",
				ErrOverlappingLayout, i, b.Pins, layout.MotorsPerBoard, layout.PinsPerMotor, need)
		}
	}

	sorted := append([]Board(nil), layout.Boards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		if prev.Base+prev.Pins > sorted[i].Base {
			return nil, fmt.Errorf("%w: board at %d (%d pins) runs into board at %d",
				ErrOverlappingLayout, prev.Base, prev.Pins, sorted[i].Base)
		}
	}

	layout.Boards = append([]Board(nil), layout.Boards...)
	return &Resolver{layout: layout}, nil
}

// Channels returns the number of addressable motors.
func (r *Resolver) Channels() int {
	return len(r.layout.Boards) * r.layout.MotorsPerBoard
}

// Resolve returns the pin address of channel.
func (r *Resolver) Resolve(channel int) (PinAddress, error) {
	if channel < 0 || channel >= r.Channels() {
		return PinAddress{}, fmt.Errorf("channel %d not in [0,%d): %w", channel, r.Channels(), ErrChannelOutOfRange)
	}
	board := channel / r.layout.MotorsPerBoard
	motor := channel % r.layout.MotorsPerBoard
	return PinAddress{
		Channel: channel,
		Board:   board,
		Base:    r.layout.Boards[board].Base + motor*r.layout.PinsPerMotor,
		Width:   r.layout.PinsPerMotor,
	}, nil
}

// BoardPins lists every configured pin of every board, board by board.
func (r *Resolver) BoardPins() []int {
	var pins []int
	for _, b := range r.layout.Boards {
		for i := 0; i < b.Pins; i++ {
			pins = append(pins, b.Base+i)
		}
	}
	return pins
}

// Layout returns a copy of the resolver layout.
func (r *Resolver) Layout() Layout {
	l := r.layout
	l.Boards = append([]Board(nil), r.layout.Boards...)
	return l
}
