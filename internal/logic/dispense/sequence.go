package dispense

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cjeanneret/LaneGo/internal/debug"
	"github.com/cjeanneret/LaneGo/internal/hw/stepper"
	"github.com/cjeanneret/LaneGo/internal/logic/geometry"
	"github.com/cjeanneret/LaneGo/internal/logic/motion"
)

var (
	ErrEmptyOrder    = errors.New("order has nothing to dispense")
	ErrDuplicateLane = errors.New("lane listed twice in order")
)

// Item asks for Quantity units from the lane at (Row, Column), 1-based.
type Item struct {
	Row      int `json:"row"`
	Column   int `json:"column"`
	Quantity int `json:"quantity"`
}

// Order is a list of items to dispense.
type Order struct {
	ID    string `json:"id"`
	Items []Item `json:"items"`
}

// Rotator runs lane batches. *motion.Controller implements it.
type Rotator interface {
	RotateBatch(b motion.Batch) ([]stepper.Result, error)
	ZeroAllPins() error
	Capacity() int
}

// Params are the lane motion settings applied to every unit.
type Params struct {
	RotationsPerItem float64
	Speed            float64
	Direction        stepper.Direction
	Settle           time.Duration // pause after each batch
}

// Report summarizes a run.
type Report struct {
	OrderID   string      `json:"order_id"`
	Batches   int         `json:"batches"`
	Dispensed map[int]int `json:"dispensed"` // channel -> units
}

// Sequence contains the high-level dispense logic: it walks an order row
// by row and drops one unit from every pending lane of the row at a time.
type Sequence struct {
	motion Rotator
	grid   *geometry.Grid
	params Params
	sleep  func(time.Duration)
}

func NewSequence(m Rotator, g *geometry.Grid, p Params) *Sequence {
	return &Sequence{
		motion: m,
		grid:   g,
		params: p,
		sleep:  time.Sleep,
	}
}

// Schedule orders items by row, keeping the order's sequence within a row.
func Schedule(items []Item) []Item {
	out := append([]Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

// lane is a pending item resolved to its motor.
type lane struct {
	Item
	channel int
}

func (s *Sequence) plan(order Order) ([]lane, error) {
	seen := make(map[int]bool)
	var lanes []lane
	for _, it := range Schedule(order.Items) {
		ch, err := s.grid.Channel(it.Row, it.Column)
		if err != nil {
			return nil, err
		}
		if it.Quantity < 0 {
			return nil, fmt.Errorf("lane (row=%d, column=%d): quantity must be >= 0, got %d", it.Row, it.Column, it.Quantity)
		}
		if seen[ch] {
			return nil, fmt.Errorf("%w: row=%d column=%d", ErrDuplicateLane, it.Row, it.Column)
		}
		seen[ch] = true
		if it.Quantity > 0 {
			lanes = append(lanes, lane{Item: it, channel: ch})
		}
	}
	if len(lanes) == 0 {
		return nil, ErrEmptyOrder
	}
	return lanes, nil
}

// Validate checks an order against the lane grid without moving anything.
func (s *Sequence) Validate(order Order) error {
	_, err := s.plan(order)
	return err
}

// Run dispenses the order. It returns early if ctx is cancelled between
// two batches; a batch in progress always completes. Every pin is driven
// low before returning.
func (s *Sequence) Run(ctx context.Context, order Order) (Report, error) {
	rep := Report{OrderID: order.ID, Dispensed: make(map[int]int)}

	pending, err := s.plan(order)
	if err != nil {
		return rep, err
	}

	debug.Section("Dispense " + order.ID)
	total := 0
	for _, l := range pending {
		total += l.Quantity
	}
	debug.Value("Lanes", len(pending))
	debug.Value("Units", total)

	runErr := s.run(ctx, pending, &rep)
	if err := s.motion.ZeroAllPins(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if runErr != nil {
		debug.Error(runErr)
		return rep, runErr
	}
	debug.Summary(fmt.Sprintf("Order %s dispensed in %d batches", order.ID, rep.Batches))
	return rep, nil
}

func (s *Sequence) run(ctx context.Context, pending []lane, rep *Report) error {
	for len(pending) > 0 {
		row := pending[0].Row
		var current []int
		for i, l := range pending {
			if l.Row == row {
				current = append(current, i)
			}
		}
		debug.Live("Row %d: %d lanes pending", row, len(current))

		for start := 0; start < len(current); start += s.motion.Capacity() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			end := min(start+s.motion.Capacity(), len(current))
			batch := make(motion.Batch, 0, end-start)
			for _, i := range current[start:end] {
				batch = append(batch, stepper.Command{
					Channel:   pending[i].channel,
					Direction: s.params.Direction,
					Speed:     s.params.Speed,
					Rotations: s.params.RotationsPerItem,
				})
			}

			rep.Batches++
			debug.Step(rep.Batches, fmt.Sprintf("row %d, channels %v", row, batch.Channels()))
			if _, err := s.motion.RotateBatch(batch); err != nil {
				return fmt.Errorf("row %d: %w", row, err)
			}
			for _, i := range current[start:end] {
				pending[i].Quantity--
				rep.Dispensed[pending[i].channel]++
			}
			if s.params.Settle > 0 {
				s.sleep(s.params.Settle)
			}
		}

		kept := pending[:0]
		for _, l := range pending {
			if l.Quantity > 0 {
				kept = append(kept, l)
			}
		}
		pending = kept
	}
	return nil
}
