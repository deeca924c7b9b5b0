package motion

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/LaneGo/internal/debug"
	"github.com/cjeanneret/LaneGo/internal/hw/gpio"
	"github.com/cjeanneret/LaneGo/internal/hw/stepper"
)

var (
	ErrBatchLengthMismatch = errors.New("batch attribute lists differ in length")
	ErrBatchTooLarge       = errors.New("batch exceeds worker capacity")
	ErrDuplicateChannel    = errors.New("channel listed twice in batch")
)

// Batch is a set of commands run together. Channels must be distinct.
type Batch []stepper.Command

// NewBatch zips parallel attribute lists into a batch.
func NewBatch(channels []int, directions []stepper.Direction, speeds, rotations []float64) (Batch, error) {
	n := len(channels)
	if len(directions) != n || len(speeds) != n || len(rotations) != n {
		return nil, fmt.Errorf("%w: channels=%d directions=%d speeds=%d rotations=%d",
			ErrBatchLengthMismatch, n, len(directions), len(speeds), len(rotations))
	}
	b := make(Batch, n)
	for i := range b {
		b[i] = stepper.Command{
			Channel:   channels[i],
			Direction: directions[i],
			Speed:     speeds[i],
			Rotations: rotations[i],
		}
	}
	return b, nil
}

// Channels returns the channel of every command, in batch order.
func (b Batch) Channels() []int {
	out := make([]int, len(b))
	for i, cmd := range b {
		out[i] = cmd.Channel
	}
	return out
}

// BatchError aggregates the failures of one batch. Every other command of
// the batch ran to completion.
type BatchError struct {
	Errs []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d of batch failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error { return e.Errs }

// PinLister lists every configured output pin.
type PinLister interface {
	BoardPins() []int
}

// Controller runs rotation commands on the lane motors. It's the layer
// between business logic (dispense orders, web and console commands) and
// the step engine.
type Controller struct {
	engine   *stepper.Engine
	pins     PinLister
	gpio     gpio.Driver
	capacity int
}

// NewController creates a scheduler running at most capacity motors at once.
func NewController(engine *stepper.Engine, pins PinLister, g gpio.Driver, capacity int) *Controller {
	if capacity <= 0 {
		capacity = 1
	}
	return &Controller{
		engine:   engine,
		pins:     pins,
		gpio:     g,
		capacity: capacity,
	}
}

// Capacity returns the maximum batch size.
func (c *Controller) Capacity() int {
	return c.capacity
}

// Rotate runs a single command and blocks until the motor is released.
func (c *Controller) Rotate(cmd stepper.Command) (stepper.Result, error) {
	return c.engine.Rotate(cmd)
}

// Validate checks a batch without touching any pin.
func (c *Controller) Validate(b Batch) error {
	if len(b) > c.capacity {
		return fmt.Errorf("%w: %d commands, capacity %d", ErrBatchTooLarge, len(b), c.capacity)
	}
	seen := make(map[int]bool, len(b))
	for _, cmd := range b {
		if seen[cmd.Channel] {
			return fmt.Errorf("%w: %d", ErrDuplicateChannel, cmd.Channel)
		}
		seen[cmd.Channel] = true
	}
	for _, cmd := range b {
		if err := c.engine.Validate(cmd); err != nil {
			return err
		}
	}
	return nil
}

// RotateBatch runs every command of b concurrently and returns once all
// of them are done. An invalid batch is rejected before any pin is
// written. A failing motor does not stop the others; failures are
// returned together as a *BatchError. Results are in batch order.
func (c *Controller) RotateBatch(b Batch) ([]stepper.Result, error) {
	if err := c.Validate(b); err != nil {
		debug.Error(err)
		return nil, err
	}
	debug.Batch(len(b), c.capacity)

	results := make([]stepper.Result, len(b))
	errs := make([]error, len(b))

	var g errgroup.Group
	g.SetLimit(c.capacity)
	for i, cmd := range b {
		g.Go(func() error {
			results[i], errs[i] = c.engine.Rotate(cmd)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return results, &BatchError{Errs: failed}
	}
	return results, nil
}

// RotateLists is RotateBatch over parallel attribute lists.
func (c *Controller) RotateLists(channels []int, directions []stepper.Direction, speeds, rotations []float64) ([]stepper.Result, error) {
	b, err := NewBatch(channels, directions, speeds, rotations)
	if err != nil {
		debug.Error(err)
		return nil, err
	}
	return c.RotateBatch(b)
}

// ZeroAllPins drives every configured pin low. Every pin is tried even
// when some writes fail.
func (c *Controller) ZeroAllPins() error {
	debug.Section("Zero all pins")
	var errs []error
	for _, pin := range c.pins.BoardPins() {
		if err := c.gpio.WritePin(pin, gpio.Low); err != nil {
			errs = append(errs, fmt.Errorf("zero pin %d: %w", pin, err))
		}
	}
	return errors.Join(errs...)
}
