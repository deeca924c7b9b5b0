package stepper

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/LaneGo/internal/debug"
	"github.com/cjeanneret/LaneGo/internal/hw/address"
	"github.com/cjeanneret/LaneGo/internal/hw/gpio"
)

var (
	ErrInvalidDirection = errors.New("invalid direction")
	ErrHardwareWrite    = errors.New("hardware write failure")
)

// Direction of rotation. The zero value is not a valid direction.
type Direction int

const (
	Clockwise Direction = iota + 1
	CounterClockwise
)

// ParseDirection accepts "cw" and "ccw".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "cw":
		return Clockwise, nil
	case "ccw":
		return CounterClockwise, nil
	}
	return 0, fmt.Errorf("%w: %q (want cw or ccw)", ErrInvalidDirection, s)
}

// Valid reports whether d is Clockwise or CounterClockwise.
func (d Direction) Valid() bool {
	return d == Clockwise || d == CounterClockwise
}

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// State of one rotation.
type State int

const (
	Idle State = iota
	Stepping
	Resetting
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Stepping:
		return "stepping"
	case Resetting:
		return "resetting"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{Idle, Stepping, Resetting, Done} {
		if string(b) == v.String() {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Command is one motor motion request.
type Command struct {
	Channel   int       `json:"channel"`
	Direction Direction `json:"direction"`
	Speed     float64   `json:"speed"`     // 0.0 slowest .. 1.0 fastest
	Rotations float64   `json:"rotations"` // full turns, fractional allowed
}

// Result describes what a rotation did.
type Result struct {
	Channel int   `json:"channel"`
	Steps   int   `json:"steps"` // phase vectors written
	State   State `json:"state"`
}

// WriteError is a failed pin write while driving a motor.
type WriteError struct {
	Channel int
	Pin     int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("channel %d: write pin %d: %v", e.Channel, e.Pin, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is makes every WriteError match ErrHardwareWrite.
func (e *WriteError) Is(target error) bool { return target == ErrHardwareWrite }

// Resolver maps a channel to its pins.
type Resolver interface {
	Resolve(channel int) (address.PinAddress, error)
}

// StepCounter converts turns to steps.
type StepCounter interface {
	StepsFromRotations(rotations float64) (int, error)
}

// DelayConverter converts a speed to the delay between steps.
type DelayConverter interface {
	Delay(speed float64) (time.Duration, error)
}

// Observer is notified of every state transition.
type Observer func(channel int, from, to State)

// Config wires an Engine.
type Config struct {
	Table    Table
	Resolver Resolver
	Steps    StepCounter
	Delays   DelayConverter
	Sleep    func(time.Duration) // defaults to time.Sleep
	Observer Observer            // defaults to debug logging
}

// Engine drives motors through the step table. It holds no per-rotation
// state, so one Engine serves concurrent rotations on distinct channels.
type Engine struct {
	gpio     gpio.Driver
	table    Table
	resolver Resolver
	steps    StepCounter
	delays   DelayConverter
	sleep    func(time.Duration)
	observe  Observer
}

// NewEngine creates a rotation engine writing through g.
func NewEngine(g gpio.Driver, cfg Config) *Engine {
	e := &Engine{
		gpio:     g,
		table:    cfg.Table,
		resolver: cfg.Resolver,
		steps:    cfg.Steps,
		delays:   cfg.Delays,
		sleep:    cfg.Sleep,
		observe:  cfg.Observer,
	}
	if e.table.Len() == 0 {
		e.table = HalfStep8
	}
	if e.sleep == nil {
		e.sleep = time.Sleep
	}
	if e.observe == nil {
		e.observe = func(ch int, from, to State) {
			debug.State(ch, from.String(), to.String())
		}
	}
	return e
}

// Table returns the step table in use.
func (e *Engine) Table() Table {
	return e.table
}

// plan is a validated command.
type plan struct {
	addr  address.PinAddress
	delay time.Duration
	steps int
}

func (e *Engine) prepare(cmd Command) (plan, error) {
	if !cmd.Direction.Valid() {
		return plan{}, fmt.Errorf("channel %d: %w: %v", cmd.Channel, ErrInvalidDirection, cmd.Direction)
	}
	addr, err := e.resolver.Resolve(cmd.Channel)
	if err != nil {
		return plan{}, err
	}
	delay, err := e.delays.Delay(cmd.Speed)
	if err != nil {
		return plan{}, fmt.Errorf("channel %d: %w", cmd.Channel, err)
	}
	steps, err := e.steps.StepsFromRotations(cmd.Rotations)
	if err != nil {
		return plan{}, fmt.Errorf("channel %d: %w", cmd.Channel, err)
	}
	return plan{addr: addr, delay: delay, steps: steps}, nil
}

// Validate checks a command without touching any pin.
func (e *Engine) Validate(cmd Command) error {
	_, err := e.prepare(cmd)
	return err
}

// Rotate runs one command to completion. Invalid commands change no pin.
// Once stepping has started, the motor pins are always driven low before
// returning, including after a write failure. Writes are never retried.
func (e *Engine) Rotate(cmd Command) (Result, error) {
	res := Result{Channel: cmd.Channel, State: Idle}

	p, err := e.prepare(cmd)
	if err != nil {
		e.enter(&res, Done)
		return res, err
	}

	debug.Move(cmd.Channel, p.steps, cmd.Direction.String())
	debug.Verbose("channel %d: base pin %d, delay %v, table %s", cmd.Channel, p.addr.Base, p.delay, e.table.Name())

	pins := p.addr.Pins()
	e.enter(&res, Stepping)
	var stepErr error
	for j := 0; j < p.steps; j++ {
		phase := e.table.At(StepIndex(j, p.steps, cmd.Direction))
		if debug.IsEnabled(debug.LevelTrace) {
			debug.Trace("channel %d step %d/%d phase %v", cmd.Channel, j+1, p.steps, phase)
		}
		if stepErr = e.writePhase(cmd.Channel, pins, phase); stepErr != nil {
			break
		}
		res.Steps++
		e.sleep(p.delay)
	}

	e.enter(&res, Resetting)
	resetErr := e.release(cmd.Channel, pins)
	e.enter(&res, Done)

	if stepErr != nil || resetErr != nil {
		err := errors.Join(stepErr, resetErr)
		debug.Error(err)
		return res, err
	}
	return res, nil
}

func (e *Engine) enter(res *Result, to State) {
	e.observe(res.Channel, res.State, to)
	res.State = to
}

func (e *Engine) writePhase(channel int, pins []int, phase Phase) error {
	for i, pin := range pins {
		if err := e.gpio.WritePin(pin, phase[i]); err != nil {
			return &WriteError{Channel: channel, Pin: pin, Err: err}
		}
	}
	return nil
}

// release drives every pin low, trying all of them even if one fails.
func (e *Engine) release(channel int, pins []int) error {
	var errs []error
	for _, pin := range pins {
		if err := e.gpio.WritePin(pin, gpio.Low); err != nil {
			errs = append(errs, &WriteError{Channel: channel, Pin: pin, Err: err})
		}
	}
	return errors.Join(errs...)
}
