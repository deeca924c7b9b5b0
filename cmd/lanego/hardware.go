package main

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"

	"github.com/cjeanneret/LaneGo/internal/config"
	"github.com/cjeanneret/LaneGo/internal/debug"
	"github.com/cjeanneret/LaneGo/internal/hw/address"
	"github.com/cjeanneret/LaneGo/internal/hw/gpio"
	"github.com/cjeanneret/LaneGo/internal/hw/stepper"
	"github.com/cjeanneret/LaneGo/internal/logic/dispense"
	"github.com/cjeanneret/LaneGo/internal/logic/geometry"
	"github.com/cjeanneret/LaneGo/internal/logic/motion"
	"github.com/cjeanneret/LaneGo/internal/web"
)

// hardware owns the pin space and the shared handles behind it.
type hardware struct {
	space   *gpio.PinSpace
	closers []io.Closer // I2C bus, host GPIO; closed after the boards
}

func (h *hardware) Close() error {
	errs := []error{h.space.Close()}
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openHardware builds one pin-space board per configured board.
func openHardware(cfg *config.Config) (_ *hardware, err error) {
	h := &hardware{}
	defer func() {
		if err != nil {
			for i := len(h.closers) - 1; i >= 0; i-- {
				_ = h.closers[i].Close()
			}
		}
	}()

	var (
		boards []gpio.Board
		host   gpio.Driver
		bus    i2c.BusCloser
	)
	for _, bc := range cfg.Boards {
		kind := bc.Type
		if cfg.Defaults.MockGPIO {
			kind = config.BoardMock
		}

		var drv gpio.Driver
		switch {
		case kind == config.BoardMock:
			drv = &gpio.MockDriver{}

		case kind == config.BoardRPi:
			if host == nil {
				if host, err = gpio.NewDriver(false); err != nil {
					return nil, fmt.Errorf("board %s: %w", bc.Name, err)
				}
				h.closers = append(h.closers, host)
			}
			drv = gpio.NewRemapDriver(host, bc.GPIOPins[:bc.Pins])

		case gpio.IsExpander(kind):
			if bus == nil {
				if bus, err = gpio.OpenI2C(cfg.Defaults.I2CBus); err != nil {
					return nil, fmt.Errorf("board %s: %w", bc.Name, err)
				}
				h.closers = append(h.closers, bus)
			}
			exp, err := gpio.NewExpander(bus, kind, bc.Address)
			if err != nil {
				return nil, fmt.Errorf("board %s: %w", bc.Name, err)
			}
			if bc.Pins > exp.Len() {
				return nil, fmt.Errorf("board %s: pins=%d but %s has %d", bc.Name, bc.Pins, kind, exp.Len())
			}
			drv = exp

		default:
			return nil, fmt.Errorf("board %s: unsupported type %q", bc.Name, kind)
		}

		debug.Verbose("board %s: %s, pins %d..%d", bc.Name, kind, bc.PinBase, bc.PinBase+bc.Pins-1)
		boards = append(boards, gpio.Board{Name: bc.Name, Base: bc.PinBase, Pins: bc.Pins, Driver: drv})
	}

	space, err := gpio.NewPinSpace(boards...)
	if err != nil {
		return nil, err
	}
	h.space = space
	if err := space.SetupOutputs(); err != nil {
		_ = space.Close()
		return nil, err
	}
	return h, nil
}

// addressLayout derives the motor address layout from the boards.
func addressLayout(cfg *config.Config) address.Layout {
	boards := make([]address.Board, len(cfg.Boards))
	for i, b := range cfg.Boards {
		boards[i] = address.Board{Name: b.Name, Base: b.PinBase, Pins: b.Pins}
	}
	return address.Layout{
		Boards:         boards,
		MotorsPerBoard: cfg.Motors.MotorsPerBoard,
		PinsPerMotor:   cfg.Motors.PinsPerMotor,
	}
}

// machine is the assembled dispenser.
type machine struct {
	hw         *hardware
	resolver   *address.Resolver
	engine     *stepper.Engine
	controller *motion.Controller
	sequence   *dispense.Sequence
	grid       *geometry.Grid
}

func buildMachine(cfg *config.Config) (*machine, error) {
	debug.Step(1, "Opening boards")
	hw, err := openHardware(cfg)
	if err != nil {
		return nil, err
	}

	debug.Step(2, "Resolving motor addresses")
	resolver, err := address.New(addressLayout(cfg))
	if err != nil {
		_ = hw.Close()
		return nil, err
	}
	table, err := stepper.TableByName(cfg.Motors.Sequence)
	if err != nil {
		_ = hw.Close()
		return nil, err
	}
	dir, err := stepper.ParseDirection(cfg.Lanes.Direction)
	if err != nil {
		_ = hw.Close()
		return nil, err
	}

	debug.Step(3, "Creating rotation engine and scheduler")
	engine := stepper.NewEngine(hw.space, stepper.Config{
		Table:    table,
		Resolver: resolver,
		Steps:    geometry.NewStepsCalculator(cfg),
		Delays:   geometry.NewSpeedConverter(cfg),
	})
	ctrl := motion.NewController(engine, resolver, hw.space, cfg.Motors.MaxWorkers)
	grid := geometry.NewGrid(cfg)
	seq := dispense.NewSequence(ctrl, grid, dispense.Params{
		RotationsPerItem: cfg.Lanes.RotationsPerItem,
		Speed:            cfg.Lanes.Speed,
		Direction:        dir,
		Settle:           cfg.Settle(),
	})

	debug.Value("Channels", resolver.Channels())
	debug.Value("Workers", ctrl.Capacity())
	debug.Value("Sequence", table.Name())
	return &machine{
		hw:         hw,
		resolver:   resolver,
		engine:     engine,
		controller: ctrl,
		sequence:   seq,
		grid:       grid,
	}, nil
}

func (m *machine) Close() error {
	return errors.Join(m.controller.ZeroAllPins(), m.hw.Close())
}

func (m *machine) info(cfg *config.Config) web.Info {
	return web.Info{
		Channels:         m.resolver.Channels(),
		Capacity:         m.controller.Capacity(),
		StepsPerRev:      cfg.Motors.StepsPerRev,
		Sequence:         m.engine.Table().Name(),
		Layout:           m.grid.ParallelGroups(),
		RotationsPerItem: cfg.Lanes.RotationsPerItem,
		Speed:            cfg.Lanes.Speed,
		Direction:        cfg.Lanes.Direction,
	}
}
