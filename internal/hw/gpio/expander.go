package gpio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cjeanneret/LaneGo/internal/debug"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/mcp23xxx"
	"periph.io/x/devices/v3/pcf857x"
	"periph.io/x/devices/v3/tca95xx"
	"periph.io/x/host/v3"
)

// Expander chip types accepted in board configuration.
const (
	MCP23017 = "mcp23017"
	MCP23008 = "mcp23008"
	PCF8574  = "pcf8574"
	PCF8575  = "pcf8575"
	TCA9555  = "tca9555"
	TCA9535  = "tca9535"
	TCA9534  = "tca9534"
)

// IsExpander reports whether kind names a supported I2C expander chip.
func IsExpander(kind string) bool {
	switch strings.ToLower(kind) {
	case MCP23017, MCP23008, PCF8574, PCF8575, TCA9555, TCA9535, TCA9534:
		return true
	}
	return false
}

// OpenI2C initializes the periph host drivers and opens an I2C bus.
// An empty name opens the first available bus.
func OpenI2C(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", name, err)
	}
	debug.Verbose("I2C bus opened: %s", bus)
	return bus, nil
}

// ExpanderDriver exposes the pins of one I/O expander board as offsets
// 0..n-1. Pins of the same chip share output latches that are updated by
// read-modify-write, so writes are serialized per board.
type ExpanderDriver struct {
	name string
	mu   sync.Mutex
	pins []pgpio.PinIO
}

// NewExpander opens the expander of the given kind at addr on bus.
// Multi-port chips are flattened port by port (port A pins 0-7, port B 8-15).
func NewExpander(bus i2c.Bus, kind string, addr uint16) (*ExpanderDriver, error) {
	var pins []pgpio.PinIO
	switch strings.ToLower(kind) {
	case MCP23017, MCP23008:
		variant := mcp23xxx.MCP23017
		if strings.ToLower(kind) == MCP23008 {
			variant = mcp23xxx.MCP23008
		}
		dev, err := mcp23xxx.NewI2C(bus, variant, addr)
		if err != nil {
			return nil, fmt.Errorf("%s@%#x: %w", kind, addr, err)
		}
		for _, port := range dev.Pins {
			for _, p := range port {
				pins = append(pins, p)
			}
		}
	case PCF8574, PCF8575:
		variant := pcf857x.PCF8574
		if strings.ToLower(kind) == PCF8575 {
			variant = pcf857x.PCF8575
		}
		dev, err := pcf857x.New(bus, addr, variant)
		if err != nil {
			return nil, fmt.Errorf("%s@%#x: %w", kind, addr, err)
		}
		pins = append(pins, dev.Pins...)
	case TCA9555, TCA9535, TCA9534:
		variant := tca95xx.Variant(strings.ToUpper(kind))
		dev, err := tca95xx.New(bus, variant, addr)
		if err != nil {
			return nil, fmt.Errorf("%s@%#x: %w", kind, addr, err)
		}
		for _, port := range dev.Pins {
			for _, p := range port {
				pins = append(pins, p)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported expander type: %s", kind)
	}

	debug.Info("Expander %s@%#x ready (%d pins)", kind, addr, len(pins))
	return NewExpanderFromPins(fmt.Sprintf("%s@%#x", kind, addr), pins), nil
}

// NewExpanderFromPins wraps already opened periph pins.
func NewExpanderFromPins(name string, pins []pgpio.PinIO) *ExpanderDriver {
	return &ExpanderDriver{name: name, pins: pins}
}

// Len returns the number of pins on the board.
func (e *ExpanderDriver) Len() int {
	return len(e.pins)
}

func (e *ExpanderDriver) pin(offset int) (pgpio.PinIO, error) {
	if offset < 0 || offset >= len(e.pins) {
		return nil, fmt.Errorf("%s: pin offset %d out of range [0,%d): %w", e.name, offset, len(e.pins), ErrPinNotMapped)
	}
	return e.pins[offset], nil
}

func (e *ExpanderDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin "+e.name, pin, mode)
	p, err := e.pin(pin)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch mode {
	case Input:
		return p.In(pgpio.PullNoChange, pgpio.NoEdge)
	case Output:
		return p.Out(pgpio.Low)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
}

func (e *ExpanderDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin "+e.name, pin, level)
	p, err := e.pin(pin)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := p.Out(pgpio.Level(level)); err != nil {
		return fmt.Errorf("%s pin %d: %w", e.name, pin, err)
	}
	return nil
}

func (e *ExpanderDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin "+e.name, pin, nil)
	p, err := e.pin(pin)
	if err != nil {
		return Low, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Level(p.Read()), nil
}

// Close drives every pin low. The bus itself is owned by the caller.
func (e *ExpanderDriver) Close() error {
	debug.Trace("GPIO Close (%s)", e.name)
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for i, p := range e.pins {
		if err := p.Out(pgpio.Low); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s pin %d: %w", e.name, i, err)
		}
	}
	return firstErr
}
