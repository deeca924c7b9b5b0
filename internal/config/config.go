package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// Board types that are not I2C expanders.
const (
	BoardMock = "mock" // in-memory pins (development)
	BoardRPi  = "rpio" // host GPIO pins listed in gpio_pins
)

// Expander board types.
var expanderTypes = map[string]bool{
	"mcp23017": true,
	"mcp23008": true,
	"pcf8574":  true,
	"pcf8575":  true,
	"tca9555":  true,
	"tca9535":  true,
	"tca9534":  true,
}

// Speed policies for speed values outside [0, 1].
const (
	SpeedClamp  = "clamp"
	SpeedReject = "reject"
)

// Sequence table names.
const (
	SequenceHalf8   = "half8"
	SequenceFull8   = "full8"
	SequenceCoarse4 = "coarse4"
)

// BoardConfig describes one block of output pins (usually an I/O expander).
type BoardConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`      // mock, rpio, mcp23017, mcp23008, pcf8574, pcf8575, tca9555, tca9535, tca9534
	Address  uint16 `yaml:"address"`   // I2C address (expanders only), e.g. 0x20
	PinBase  int    `yaml:"pin_base"`  // first logical pin number of the board (e.g. 100)
	Pins     int    `yaml:"pins"`      // pins used on the board (default 16, or len(gpio_pins))
	GPIOPins []int  `yaml:"gpio_pins"` // BCM pins for rpio boards, in offset order
}

// MotorsConfig holds the stepper parameters shared by every lane motor.
type MotorsConfig struct {
	MotorsPerBoard int    `yaml:"motors_per_board"` // default 3
	PinsPerMotor   int    `yaml:"pins_per_motor"`   // always 4
	StepsPerRev    int    `yaml:"steps_per_rev"`    // default 400 (NEMA-17 half stepping)
	Sequence       string `yaml:"sequence"`         // half8 (default), full8, coarse4
	MinDelayMs     int    `yaml:"min_delay_ms"`     // delay between steps at speed 1.0 (default 1)
	MaxDelayMs     int    `yaml:"max_delay_ms"`     // delay between steps at speed 0.0 (default 100)
	MaxWorkers     int    `yaml:"max_workers"`      // motors allowed to run at once (default 3)
	SpeedPolicy    string `yaml:"speed_policy"`     // clamp (default) or reject
}

// LanesConfig describes the item lanes of the dispenser.
type LanesConfig struct {
	Layout           [][]int `yaml:"layout"`             // [row][column] -> channel, default one column per board
	RotationsPerItem float64 `yaml:"rotations_per_item"` // turns to push one item out (default 6)
	Speed            float64 `yaml:"speed"`              // lane speed, 0 slowest (default 1.0 when absent)
	Direction        string  `yaml:"direction"`          // cw (default) or ccw
	SettleMs         int     `yaml:"settle_ms"`          // pause after each drop so items can fall (default 1000, negative disables)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int    `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool   `yaml:"mock_gpio"`   // force mock pins for every board (dev/test)
	I2CBus     string `yaml:"i2c_bus"`     // I2C bus name, empty = first available
}

// Config aggregates all application configuration.
type Config struct {
	Boards   []BoardConfig  `yaml:"boards"`
	Motors   MotorsConfig   `yaml:"motors"`
	Lanes    LanesConfig    `yaml:"lanes"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path points to a .yaml file inside a
// "configs" directory and does not try to escape it.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	// Keys whose zero value is meaningful get their default before decoding.
	cfg := Config{Lanes: LanesConfig{Speed: 1.0}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	for i := range c.Boards {
		b := &c.Boards[i]
		b.Type = strings.ToLower(b.Type)
		if b.Name == "" {
			b.Name = fmt.Sprintf("board%d", i)
		}
		if b.Pins <= 0 {
			if b.Type == BoardRPi {
				b.Pins = len(b.GPIOPins)
			} else {
				b.Pins = 16
			}
		}
	}

	m := &c.Motors
	if m.MotorsPerBoard <= 0 {
		m.MotorsPerBoard = 3
	}
	if m.PinsPerMotor <= 0 {
		m.PinsPerMotor = 4
	}
	if m.StepsPerRev <= 0 {
		m.StepsPerRev = 400
	}
	if m.Sequence == "" {
		m.Sequence = SequenceHalf8
	}
	if m.MinDelayMs <= 0 {
		m.MinDelayMs = 1
	}
	if m.MaxDelayMs <= 0 {
		m.MaxDelayMs = 100
	}
	if m.MaxWorkers <= 0 {
		m.MaxWorkers = 3
	}
	if m.SpeedPolicy == "" {
		m.SpeedPolicy = SpeedClamp
	}

	l := &c.Lanes
	if len(l.Layout) == 0 {
		l.Layout = c.defaultLayout()
	}
	if l.RotationsPerItem <= 0 {
		l.RotationsPerItem = 6
	}
	if l.Direction == "" {
		l.Direction = "cw"
	}
	if l.SettleMs < 0 {
		l.SettleMs = 0
	} else if l.SettleMs == 0 {
		l.SettleMs = 1000
	}
	return nil
}

// Validate checks cross-field constraints. Defaults must already be applied.
func (c *Config) Validate() error {
	if len(c.Boards) == 0 {
		return errors.New("boards: at least one board is required")
	}
	bcmOwner := make(map[int]string)
	addrOwner := make(map[uint16]string)
	for i, b := range c.Boards {
		switch {
		case b.Type == BoardMock:
		case b.Type == BoardRPi:
			if len(b.GPIOPins) == 0 {
				return fmt.Errorf("boards[%d] (%s): rpio board requires gpio_pins", i, b.Name)
			}
			if b.Pins > len(b.GPIOPins) {
				return fmt.Errorf("boards[%d] (%s): pins=%d exceeds %d gpio_pins", i, b.Name, b.Pins, len(b.GPIOPins))
			}
			for _, bcm := range b.GPIOPins {
				if owner, ok := bcmOwner[bcm]; ok {
					return fmt.Errorf("boards[%d] (%s): gpio pin %d already used by %s", i, b.Name, bcm, owner)
				}
				bcmOwner[bcm] = b.Name
			}
		case expanderTypes[b.Type]:
			if b.Address == 0 {
				return fmt.Errorf("boards[%d] (%s): expander requires an I2C address", i, b.Name)
			}
			if owner, ok := addrOwner[b.Address]; ok {
				return fmt.Errorf("boards[%d] (%s): I2C address %#x already used by %s", i, b.Name, b.Address, owner)
			}
			addrOwner[b.Address] = b.Name
		default:
			return fmt.Errorf("boards[%d] (%s): unsupported type %q", i, b.Name, b.Type)
		}
		if b.PinBase < 0 {
			return fmt.Errorf("boards[%d] (%s): pin_base must be >= 0, got %d", i, b.Name, b.PinBase)
		}
	}

	m := c.Motors
	if m.PinsPerMotor != 4 {
		return fmt.Errorf("motors.pins_per_motor must be 4, got %d", m.PinsPerMotor)
	}
	switch m.Sequence {
	case SequenceHalf8, SequenceFull8, SequenceCoarse4:
	default:
		return fmt.Errorf("motors.sequence must be one of half8, full8, coarse4, got %q", m.Sequence)
	}
	if m.MinDelayMs > m.MaxDelayMs {
		return fmt.Errorf("motors.min_delay_ms (%d) must be <= max_delay_ms (%d)", m.MinDelayMs, m.MaxDelayMs)
	}
	if m.SpeedPolicy != SpeedClamp && m.SpeedPolicy != SpeedReject {
		return fmt.Errorf("motors.speed_policy must be clamp or reject, got %q", m.SpeedPolicy)
	}

	l := c.Lanes
	if math.IsNaN(l.Speed) || l.Speed < 0 || l.Speed > 1 {
		return fmt.Errorf("lanes.speed must be in [0, 1], got %g", l.Speed)
	}
	if math.IsNaN(l.RotationsPerItem) || math.IsInf(l.RotationsPerItem, 0) {
		return fmt.Errorf("lanes.rotations_per_item must be finite, got %g", l.RotationsPerItem)
	}
	if l.Direction != "cw" && l.Direction != "ccw" {
		return fmt.Errorf("lanes.direction must be cw or ccw, got %q", l.Direction)
	}
	channels := c.Channels()
	seen := make(map[int]bool)
	width := len(l.Layout[0])
	for r, row := range l.Layout {
		if len(row) == 0 || len(row) != width {
			return fmt.Errorf("lanes.layout row %d has %d columns, want %d", r+1, len(row), width)
		}
		for _, ch := range row {
			if ch < 0 || ch >= channels {
				return fmt.Errorf("lanes.layout channel %d not in [0,%d)", ch, channels)
			}
			if seen[ch] {
				return fmt.Errorf("lanes.layout channel %d listed twice", ch)
			}
			seen[ch] = true
		}
	}
	return nil
}

// defaultLayout puts each board in its own column, one row per motor slot:
// two boards of three motors give [[0,3],[1,4],[2,5]].
func (c *Config) defaultLayout() [][]int {
	per := c.Motors.MotorsPerBoard
	layout := make([][]int, per)
	for r := range layout {
		layout[r] = make([]int, len(c.Boards))
		for b := range c.Boards {
			layout[r][b] = b*per + r
		}
	}
	return layout
}

// Channels returns the number of addressable motors.
func (c *Config) Channels() int {
	return len(c.Boards) * c.Motors.MotorsPerBoard
}

// MinDelay returns the step delay at full speed.
func (c *Config) MinDelay() time.Duration {
	return time.Duration(c.Motors.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the step delay at zero speed.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Motors.MaxDelayMs) * time.Millisecond
}

// Settle returns the pause after each lane batch of a dispense run.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Lanes.SettleMs) * time.Millisecond
}

// ClampSpeed reports whether out-of-range speeds are clamped instead of rejected.
func (c *Config) ClampSpeed() bool {
	return c.Motors.SpeedPolicy != SpeedReject
}
