// Package console runs line commands against the lane motors, from a
// terminal or a serial link.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/cjeanneret/LaneGo/internal/debug"
	"github.com/cjeanneret/LaneGo/internal/hw/stepper"
)

// ErrUnknownCommand is returned for an unrecognized command word.
var ErrUnknownCommand = errors.New("unknown command")

const usage = `commands:
  rotate <channel> <cw|ccw> <speed> <rotations>
  batch <channels> <directions> <speeds> <rotations>   (comma-separated lists)
  zero
  help
  quit`

// Machine runs motor commands. *motion.Controller implements it.
type Machine interface {
	Rotate(cmd stepper.Command) (stepper.Result, error)
	RotateLists(channels []int, directions []stepper.Direction, speeds, rotations []float64) ([]stepper.Result, error)
	ZeroAllPins() error
}

// Console reads commands from in and writes replies to out.
type Console struct {
	machine Machine
	in      io.Reader
	out     io.Writer
}

func New(m Machine, in io.Reader, out io.Writer) *Console {
	return &Console{machine: m, in: in, out: out}
}

// OpenSerial opens a serial port (8N1) for a remote console.
func OpenSerial(name string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	debug.Info("Console on serial port %s at %d baud", name, baud)
	return port, nil
}

// Run executes lines until "quit", end of input or ctx cancellation. A
// command in progress always completes.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	fmt.Fprintln(c.out, "LaneGo console, type help")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, err := c.Exec(line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Exec runs a single command line.
func (c *Console) Exec(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	debug.Verbose("console: %s", line)

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		fmt.Fprintln(c.out, "bye")
		return true, nil
	case "help", "?":
		fmt.Fprintln(c.out, usage)
		return false, nil
	case "zero":
		if err := c.machine.ZeroAllPins(); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "ok all pins low")
		return false, nil
	case "rotate":
		cmd, err := ParseRotate(fields[1:])
		if err != nil {
			return false, err
		}
		res, err := c.machine.Rotate(cmd)
		c.report([]stepper.Result{res})
		return false, err
	case "batch":
		channels, directions, speeds, rotations, err := ParseBatch(fields[1:])
		if err != nil {
			return false, err
		}
		results, err := c.machine.RotateLists(channels, directions, speeds, rotations)
		c.report(results)
		return false, err
	}
	return false, fmt.Errorf("%w %q (try help)", ErrUnknownCommand, fields[0])
}

func (c *Console) report(results []stepper.Result) {
	for _, r := range results {
		fmt.Fprintf(c.out, "channel %d: %d steps, %s\n", r.Channel, r.Steps, r.State)
	}
}

// ParseRotate parses "<channel> <cw|ccw> <speed> <rotations>".
func ParseRotate(args []string) (stepper.Command, error) {
	if len(args) != 4 {
		return stepper.Command{}, fmt.Errorf("rotate takes 4 arguments, got %d", len(args))
	}
	ch, err := strconv.Atoi(args[0])
	if err != nil {
		return stepper.Command{}, fmt.Errorf("channel: %w", err)
	}
	dir, err := stepper.ParseDirection(strings.ToLower(args[1]))
	if err != nil {
		return stepper.Command{}, err
	}
	speed, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return stepper.Command{}, fmt.Errorf("speed: %w", err)
	}
	rot, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return stepper.Command{}, fmt.Errorf("rotations: %w", err)
	}
	return stepper.Command{Channel: ch, Direction: dir, Speed: speed, Rotations: rot}, nil
}

// ParseBatch parses four comma-separated lists. Lengths are not compared
// here; the scheduler rejects mismatched lists.
func ParseBatch(args []string) ([]int, []stepper.Direction, []float64, []float64, error) {
	if len(args) != 4 {
		return nil, nil, nil, nil, fmt.Errorf("batch takes 4 lists, got %d", len(args))
	}
	var (
		channels   []int
		directions []stepper.Direction
		speeds     []float64
		rotations  []float64
	)
	for _, s := range strings.Split(args[0], ",") {
		ch, err := strconv.Atoi(s)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("channels: %w", err)
		}
		channels = append(channels, ch)
	}
	for _, s := range strings.Split(args[1], ",") {
		d, err := stepper.ParseDirection(strings.ToLower(s))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		directions = append(directions, d)
	}
	speeds, err := parseFloats("speeds", args[2])
	if err != nil {
		return nil, nil, nil, nil, err
	}
	rotations, err = parseFloats("rotations", args[3])
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return channels, directions, speeds, rotations, nil
}

func parseFloats(name, list string) ([]float64, error) {
	var out []float64
	for _, s := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, v)
	}
	return out, nil
}
