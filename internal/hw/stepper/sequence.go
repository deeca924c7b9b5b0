package stepper

import (
	"fmt"

	"github.com/cjeanneret/LaneGo/internal/hw/gpio"
)

// Phase is the level pattern applied to the 4 coil-drive pins for one step.
type Phase [4]gpio.Level

const (
	lo = gpio.Low
	hi = gpio.High
)

// Table is a cyclic step sequence.
type Table struct {
	name string
	rows []Phase
}

var (
	// HalfStep8 is the lane motor table (12V NEMA-17 through the expander boards).
	HalfStep8 = Table{name: "half8", rows: []Phase{
		{hi, lo, hi, lo},
		{lo, lo, hi, lo},
		{lo, hi, hi, lo},
		{lo, hi, lo, lo},
		{lo, hi, lo, hi},
		{lo, lo, lo, hi},
		{hi, lo, lo, hi},
		{hi, lo, lo, lo},
	}}

	// FullStep8 is the 8-row table of the 28BYJ-48 lane motors.
	FullStep8 = Table{name: "full8", rows: []Phase{
		{hi, lo, lo, hi},
		{hi, lo, lo, lo},
		{hi, hi, lo, lo},
		{lo, hi, lo, lo},
		{lo, hi, hi, lo},
		{lo, lo, hi, lo},
		{lo, lo, hi, hi},
		{lo, lo, lo, hi},
	}}

	// Coarse4 is the 4-row table (fewer, larger steps).
	Coarse4 = Table{name: "coarse4", rows: []Phase{
		{hi, lo, lo, lo},
		{hi, hi, lo, lo},
		{lo, hi, hi, lo},
		{lo, lo, hi, hi},
	}}
)

// NewTable builds a custom table. It must have at least one row.
func NewTable(name string, rows []Phase) (Table, error) {
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("sequence table %q has no rows", name)
	}
	return Table{name: name, rows: append([]Phase(nil), rows...)}, nil
}

// TableByName returns a built-in table.
func TableByName(name string) (Table, error) {
	for _, t := range []Table{HalfStep8, FullStep8, Coarse4} {
		if t.name == name {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("unknown sequence table %q", name)
}

// Name returns the table name.
func (t Table) Name() string { return t.name }

// Len returns the number of rows.
func (t Table) Len() int { return len(t.rows) }

// At returns the row for any step index; the index wraps with a
// non-negative remainder.
func (t Table) At(index int) Phase {
	n := len(t.rows)
	i := index % n
	if i < 0 {
		i += n
	}
	return t.rows[i]
}

// StepIndex returns the table index driven at iteration j of a total-step
// rotation. Clockwise counts up from 0, counter-clockwise counts down from
// total-1: the same rows are visited in reverse order.
func StepIndex(j, total int, dir Direction) int {
	if dir == CounterClockwise {
		return total - 1 - j
	}
	return j
}
