package geometry

import (
	"fmt"

	"github.com/cjeanneret/LaneGo/internal/config"
)

// Grid is the physical arrangement of item lanes: rows stacked vertically,
// columns side by side. Lanes of the same row sit on different boards and
// may run together.
//
//	[0] [3]
//	[1] [4]
//	[2] [5]
type Grid struct {
	layout [][]int
}

// NewGrid builds the lane grid from configuration.
func NewGrid(cfg *config.Config) *Grid {
	layout := make([][]int, len(cfg.Lanes.Layout))
	for r, row := range cfg.Lanes.Layout {
		layout[r] = append([]int(nil), row...)
	}
	return &Grid{layout: layout}
}

// Rows returns the number of lane rows.
func (g *Grid) Rows() int {
	return len(g.layout)
}

// Columns returns the number of lane columns.
func (g *Grid) Columns() int {
	if len(g.layout) == 0 {
		return 0
	}
	return len(g.layout[0])
}

// Channel returns the motor channel of the lane at (row, column), both 1-based.
func (g *Grid) Channel(row, column int) (int, error) {
	if row < 1 || row > g.Rows() || column < 1 || column > g.Columns() {
		return 0, fmt.Errorf("lane (row=%d, column=%d) outside %dx%d grid", row, column, g.Rows(), g.Columns())
	}
	return g.layout[row-1][column-1], nil
}

// RowChannels returns the channels of one row (1-based).
func (g *Grid) RowChannels(row int) []int {
	if row < 1 || row > g.Rows() {
		return nil
	}
	return append([]int(nil), g.layout[row-1]...)
}

// ParallelGroups returns, row by row, the channels allowed to run together.
func (g *Grid) ParallelGroups() [][]int {
	groups := make([][]int, g.Rows())
	for r := range groups {
		groups[r] = g.RowChannels(r + 1)
	}
	return groups
}
