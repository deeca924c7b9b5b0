package geometry

import (
	"testing"

	"github.com/cjeanneret/LaneGo/internal/config"
	"github.com/google/go-cmp/cmp"
)

func newGridConfig(layout [][]int) *config.Config {
	return &config.Config{Lanes: config.LanesConfig{Layout: layout}}
}

func TestGrid_DispenserLayout(t *testing.T) {
	g := NewGrid(newGridConfig([][]int{{0, 3}, {1, 4}, {2, 5}}))

	if g.Rows() != 3 || g.Columns() != 2 {
		t.Fatalf("grid = %dx%d, want 3x2", g.Rows(), g.Columns())
	}

	cases := []struct {
		row, col, want int
	}{
		{1, 1, 0}, {1, 2, 3},
		{2, 1, 1}, {2, 2, 4},
		{3, 1, 2}, {3, 2, 5},
	}
	for _, tc := range cases {
		got, err := g.Channel(tc.row, tc.col)
		if err != nil {
			t.Fatalf("Channel(%d,%d): %v", tc.row, tc.col, err)
		}
		if got != tc.want {
			t.Errorf("Channel(%d,%d) = %d, want %d", tc.row, tc.col, got, tc.want)
		}
	}
}

func TestGrid_OutOfRange(t *testing.T) {
	g := NewGrid(newGridConfig([][]int{{0, 3}, {1, 4}, {2, 5}}))
	for _, rc := range [][2]int{{0, 1}, {1, 0}, {4, 1}, {1, 3}} {
		if _, err := g.Channel(rc[0], rc[1]); err == nil {
			t.Errorf("Channel(%d,%d): expected error", rc[0], rc[1])
		}
	}
	if got := g.RowChannels(9); got != nil {
		t.Errorf("RowChannels(9) = %v, want nil", got)
	}
}

func TestGrid_ParallelGroups(t *testing.T) {
	g := NewGrid(newGridConfig([][]int{{0, 3}, {1, 4}, {2, 5}}))
	want := [][]int{{0, 3}, {1, 4}, {2, 5}}
	if diff := cmp.Diff(want, g.ParallelGroups()); diff != "" {
		t.Errorf("ParallelGroups() (-want +got):\n%s", diff)
	}
}

func TestGrid_CopiesLayout(t *testing.T) {
	cfg := newGridConfig([][]int{{0, 1}})
	g := NewGrid(cfg)
	cfg.Lanes.Layout[0][0] = 7
	if ch, _ := g.Channel(1, 1); ch != 0 {
		t.Errorf("grid must not alias config layout, got channel %d", ch)
	}
}

func TestGrid_Empty(t *testing.T) {
	g := NewGrid(newGridConfig(nil))
	if g.Rows() != 0 || g.Columns() != 0 {
		t.Errorf("empty grid = %dx%d", g.Rows(), g.Columns())
	}
}
