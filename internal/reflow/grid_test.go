package reflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridCellsRowMajor(t *testing.T) {
	cells := GridCells(400, 300, 2, 2)
	require.Len(t, cells, 4)

	assert.Equal(t, Cell{Row: 0, Col: 0, Rect: Rect{X: -100, Y: -75, Width: 200, Height: 150}}, cells[0])
	assert.Equal(t, Cell{Row: 0, Col: 1, Rect: Rect{X: 100, Y: -75, Width: 200, Height: 150}}, cells[1])
	assert.Equal(t, Cell{Row: 1, Col: 0, Rect: Rect{X: -100, Y: 75, Width: 200, Height: 150}}, cells[2])
	assert.Equal(t, 3, cells[3].ZIndex(2))
	assert.Nil(t, GridCells(400, 300, 0, 2))
}

func TestGridFits(t *testing.T) {
	assert.True(t, GridFits(1, 1))
	assert.True(t, GridFits(100, 100))
	assert.True(t, GridFits(1, MaxGridCells))
	assert.False(t, GridFits(0, 3))
	assert.False(t, GridFits(101, 100))
	assert.False(t, GridFits(1<<31, 1<<31), "the product must not overflow")
	assert.Nil(t, GridCells(400, 300, 1<<31, 1<<31))
}

func TestCellOfClampsOutsidePoints(t *testing.T) {
	row, col := CellOf(-1000, 1000, 400, 300, 2, 2)
	assert.Equal(t, 1, row)
	assert.Equal(t, 0, col)

	row, col = CellOf(199.9, -149.9, 400, 300, 2, 2)
	assert.Equal(t, 0, row)
	assert.Equal(t, 1, col)
}

func gridCandidates(rows, cols int, width, height float64) []Candidate {
	var out []Candidate
	for _, cell := range GridCells(width, height, rows, cols) {
		out = append(out, Candidate{
			ID:     fmt.Sprintf("c%d%d", cell.Row, cell.Col),
			X:      cell.X,
			Y:      cell.Y,
			ZIndex: cell.ZIndex(cols),
		})
	}
	return out
}

func TestAssignToGridConservesCellCount(t *testing.T) {
	for _, tc := range []struct {
		name          string
		fromR, fromC  int
		toR, toC      int
		wantDeleted   int
		wantEmptyCell int
	}{
		{"grow", 2, 2, 3, 3, 0, 5},
		{"shrink", 3, 3, 2, 2, 5, 0},
		{"same", 2, 3, 2, 3, 0, 0},
		{"reshape", 2, 2, 1, 4, 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			plan := AssignToGrid(gridCandidates(tc.fromR, tc.fromC, 400, 300), 400, 300, tc.toR, tc.toC)
			assert.Len(t, plan.ToDelete, tc.wantDeleted)
			assert.Len(t, plan.Empty, tc.wantEmptyCell)
			assert.Equal(t, tc.toR*tc.toC, len(plan.Assignments)+len(plan.Empty))

			seen := map[[2]int]bool{}
			for _, a := range plan.Assignments {
				key := [2]int{a.Cell.Row, a.Cell.Col}
				require.False(t, seen[key], "cell %v assigned twice", key)
				seen[key] = true
			}
		})
	}
}

func TestAssignToGridKeepsCompartmentsInPlaceWhenUnchanged(t *testing.T) {
	plan := AssignToGrid(gridCandidates(2, 2, 400, 300), 400, 300, 2, 2)
	for _, a := range plan.Assignments {
		assert.Equal(t, fmt.Sprintf("c%d%d", a.Cell.Row, a.Cell.Col), a.ID)
	}
}

func TestAssignToGridPrefersInventory(t *testing.T) {
	// The 2x2 drawer holds stock in its last cell; shrinking to 1x2 keeps it.
	cands := gridCandidates(2, 2, 400, 300)
	cands[3].HasInventory = true

	plan := AssignToGrid(cands, 400, 300, 1, 2)
	require.Len(t, plan.Assignments, 2)
	assert.Equal(t, "c11", plan.Assignments[0].ID)
	assert.Equal(t, 1, plan.Assignments[0].Cell.Col)
	assert.Equal(t, "c00", plan.Assignments[1].ID)
	assert.Equal(t, []string{"c01", "c10"}, plan.ToDelete)
	assert.Empty(t, plan.Blocked)
}

func TestAssignToGridReportsBlockedDeletions(t *testing.T) {
	cands := gridCandidates(2, 2, 400, 300)
	for i := range cands {
		cands[i].HasInventory = i < 3
	}
	plan := AssignToGrid(cands, 400, 300, 1, 2)
	assert.Equal(t, []string{"c10", "c11"}, plan.ToDelete)
	assert.Equal(t, []string{"c10"}, plan.Blocked)
}

func TestAssignToGridRowMajorTieBreak(t *testing.T) {
	// Both compartments sit on the middle cell. The second one must take the
	// first row-major neighbour at distance one.
	cands := []Candidate{{ID: "a", ZIndex: 0}, {ID: "b", ZIndex: 1}}
	plan := AssignToGrid(cands, 300, 300, 3, 3)
	require.Len(t, plan.Assignments, 2)
	assert.Equal(t, Cell{Row: 1, Col: 1}, Cell{Row: plan.Assignments[0].Cell.Row, Col: plan.Assignments[0].Cell.Col})
	assert.Equal(t, 0, plan.Assignments[1].Cell.Row)
	assert.Equal(t, 1, plan.Assignments[1].Cell.Col)
}

func TestAssignToGridZIndexOrdering(t *testing.T) {
	cands := []Candidate{{ID: "late", ZIndex: 5}, {ID: "early", ZIndex: 1}}
	plan := AssignToGrid(cands, 100, 100, 1, 1)
	require.Len(t, plan.Assignments, 1)
	assert.Equal(t, "early", plan.Assignments[0].ID)
	assert.Equal(t, []string{"late"}, plan.ToDelete)
}

func TestChooseGridDimensions(t *testing.T) {
	for _, tc := range []struct {
		n          int
		aspect     float64
		rows, cols int
	}{
		{0, 1, 0, 0},
		{1, 2, 1, 1},
		{4, 1, 2, 2},
		{6, 1.5, 2, 3},
		{6, 1.0 / 1.5, 3, 2},
		{3, 1, 1, 3},
		{7, 1, 1, 7},
		{8, 4.0 / 3.0, 2, 4},
		{12, 4.0 / 3.0, 3, 4},
		{4, 0, 2, 2},
	} {
		rows, cols := ChooseGridDimensions(tc.n, tc.aspect)
		assert.Equal(t, tc.rows, rows, "n=%d aspect=%v", tc.n, tc.aspect)
		assert.Equal(t, tc.cols, cols, "n=%d aspect=%v", tc.n, tc.aspect)
	}
}

func TestScaleRect(t *testing.T) {
	r := ScaleRect(Rect{X: 50, Y: -25, Width: 100, Height: 50}, 200, 100, 400, 300)
	assert.Equal(t, Rect{X: 100, Y: -75, Width: 200, Height: 150}, r)
	assert.Equal(t, Rect{X: 1, Width: 2}, ScaleRect(Rect{X: 1, Width: 2}, 0, 0, 10, 10))
}
