// Package reflow holds the pure geometry used to re-partition drawers into
// compartments. Nothing here touches storage; callers feed in the current
// compartments and apply the returned plan inside a transaction.
package reflow

import (
	"math"
	"sort"
)

// Rect is an axis-aligned rectangle described by its centre.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Left returns the minimum x coordinate.
func (r Rect) Left() float64 { return r.X - r.Width/2 }

// Right returns the maximum x coordinate.
func (r Rect) Right() float64 { return r.X + r.Width/2 }

// Top returns the minimum y coordinate.
func (r Rect) Top() float64 { return r.Y - r.Height/2 }

// Bottom returns the maximum y coordinate.
func (r Rect) Bottom() float64 { return r.Y + r.Height/2 }

// Cell is one slot of a rows x cols partition. Rect is relative to the
// drawer centre.
type Cell struct {
	Row int
	Col int
	Rect
}

// ZIndex is the stacking order a compartment placed in the cell receives.
func (c Cell) ZIndex(cols int) int { return c.Row*cols + c.Col }

// MaxGridCells bounds rows x cols for any grid drawer.
const MaxGridCells = 10_000

// GridFits reports whether rows x cols is a usable grid: both positive and
// the cell count at most MaxGridCells.
func GridFits(rows, cols int) bool {
	if rows < 1 || cols < 1 || rows > MaxGridCells || cols > MaxGridCells {
		return false
	}
	return rows*cols <= MaxGridCells
}

// GridCells partitions a width x height drawer into rows x cols equally sized
// cells, returned in row-major order. The drawer footprint never changes.
// Grids that do not fit return nil.
func GridCells(width, height float64, rows, cols int) []Cell {
	if !GridFits(rows, cols) {
		return nil
	}
	cellW := width / float64(cols)
	cellH := height / float64(rows)
	cells := make([]Cell, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cells = append(cells, Cell{
				Row: r,
				Col: c,
				Rect: Rect{
					X:      -width/2 + cellW*(float64(c)+0.5),
					Y:      -height/2 + cellH*(float64(r)+0.5),
					Width:  cellW,
					Height: cellH,
				},
			})
		}
	}
	return cells
}

// CellOf maps a drawer-relative point onto the (row, col) of a rows x cols
// grid, clamping points outside the drawer onto its border cells.
func CellOf(x, y, width, height float64, rows, cols int) (int, int) {
	col := clampIndex((x+width/2)/(width/float64(cols)), cols)
	row := clampIndex((y+height/2)/(height/float64(rows)), rows)
	return row, col
}

func clampIndex(v float64, n int) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	i := int(math.Floor(v))
	if i >= n {
		return n - 1
	}
	return i
}

// Candidate is a compartment competing for a grid cell.
type Candidate struct {
	ID           string
	X            float64
	Y            float64
	ZIndex       int
	HasInventory bool
}

// Assignment places an existing compartment into a cell.
type Assignment struct {
	ID   string
	Cell Cell
}

// Plan is the outcome of AssignToGrid.
type Plan struct {
	Assignments []Assignment
	// Empty lists the cells no compartment was assigned to, row-major.
	Empty []Cell
	// ToDelete lists compartments that did not fit, in preference order.
	ToDelete []string
	// Blocked lists the members of ToDelete that hold inventory.
	Blocked []string
}

// AssignToGrid greedily places candidates into a rows x cols partition.
//
// Candidates are ranked inventory-bearing first, then by ascending zIndex;
// the incoming order breaks remaining ties. Each candidate takes the unused
// cell with the smallest Manhattan distance to the cell its current centre
// falls in, scanning row-major so the first minimum wins. Candidates left
// over once every cell is taken are marked for deletion.
func AssignToGrid(candidates []Candidate, width, height float64, rows, cols int) Plan {
	cells := GridCells(width, height, rows, cols)
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].HasInventory != ranked[j].HasInventory {
			return ranked[i].HasInventory
		}
		return ranked[i].ZIndex < ranked[j].ZIndex
	})

	used := make([]bool, len(cells))
	var plan Plan
	for _, cand := range ranked {
		if len(plan.Assignments) == len(cells) {
			plan.ToDelete = append(plan.ToDelete, cand.ID)
			if cand.HasInventory {
				plan.Blocked = append(plan.Blocked, cand.ID)
			}
			continue
		}
		row, col := CellOf(cand.X, cand.Y, width, height, rows, cols)
		best, bestDist := -1, math.MaxInt
		for i, cell := range cells {
			if used[i] {
				continue
			}
			dist := absInt(cell.Row-row) + absInt(cell.Col-col)
			if dist < bestDist {
				best, bestDist = i, dist
			}
		}
		used[best] = true
		plan.Assignments = append(plan.Assignments, Assignment{ID: cand.ID, Cell: cells[best]})
	}
	for i, cell := range cells {
		if !used[i] {
			plan.Empty = append(plan.Empty, cell)
		}
	}
	return plan
}

// ChooseGridDimensions picks the factorization rows x cols == n whose column
// to row ratio best matches aspect (drawer width / height). Near-square grids
// win ties. It returns 0, 0 when n is not positive.
func ChooseGridDimensions(n int, aspect float64) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = 1
	}
	target := math.Log(aspect)
	bestRows, bestCols := 1, n
	bestScore := math.Inf(1)
	for rows := 1; rows <= n; rows++ {
		if n%rows != 0 {
			continue
		}
		cols := n / rows
		score := math.Abs(math.Log(float64(cols)/float64(rows))-target) + 1e-3*float64(absInt(rows-cols))
		if score < bestScore {
			bestRows, bestCols, bestScore = rows, cols, score
		}
	}
	return bestRows, bestCols
}

// ScaleRect maps a drawer-relative rectangle from one drawer size onto
// another, keeping its proportional position and extent.
func ScaleRect(r Rect, fromW, fromH, toW, toH float64) Rect {
	sx, sy := 1.0, 1.0
	if fromW > 0 {
		sx = toW / fromW
	}
	if fromH > 0 {
		sy = toH / fromH
	}
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
