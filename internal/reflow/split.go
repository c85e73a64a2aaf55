package reflow

import "errors"

// Orientation is the direction of a split line.
type Orientation string

const (
	// Vertical cuts along x = position.
	Vertical Orientation = "vertical"
	// Horizontal cuts along y = position.
	Horizontal Orientation = "horizontal"
)

// Valid reports whether o names a supported orientation.
func (o Orientation) Valid() bool { return o == Vertical || o == Horizontal }

// ErrTooNarrow is returned when a split half would be smaller than the
// minimum span.
var ErrTooNarrow = errors.New("split half narrower than minimum span")

// Split cuts r at the absolute coordinate position. r must be expressed in
// the same space as position. Both halves keep the perpendicular extent of
// r; neither may be narrower than minSpan.
func Split(r Rect, o Orientation, position, minSpan float64) (Rect, Rect, error) {
	lo, hi := r.Left(), r.Right()
	if o == Horizontal {
		lo, hi = r.Top(), r.Bottom()
	}
	if position-lo < minSpan || hi-position < minSpan {
		return Rect{}, Rect{}, ErrTooNarrow
	}
	if o == Horizontal {
		first := Rect{X: r.X, Y: (lo + position) / 2, Width: r.Width, Height: position - lo}
		second := Rect{X: r.X, Y: (position + hi) / 2, Width: r.Width, Height: hi - position}
		return first, second, nil
	}
	first := Rect{X: (lo + position) / 2, Y: r.Y, Width: position - lo, Height: r.Height}
	second := Rect{X: (position + hi) / 2, Y: r.Y, Width: hi - position, Height: r.Height}
	return first, second, nil
}

// SplitCandidate is a compartment considered as a split target. Rect is in
// absolute blueprint coordinates.
type SplitCandidate struct {
	ID     string
	ZIndex int
	Rect   Rect
}

// Straddles reports whether the line at position crosses r with at least
// margin on both sides.
func Straddles(r Rect, o Orientation, position, margin float64) bool {
	lo, hi := r.Left(), r.Right()
	if o == Horizontal {
		lo, hi = r.Top(), r.Bottom()
	}
	return position-lo >= margin && hi-position >= margin
}

// FindSplitTarget returns the highest-zIndex candidate the line crosses with
// at least margin on both sides. Among equal zIndex values the first
// candidate wins.
func FindSplitTarget(candidates []SplitCandidate, o Orientation, position, margin float64) (SplitCandidate, bool) {
	var (
		best  SplitCandidate
		found bool
	)
	for _, c := range candidates {
		if !Straddles(c.Rect, o, position, margin) {
			continue
		}
		if !found || c.ZIndex > best.ZIndex {
			best, found = c, true
		}
	}
	return best, found
}

// Translate shifts r by (dx, dy).
func Translate(r Rect, dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}
