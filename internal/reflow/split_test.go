package reflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitVerticalSpans(t *testing.T) {
	r := Rect{X: 100, Y: 0, Width: 200, Height: 80} // [0,200]
	left, right, err := Split(r, Vertical, 60, 50)
	require.NoError(t, err)

	assert.Equal(t, 0.0, left.Left())
	assert.Equal(t, 60.0, left.Right())
	assert.Equal(t, 60.0, right.Left())
	assert.Equal(t, 200.0, right.Right())
	assert.Equal(t, r.Height, left.Height)
	assert.Equal(t, r.Y, right.Y)
}

func TestSplitHorizontalSpans(t *testing.T) {
	r := Rect{X: 10, Y: 50, Width: 40, Height: 100} // [0,100]
	top, bottom, err := Split(r, Horizontal, 50, 50)
	require.NoError(t, err)

	assert.Equal(t, Rect{X: 10, Y: 25, Width: 40, Height: 50}, top)
	assert.Equal(t, Rect{X: 10, Y: 75, Width: 40, Height: 50}, bottom)
}

func TestSplitTooNarrow(t *testing.T) {
	r := Rect{X: 100, Width: 200, Height: 80}
	_, _, err := Split(r, Vertical, 40, 50)
	assert.ErrorIs(t, err, ErrTooNarrow)
	_, _, err = Split(r, Vertical, 160, 50)
	assert.ErrorIs(t, err, ErrTooNarrow)
	_, _, err = Split(r, Vertical, 500, 50)
	assert.ErrorIs(t, err, ErrTooNarrow)
}

func TestFindSplitTargetPrefersHighestZIndex(t *testing.T) {
	cands := []SplitCandidate{
		{ID: "low", ZIndex: 0, Rect: Rect{X: 100, Width: 200, Height: 100}},
		{ID: "high", ZIndex: 3, Rect: Rect{X: 100, Width: 200, Height: 100}},
		{ID: "narrow", ZIndex: 9, Rect: Rect{X: 100, Width: 60, Height: 100}},
	}
	target, ok := FindSplitTarget(cands, Vertical, 100, 50)
	require.True(t, ok)
	assert.Equal(t, "high", target.ID)

	_, ok = FindSplitTarget(cands, Vertical, 20, 50)
	assert.False(t, ok)

	_, ok = FindSplitTarget(cands, Horizontal, 0, 50)
	assert.True(t, ok)
	_, ok = FindSplitTarget(cands, Horizontal, 10, 50)
	assert.False(t, ok)
}

func TestOrientationValid(t *testing.T) {
	assert.True(t, Vertical.Valid())
	assert.True(t, Horizontal.Valid())
	assert.False(t, Orientation("diagonal").Valid())
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, Rect{X: 5, Y: -5, Width: 1, Height: 1}, Translate(Rect{Width: 1, Height: 1}, 5, -5))
}
