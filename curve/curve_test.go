package curve

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLissajous12Shape(t *testing.T) {
	// t=0: origin offset by phase only.
	x, y := Lissajous12(0, 1, 1, 1, 2, 0)
	assert.InDelta(t, 0, x, 1e-12)
	assert.InDelta(t, 0, y, 1e-12)

	// Quarter period of the x term: sin(pi/2)=1.
	x, y = Lissajous12(0.25, 2, 3, 1, 2, 0)
	assert.InDelta(t, 2, x, 1e-12)
	assert.InDelta(t, 0, y, 1e-9) // sin(pi)=0

	// Amplitudes scale linearly.
	x1, y1 := Lissajous12(0.1, 1, 1, 1, 2, 0)
	x2, y2 := Lissajous12(0.1, 2, 2, 1, 2, 0)
	assert.InDelta(t, 2*x1, x2, 1e-12)
	assert.InDelta(t, 2*y1, y2, 1e-12)

	// Phase shifts only x.
	_, yp := Lissajous12(0.1, 1, 1, 1, 2, 0.7)
	assert.InDelta(t, y1, yp, 1e-12)
}

func TestBernoulliShape(t *testing.T) {
	// θ=0: (a, 0).
	x, y := Bernoulli(0, 2)
	assert.InDelta(t, 2, x, 1e-12)
	assert.InDelta(t, 0, y, 1e-12)

	// θ=π (t=0.5): (-a, 0).
	x, y = Bernoulli(0.5, 2)
	assert.InDelta(t, -2, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)

	// The lemniscate never exceeds |a| on either axis.
	for i := 0; i < 100; i++ {
		tt := float64(i) / 100
		x, y = Bernoulli(tt, 1)
		assert.LessOrEqual(t, math.Abs(x), 1.0+1e-9)
		assert.LessOrEqual(t, math.Abs(y), 1.0+1e-9)
	}

	// Determinism: same input, same output.
	x1, y1 := Bernoulli(0.37, 1.5)
	x2, y2 := Bernoulli(0.37, 1.5)
	assert.Equal(t, x1, x2)
	assert.Equal(t, y1, y2)
}

func TestFigure8Advance(t *testing.T) {
	f := NewFigure8(DefaultParams())
	x0, y0 := f.Advance(0.1)
	x1, y1 := f.Current()
	assert.Equal(t, x0, x1)
	assert.Equal(t, y0, y1)

	// Advancing moves the position.
	x2, y2 := f.Advance(0.5)
	assert.False(t, x0 == x2 && y0 == y2, "advance should move along the path")
}

func TestFigure8Smoothing(t *testing.T) {
	p := DefaultParams()
	p.SmoothingAlpha = 0.1
	f := NewFigure8(p)
	f.Advance(0.1)
	rawX, _ := f.SampleAt(0.6)
	smX, _ := f.Advance(0.5)
	// Heavily smoothed position lags the raw sample.
	assert.NotEqual(t, rawX, smX)
}

func TestFigure8Reset(t *testing.T) {
	f := NewFigure8(DefaultParams())
	f.Advance(1.0)
	f.Reset(0)
	x, y := f.Current()
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)
}

func TestFigure8CenterOffset(t *testing.T) {
	p := DefaultParams()
	p.CenterX = 10
	p.CenterY = -5
	f := NewFigure8(p)
	x, y := f.SampleAt(0)
	assert.InDelta(t, 10, x, 1e-9)
	assert.InDelta(t, -5, y, 1e-9)
}

func TestSetParamsClamps(t *testing.T) {
	f := NewFigure8(DefaultParams())
	p := DefaultParams()
	p.SpeedHz = -3
	p.SmoothingAlpha = 9
	f.SetParams(p)
	got := f.Params()
	assert.Equal(t, 0.0, got.SpeedHz)
	assert.Equal(t, 1.0, got.SmoothingAlpha)
}
