package fold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyFieldIsIdentity(t *testing.T) {
	f := NewField()
	for _, x := range []float64{-10, -0.5, 0, 0.25, 3, 1e6} {
		assert.Equal(t, x, f.Evaluate(x))
	}
}

func TestDisabledCreasesAreIdentity(t *testing.T) {
	f := NewField()
	require.True(t, f.Upsert(Crease{Name: "a", Pos: 0, Radius: 1, Gain: 0.8, Enabled: false}))
	assert.Equal(t, 0.3, f.Evaluate(0.3))
}

func TestKernelZeroAtRadius(t *testing.T) {
	for _, c := range []Curve{Linear, Smooth, Cosine, Hermite} {
		f := NewField()
		f.SetCurve(c)
		require.True(t, f.Upsert(Crease{Name: "c", Pos: 0, Radius: 0.5, Gain: 1, Enabled: true}))
		// |x - pos| == radius: no effect.
		assert.Equal(t, 0.5, f.Evaluate(0.5), c.String())
		assert.Equal(t, -0.5, f.Evaluate(-0.5), c.String())
	}
}

func TestPullTowardCrease(t *testing.T) {
	f := NewField()
	require.True(t, f.Upsert(Crease{Name: "pull", Pos: 1.0, Radius: 1.0, Gain: 0.5, Enabled: true}))
	x := 1.4
	y := f.Evaluate(x)
	assert.Less(t, math.Abs(y-1.0), math.Abs(x-1.0), "output should be closer to the crease")
	// Full gain at center: stays put.
	assert.Equal(t, 1.0, f.Evaluate(1.0))
}

func TestPriorityOrderWithNameTiebreak(t *testing.T) {
	f := NewField()
	// Both full-gain creases cover x=0, so the order they apply in changes the result.
	require.True(t, f.Upsert(Crease{Name: "b", Pos: 2, Radius: 10, Gain: 1, Priority: 1, Enabled: true}))
	require.True(t, f.Upsert(Crease{Name: "a", Pos: -2, Radius: 10, Gain: 1, Priority: 0, Enabled: true}))
	// Priority 0 ("a") first: x -> pulled toward -2, then toward 2.
	got := f.Evaluate(0)

	f2 := NewField()
	require.True(t, f2.Upsert(Crease{Name: "a", Pos: -2, Radius: 10, Gain: 1, Priority: 0, Enabled: true}))
	require.True(t, f2.Upsert(Crease{Name: "b", Pos: 2, Radius: 10, Gain: 1, Priority: 1, Enabled: true}))
	assert.Equal(t, f2.Evaluate(0), got, "insertion order must not matter, priority does")

	// Same priority: names break the tie deterministically.
	f3 := NewField()
	require.True(t, f3.Upsert(Crease{Name: "z", Pos: 2, Radius: 10, Gain: 0.5, Enabled: true}))
	require.True(t, f3.Upsert(Crease{Name: "a", Pos: -2, Radius: 10, Gain: 0.5, Enabled: true}))
	f4 := NewField()
	require.True(t, f4.Upsert(Crease{Name: "a", Pos: -2, Radius: 10, Gain: 0.5, Enabled: true}))
	require.True(t, f4.Upsert(Crease{Name: "z", Pos: 2, Radius: 10, Gain: 0.5, Enabled: true}))
	assert.Equal(t, f4.Evaluate(0.1), f3.Evaluate(0.1))
}

func TestUpsertValidation(t *testing.T) {
	f := NewField()
	assert.False(t, f.Upsert(Crease{Name: "bad radius", Radius: 0}))
	assert.False(t, f.Upsert(Crease{Name: "", Radius: 1}))
	assert.False(t, f.Upsert(Crease{Name: "sp ace", Radius: 1}))
	assert.True(t, f.Upsert(Crease{Name: "ok_1.x-y", Radius: 1}))
}

func TestDerivativeMatchesFiniteDifference(t *testing.T) {
	f := NewField()
	f.SetCurve(Smooth)
	require.True(t, f.Upsert(Crease{Name: "c1", Pos: 0.2, Radius: 0.8, Gain: 0.6, Enabled: true}))
	require.True(t, f.Upsert(Crease{Name: "c2", Pos: -0.4, Radius: 0.5, Gain: 0.3, Priority: 1, Enabled: true}))

	const h = 1e-6
	for _, x := range []float64{-0.9, -0.3, 0.05, 0.45, 0.95} {
		want := (f.Evaluate(x+h) - f.Evaluate(x-h)) / (2 * h)
		got := f.EvaluateDerivative(x)
		assert.InDelta(t, want, got, 1e-4, "x=%f", x)
	}
}

func TestEvaluateManyAliasing(t *testing.T) {
	f := NewField()
	require.True(t, f.Upsert(Crease{Name: "c", Pos: 0, Radius: 2, Gain: 0.5, Enabled: true}))
	xs := []float64{-1, 0, 1}
	want := make([]float64, 3)
	f.EvaluateMany(xs, want)
	// In-place.
	f.EvaluateMany(xs, xs)
	assert.Equal(t, want, xs)
}

func TestConfigureAndSnapshotJSON(t *testing.T) {
	f := NewField()
	doc := `{"replace":true,"curve":"cosine","creases":[
		{"name":"neck","pos":0.1,"radius":0.25,"gain":0.7,"priority":5},
		{"name":"bad","pos":0,"radius":0},
		{"name":"off","pos":1,"radius":1,"enabled":false}
	]}`
	require.NoError(t, f.ConfigureJSON([]byte(doc)))
	assert.Equal(t, Cosine, f.Curve())
	assert.True(t, f.Exists("neck"))
	assert.False(t, f.Exists("bad"), "zero radius rejected")
	assert.True(t, f.Exists("off"))

	snap := string(f.SnapshotJSON())
	assert.Contains(t, snap, `"curve":"cosine"`)
	assert.Contains(t, snap, `"neck"`)

	// Merge without replace keeps existing entries.
	require.NoError(t, f.ConfigureJSON([]byte(`{"creases":[{"name":"extra","pos":2,"radius":1}]}`)))
	assert.True(t, f.Exists("neck"))
	assert.True(t, f.Exists("extra"))
}
