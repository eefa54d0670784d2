package scooty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBumpAndTrailingSamples(t *testing.T) {
	r := NewRing()
	for i := 0; i < 10; i++ {
		r.Bump(float64(i))
	}
	assert.Equal(t, 10, r.Len())

	got := r.Samples(3)
	assert.Equal(t, []float64{7, 8, 9}, got)

	// max <= 0 or oversized returns everything.
	assert.Len(t, r.Samples(0), 10)
	assert.Len(t, r.Samples(100), 10)
}

func TestCapacityEviction(t *testing.T) {
	r := NewRing()
	for i := 0; i < 600; i++ {
		r.Bump(float64(i))
	}
	assert.Equal(t, 512, r.Len())
	s := r.Samples(1)
	assert.Equal(t, []float64{599}, s, "newest sample retained")
	all := r.Samples(512)
	assert.Equal(t, float64(88), all[0], "oldest samples evicted")
}

func TestComputeStats(t *testing.T) {
	r := NewRing()
	assert.Equal(t, Stats{}, r.Compute(), "empty ring is all zeros")

	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		r.Bump(v)
	}
	s := r.Compute()
	assert.Equal(t, 8, s.Count)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 5.0, s.Mean, 1e-12)
	assert.InDelta(t, 2.0, s.Stddev, 1e-12) // classic population stddev example
}

func TestFormatSamples(t *testing.T) {
	r := NewRing()
	r.Bump(1.5)
	r.Bump(-2.25)
	out := r.FormatSamples(10, "scooty")
	assert.Contains(t, out, "scooty (2 samples)")
	assert.Contains(t, out, "1.500000")
	assert.Contains(t, out, "-2.250000")
}
