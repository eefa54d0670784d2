// Package scooty keeps a bounded ring of numeric samples with trailing
// snapshots and summary statistics, used by probe tooling over the RPC
// surface.
package scooty

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

const ringCapacity = 512

// Stats summarizes the current ring contents.
type Stats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
}

// Ring is a bounded FIFO of float64 samples. Safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	samples []float64
}

// NewRing returns an empty ring.
func NewRing() *Ring {
	return &Ring{}
}

// Bump appends a sample, evicting the oldest past capacity.
func (r *Ring) Bump(v float64) {
	r.mu.Lock()
	r.samples = append(r.samples, v)
	if n := len(r.samples); n > ringCapacity {
		r.samples = append(r.samples[:0], r.samples[n-ringCapacity:]...)
	}
	r.mu.Unlock()
}

// Samples returns up to max trailing samples in chronological order.
func (r *Ring) Samples(max int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if max <= 0 || max > len(r.samples) {
		max = len(r.samples)
	}
	out := make([]float64, max)
	copy(out, r.samples[len(r.samples)-max:])
	return out
}

// Len returns the number of retained samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Compute returns min/max/mean/stddev over the retained samples.
func (r *Ring) Compute() Stats {
	v := r.Samples(ringCapacity)
	s := Stats{Count: len(v)}
	if len(v) == 0 {
		return s
	}

	mn := math.Inf(1)
	mx := math.Inf(-1)
	sum := 0.0
	for _, x := range v {
		mn = math.Min(mn, x)
		mx = math.Max(mx, x)
		sum += x
	}
	mean := sum / float64(len(v))

	acc := 0.0
	for _, x := range v {
		d := x - mean
		acc += d * d
	}
	s.Min = mn
	s.Max = mx
	s.Mean = mean
	s.Stddev = math.Sqrt(acc / float64(len(v)))
	return s
}

// FormatSamples renders up to max trailing samples as a framed text block
// for terminal probes.
func (r *Ring) FormatSamples(max int, title string) string {
	v := r.Samples(max)
	var b strings.Builder
	fmt.Fprintf(&b, "  %s (%d samples)\n", title, len(v))
	b.WriteString(" ----------------------------------------\n")
	for i, x := range v {
		fmt.Fprintf(&b, " %4d  %12.6f\n", i, x)
	}
	return b.String()
}
