// Package jitter produces deterministic low-discrepancy sample offsets for
// volumetric effects using the Halton(2,3) sequence.
package jitter

import "sync"

// Params tunes the jitter source. Values are clamped on ingest.
type Params struct {
	Enabled        bool    `json:"enabled"`
	DistanceMul    float64 `json:"distanceMul"`    // >= 0
	DensityMul     float64 `json:"densityMul"`     // >= 0
	HorizonFade    float64 `json:"horizonFade"`    // [0,1]
	JitterStrength float64 `json:"jitterStrength"` // >= 0
	TemporalBlend  float64 `json:"temporalBlend"`  // [0,1]
}

// DefaultParams returns the shipped tuning.
func DefaultParams() Params {
	return Params{
		Enabled:        true,
		DistanceMul:    1.0,
		DensityMul:     1.0,
		HorizonFade:    0.25,
		JitterStrength: 1.0,
		TemporalBlend:  0.90,
	}
}

func (p *Params) clamp() {
	p.DistanceMul = max0(p.DistanceMul)
	p.DensityMul = max0(p.DensityMul)
	p.HorizonFade = clamp01(p.HorizonFade)
	p.JitterStrength = max0(p.JitterStrength)
	p.TemporalBlend = clamp01(p.TemporalBlend)
}

// State is the advancing part of the source.
type State struct {
	TimeSec float64 `json:"timeSec"`
	Frame   uint32  `json:"frame"`
	JitterX float64 `json:"jitterX"`
	JitterY float64 `json:"jitterY"`
}

// Source owns one jitter stream. Safe for concurrent use.
type Source struct {
	mu sync.Mutex
	p  Params
	s  State
}

// New returns a source with the given params, clamped.
func New(p Params) *Source {
	p.clamp()
	return &Source{p: p}
}

// halton returns the i-th element of the base-b van der Corput sequence.
func halton(i, base uint32) float64 {
	f := 1.0
	r := 0.0
	for i > 0 {
		f /= float64(base)
		r += f * float64(i%base)
		i /= base
	}
	return r
}

// Halton23 returns the (2,3) pair for the given index. The index is offset
// by one so index 0 never yields (0,0).
func Halton23(index uint32) (float64, float64) {
	k := index + 1
	return halton(k, 2), halton(k, 3)
}

// SetParams replaces the tuning, clamped.
func (s *Source) SetParams(p Params) {
	p.clamp()
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// Params returns a copy of the tuning.
func (s *Source) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

// Reset rewinds the stream to the given time with frame 0.
func (s *Source) Reset(timeSec float64) {
	s.mu.Lock()
	if timeSec < 0 {
		timeSec = 0
	}
	s.s = State{TimeSec: timeSec}
	s.mu.Unlock()
}

// Advance moves the sequence index forward by one frame and recomputes the
// centered jitter offsets.
func (s *Source) Advance(dt float64) {
	s.mu.Lock()
	if dt > 0 {
		s.s.TimeSec += dt
	}
	s.s.Frame++
	hx, hy := Halton23(s.s.Frame)
	s.s.JitterX = (hx - 0.5) * s.p.JitterStrength
	s.s.JitterY = (hy - 0.5) * s.p.JitterStrength
	s.mu.Unlock()
}

// CurrentJitter returns the centered offsets for the current frame.
func (s *Source) CurrentJitter() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s.JitterX, s.s.JitterY
}

// GetState returns a copy of the advancing state.
func (s *Source) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
