// Package smooth implements a one-dimensional spring-damper recovery filter
// with a hysteresis band, jump-triggered cooldown, optional output clamp and
// a velocity cap. Keep one Smoother per signal.
package smooth

import (
	"encoding/json"
	"math"
	"sync"
)

// Params tunes the smoother.
type Params struct {
	Enabled        bool `json:"enabled"`
	AbideEmptiness bool `json:"abideEmptiness"` // force output to 0

	Stiffness float64 `json:"stiffness"`
	Damping   float64 `json:"damping"`

	HysteresisBand float64 `json:"hysteresisBand"`

	JumpThreshold   float64 `json:"jumpThreshold"`
	CooldownSeconds float64 `json:"cooldownSeconds"`
	CooldownGain    float64 `json:"cooldownGain"`

	ClampEnabled bool    `json:"clampEnabled"`
	ClampMin     float64 `json:"clampMin"`
	ClampMax     float64 `json:"clampMax"`

	SnapFirstSample bool    `json:"snapFirstSample"`
	MaxVelocity     float64 `json:"maxVelocity"`
}

// DefaultParams mirrors the tuning the filter ships with.
func DefaultParams() Params {
	return Params{
		Enabled:         true,
		Stiffness:       12.0,
		Damping:         2.5,
		HysteresisBand:  0.01,
		JumpThreshold:   0.15,
		CooldownSeconds: 0.20,
		CooldownGain:    0.3,
		ClampMax:        1.0,
		SnapFirstSample: true,
		MaxVelocity:     1000.0,
	}
}

type state struct {
	y        float64
	v        float64
	cooldown float64
	seeded   bool
}

// Snapshot is a copy of the live state plus params.
type Snapshot struct {
	Output            float64 `json:"output"`
	Velocity          float64 `json:"velocity"`
	CooldownRemaining float64 `json:"cooldownRemaining"`
	Seeded            bool    `json:"seeded"`
	Params            Params  `json:"params"`
}

// Smoother is safe for concurrent use.
type Smoother struct {
	mu sync.Mutex
	p  Params
	s  state
}

// New returns a smoother with default params.
func New() *Smoother {
	return &Smoother{p: DefaultParams()}
}

func (m *Smoother) SetParams(p Params) {
	m.mu.Lock()
	if p.ClampEnabled && p.ClampMin > p.ClampMax {
		p.ClampMin, p.ClampMax = p.ClampMax, p.ClampMin
	}
	m.p = p
	m.mu.Unlock()
}

func (m *Smoother) Params() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p
}

// ConfigureJSON merges fields present in the document into the params.
func (m *Smoother) ConfigureJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Start from the current params so absent fields keep their values.
	p := m.p
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ClampEnabled && p.ClampMin > p.ClampMax {
		p.ClampMin, p.ClampMax = p.ClampMax, p.ClampMin
	}
	m.p = p
	return nil
}

// SnapshotState copies the live state.
func (m *Smoother) SnapshotState() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Output:            m.s.y,
		Velocity:          m.s.v,
		CooldownRemaining: m.s.cooldown,
		Seeded:            m.s.seeded,
		Params:            m.p,
	}
}

// Step advances the filter by dt seconds with input x and returns the output.
// Disabled: pass-through. AbideEmptiness: output and velocity pinned to 0.
func (m *Smoother) Step(dt, x float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.p.Enabled {
		m.s = state{y: x, seeded: true}
		return m.s.y
	}
	if m.p.AbideEmptiness {
		m.s = state{seeded: true}
		return 0
	}

	if !m.s.seeded {
		m.s.seeded = true
		if m.p.SnapFirstSample {
			m.s = state{y: x, seeded: true}
			return m.s.y
		}
		m.s.y = 0
		m.s.v = 0
		m.s.cooldown = 0
	}

	if math.Abs(x-m.s.y) > m.p.JumpThreshold {
		m.s.cooldown = math.Max(m.s.cooldown, m.p.CooldownSeconds)
	}

	integrate(&m.s, &m.p, dt, x)
	return m.s.y
}

// PeekNext simulates one Step without mutating state.
func (m *Smoother) PeekNext(dt, x float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.p.Enabled {
		return x
	}
	if m.p.AbideEmptiness {
		return 0
	}

	sim := m.s
	if !sim.seeded {
		if m.p.SnapFirstSample {
			return x
		}
		sim = state{seeded: true}
	}
	if math.Abs(x-sim.y) > m.p.JumpThreshold {
		sim.cooldown = math.Max(sim.cooldown, m.p.CooldownSeconds)
	}
	integrate(&sim, &m.p, dt, x)
	return sim.y
}

// Reset zeroes the state, keeping params.
func (m *Smoother) Reset() {
	m.mu.Lock()
	m.s = state{}
	m.mu.Unlock()
}

// HardReset zeroes the state and seeds the output at value.
func (m *Smoother) HardReset(value float64) {
	m.mu.Lock()
	m.s = state{y: value, seeded: true}
	m.mu.Unlock()
}

// BeginCooldown starts or extends the reduced-stiffness window.
func (m *Smoother) BeginCooldown(seconds float64) {
	m.mu.Lock()
	m.s.cooldown = math.Max(m.s.cooldown, math.Max(0, seconds))
	m.mu.Unlock()
}

func integrate(st *state, p *Params, dt, x float64) {
	if dt <= 0 {
		return
	}

	k := p.Stiffness
	if st.cooldown > 0 {
		k *= math.Max(0, p.CooldownGain)
		st.cooldown = math.Max(0, st.cooldown-dt)
	}

	// Fade the response to zero inside the hysteresis band.
	e := x - st.y
	ae := math.Abs(e)
	bandScale := 1.0
	if band := p.HysteresisBand; ae < band && band > 1e-12 {
		bandScale = ae / band
	}

	accel := k*e*bandScale - p.Damping*st.v
	st.v += accel * dt

	vmax := math.Max(1e-6, p.MaxVelocity)
	if st.v > vmax {
		st.v = vmax
	}
	if st.v < -vmax {
		st.v = -vmax
	}

	st.y += st.v * dt

	if p.ClampEnabled {
		if st.y < p.ClampMin {
			st.y = p.ClampMin
		}
		if st.y > p.ClampMax {
			st.y = p.ClampMax
		}
		// At a clamp edge, stop the velocity from driving further out.
		if st.y <= p.ClampMin+1e-6 {
			st.v = math.Min(st.v, 0)
		}
		if st.y >= p.ClampMax-1e-6 {
			st.v = math.Max(st.v, 0)
		}
	}
}
