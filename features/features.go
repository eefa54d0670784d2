package features

import (
	"sync"

	"github.com/itskum47/mirrorblade/logging"
)

const defaultFailThreshold = 3

// State tracks one named feature.
type State struct {
	Enabled       bool `json:"enabled"`
	Failures      int  `json:"failures"`
	FailThreshold int  `json:"failThreshold"`
}

// Registry holds per-feature guard state. Unknown features default to
// enabled with the default threshold on first reference.
type Registry struct {
	mu  sync.Mutex
	m   map[string]*State
	log *logging.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{m: make(map[string]*State), log: log}
}

func (r *Registry) getOrCreateLocked(name string) *State {
	st, ok := r.m[name]
	if !ok {
		st = &State{Enabled: true, FailThreshold: defaultFailThreshold}
		r.m[name] = st
	}
	return st
}

// IsEnabled reports whether the feature is enabled. Unreferenced features
// are enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.m[name]
	if !ok {
		return true
	}
	return st.Enabled
}

// SetEnabled flips the feature. Enabling resets the failure counter.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.getOrCreateLocked(name)
	st.Enabled = enabled
	if enabled {
		st.Failures = 0
	}
}

// Get returns a copy of the feature's state, creating it if missing.
func (r *Registry) Get(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.getOrCreateLocked(name)
}

// Snapshot returns a copy of every tracked feature.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.m))
	for k, v := range r.m {
		out[k] = *v
	}
	return out
}

// GuardedRun executes fn if the feature is enabled. A panic inside fn is
// absorbed, counted as a failure, and auto-disables the feature once the
// threshold is reached. fn runs outside the registry lock.
func (r *Registry) GuardedRun(name string, fn func()) {
	r.mu.Lock()
	st := r.getOrCreateLocked(name)
	enabled := st.Enabled
	r.mu.Unlock()
	if !enabled {
		return
	}

	ok := true
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				ok = false
				if r.log != nil {
					r.log.Errorf("Feature %q failed: %v", name, rec)
				}
			}
		}()
		fn()
	}()

	if ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st = r.getOrCreateLocked(name)
	st.Failures++
	if st.Failures >= st.FailThreshold && st.Enabled {
		st.Enabled = false
		if r.log != nil {
			r.log.Warnf("Feature %q auto-disabled after %d failures", name, st.Failures)
		}
	}
}
