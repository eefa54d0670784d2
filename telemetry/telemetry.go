// Package telemetry keeps a bounded in-memory event ring plus counter and
// timing accumulators for diagnostics.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/itskum47/mirrorblade/observability"
)

const defaultLimit = 512

// Event is one telemetry record: a monotonic-ish millisecond timestamp, a
// name, three numeric payloads and a free-form tag.
type Event struct {
	T    int64   `json:"t"` // unix milliseconds
	Name string  `json:"name"`
	A    float64 `json:"a"`
	B    float64 `json:"b"`
	C    float64 `json:"c"`
	Tag  string  `json:"tag"`
}

type timingAcc struct {
	Count   uint64 `json:"count"`
	TotalUs uint64 `json:"total_us"`
	MinUs   uint64 `json:"min_us"`
	MaxUs   uint64 `json:"max_us"`
	LastUs  uint64 `json:"last_us"`
}

// Store owns the event ring and the counter/timing maps. Safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	optIn    bool
	limit    int
	events   []Event
	counters map[string]int64
	timings  map[string]*timingAcc
	inflight map[string]time.Time
}

// NewStore returns an enabled store with the default ring limit.
func NewStore() *Store {
	return &Store{
		optIn:    true,
		limit:    defaultLimit,
		counters: make(map[string]int64),
		timings:  make(map[string]*timingAcc),
		inflight: make(map[string]time.Time),
	}
}

// OptIn toggles event capture. While off, pushes are dropped.
func (s *Store) OptIn(enabled bool) {
	s.mu.Lock()
	s.optIn = enabled
	s.mu.Unlock()
}

// IsOptedIn reports whether capture is on.
func (s *Store) IsOptedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.optIn
}

// SetLimit resizes the ring bound, evicting oldest events if shrinking.
func (s *Store) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	s.mu.Lock()
	s.limit = limit
	if n := len(s.events); n > limit {
		s.events = append(s.events[:0], s.events[n-limit:]...)
	}
	s.mu.Unlock()
}

// Push appends an event, evicting the oldest past the limit. A zero
// timestamp is stamped with the current time.
func (s *Store) Push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.optIn {
		return
	}
	if e.T == 0 {
		e.T = time.Now().UnixMilli()
	}
	s.events = append(s.events, e)
	if n := len(s.events); n > s.limit {
		s.events = append(s.events[:0], s.events[n-s.limit:]...)
	}
	observability.TelemetryEvents.Inc()
}

// Snapshot returns up to max trailing events in chronological order.
func (s *Store) Snapshot(max int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || max > len(s.events) {
		max = len(s.events)
	}
	out := make([]Event, max)
	copy(out, s.events[len(s.events)-max:])
	return out
}

// TrackCount adds delta to a named counter.
func (s *Store) TrackCount(key string, delta int64) {
	s.mu.Lock()
	if s.optIn {
		s.counters[key] += delta
	}
	s.mu.Unlock()
}

// TrackTimingStart marks the start of a named span.
func (s *Store) TrackTimingStart(name string) {
	s.mu.Lock()
	if s.optIn {
		s.inflight[name] = time.Now()
	}
	s.mu.Unlock()
}

// TrackTimingEnd closes a span opened by TrackTimingStart and folds it into
// the accumulator. Unmatched ends are ignored.
func (s *Store) TrackTimingEnd(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.optIn {
		return
	}
	start, ok := s.inflight[name]
	if !ok {
		return
	}
	delete(s.inflight, name)
	us := uint64(time.Since(start).Microseconds())

	acc, ok := s.timings[name]
	if !ok {
		acc = &timingAcc{MinUs: math.MaxUint64}
		s.timings[name] = acc
	}
	acc.Count++
	acc.TotalUs += us
	acc.LastUs = us
	if us < acc.MinUs {
		acc.MinUs = us
	}
	if us > acc.MaxUs {
		acc.MaxUs = us
	}
}

// DumpJSON renders counters, timings and ring occupancy as compact JSON.
func (s *Store) DumpJSON() string {
	s.mu.Lock()
	type timingOut struct {
		timingAcc
		AvgUs float64 `json:"avg_us"`
	}
	out := struct {
		OK          bool                 `json:"ok"`
		OptIn       bool                 `json:"optIn"`
		Counters    map[string]int64     `json:"counters"`
		Timings     map[string]timingOut `json:"timings"`
		EventsSize  int                  `json:"events_size"`
		EventsLimit int                  `json:"events_limit"`
	}{
		OK:          true,
		OptIn:       s.optIn,
		Counters:    make(map[string]int64, len(s.counters)),
		Timings:     make(map[string]timingOut, len(s.timings)),
		EventsSize:  len(s.events),
		EventsLimit: s.limit,
	}
	for k, v := range s.counters {
		out.Counters[k] = v
	}
	for k, v := range s.timings {
		to := timingOut{timingAcc: *v}
		if to.MinUs == math.MaxUint64 {
			to.MinUs = 0
		}
		if v.Count > 0 {
			to.AvgUs = float64(v.TotalUs) / float64(v.Count)
		}
		out.Timings[k] = to
	}
	s.mu.Unlock()

	data, err := json.Marshal(out)
	if err != nil {
		return `{"ok":false}`
	}
	return string(data)
}

// FormatTable renders the trailing lastN events as a fixed-width text table.
func (s *Store) FormatTable(lastN int, title string) string {
	evts := s.Snapshot(lastN)

	wT, wNm, wNum, wTag := 13, 16, 10, 16
	for _, e := range evts {
		if len(e.Name) > wNm {
			wNm = len(e.Name)
		}
		if len(e.Tag) > wTag {
			wTag = len(e.Tag)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %s\n", title)
	fmt.Fprintf(&b, " %-*s %-*s %-*s %-*s %-*s %-*s\n",
		wT, "t(ms)", wNm, "name", wNum, "a", wNum, "b", wNum, "c", wTag, "tag")
	fmt.Fprintf(&b, " %s %s %s %s %s %s\n",
		dashes(wT), dashes(wNm), dashes(wNum), dashes(wNum), dashes(wNum), dashes(wTag))
	for _, e := range evts {
		fmt.Fprintf(&b, " %-*d %-*s %-*.3f %-*.3f %-*.3f %-*s\n",
			wT, e.T, wNm, e.Name, wNum, e.A, wNum, e.B, wNum, e.C, wTag, e.Tag)
	}
	return b.String()
}

func dashes(n int) string {
	return strings.Repeat("-", n)
}
