package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/itskum47/mirrorblade/logging"
	"github.com/itskum47/mirrorblade/observability"
)

const (
	// TrafficMin and TrafficMax bound the traffic multiplier on every ingest path.
	TrafficMin = 0.10
	TrafficMax = 50.0

	// DefaultPipeName is the canonical endpoint identifier. Non-Windows hosts
	// map it to a Unix socket (see rpc.PipePath).
	DefaultPipeName = `\\.\pipe\MirrorBladeBridge-v1`

	configVersion = 1
)

// ResolvePath returns the config file location under the host root.
func ResolvePath(root string) string {
	return filepath.Join(root, "r6", "config", "MirrorBlade.json")
}

// UpscalerParams mirrors the external upscaler sink's tuning surface.
type UpscalerParams struct {
	Mode      string  `json:"mode"`
	Sharpness float64 `json:"sharpness"`
}

// UpscalerTarget describes output and render resolution for the sink.
type UpscalerTarget struct {
	OutputWidth  uint32 `json:"outputWidth"`
	OutputHeight uint32 `json:"outputHeight"`
	RenderWidth  uint32 `json:"renderWidth"`
	RenderHeight uint32 `json:"renderHeight"`
}

// UpscalerSink receives runtime upscaler state. Absent sinks are no-ops.
type UpscalerSink interface {
	SetEnabled(enabled bool)
	SetMode(mode string)
	SetParams(p UpscalerParams)
	Resize(t UpscalerTarget)
}

// TrafficSink receives the runtime traffic multiplier.
type TrafficSink interface {
	SetMultiplier(m float64)
}

// atomicFloat stores a float64 in a uint64 for torn-read-free access.
type atomicFloat struct{ bits atomic.Uint64 }

func (a *atomicFloat) Store(v float64) { a.bits.Store(math.Float64bits(v)) }
func (a *atomicFloat) Load() float64   { return math.Float64frombits(a.bits.Load()) }

// Snapshot is a consistent by-value copy of the store.
type Snapshot struct {
	Upscaler     bool
	TrafficBoost float64
	IPCEnabled   bool
	PipeName     string
	LogLevel     logging.Level
}

// Store holds the live configuration. Scalar fields are atomics; the pipe
// name string is guarded by the store mutex. One Store per process.
type Store struct {
	upscaler   atomic.Bool
	traffic    atomicFloat
	ipcEnabled atomic.Bool
	logLevel   atomic.Int32

	mu       sync.Mutex
	pipeName string

	path string
	log  *logging.Logger

	sinkMu   sync.Mutex
	upSink   UpscalerSink
	trafSink TrafficSink
}

// NewStore returns a Store with defaults, bound to the given file path.
func NewStore(path string, log *logging.Logger) *Store {
	s := &Store{path: path, log: log, pipeName: DefaultPipeName}
	s.traffic.Store(1.0)
	s.ipcEnabled.Store(true)
	s.logLevel.Store(int32(logging.Info))
	return s
}

// Path returns the on-disk location the store loads from and saves to.
func (s *Store) Path() string { return s.path }

// SetSinks registers the optional runtime sinks. Nil sinks are skipped on apply.
func (s *Store) SetSinks(up UpscalerSink, traffic TrafficSink) {
	s.sinkMu.Lock()
	s.upSink = up
	s.trafSink = traffic
	s.sinkMu.Unlock()
}

// ---- typed accessors ----

func (s *Store) UpscalerEnabled() bool { return s.upscaler.Load() }

func (s *Store) SetUpscalerEnabled(en bool) { s.upscaler.Store(en) }

func (s *Store) TrafficBoost() float64 { return s.traffic.Load() }

// SetTrafficBoost clamps v into [TrafficMin, TrafficMax] and returns the
// stored value.
func (s *Store) SetTrafficBoost(v float64) float64 {
	v = clamp(v, TrafficMin, TrafficMax)
	s.traffic.Store(v)
	return v
}

func (s *Store) IPCEnabled() bool { return s.ipcEnabled.Load() }

func (s *Store) SetIPCEnabled(en bool) { s.ipcEnabled.Store(en) }

func (s *Store) LogLevel() logging.Level { return logging.Level(s.logLevel.Load()) }

func (s *Store) SetLogLevel(lv logging.Level) { s.logLevel.Store(int32(lv)) }

func (s *Store) PipeName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeName
}

func (s *Store) SetPipeName(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	s.pipeName = name
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of all fields.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	pipe := s.pipeName
	s.mu.Unlock()
	return Snapshot{
		Upscaler:     s.upscaler.Load(),
		TrafficBoost: s.traffic.Load(),
		IPCEnabled:   s.ipcEnabled.Load(),
		PipeName:     pipe,
		LogLevel:     logging.Level(s.logLevel.Load()),
	}
}

// ---- dotted-key access for config.get / config.set ----

var ErrUnknownKey = errors.New("unknown config key")

// GetKey reads a field by its dotted key.
func (s *Store) GetKey(key string) (any, error) {
	switch key {
	case "upscaler":
		return s.UpscalerEnabled(), nil
	case "trafficBoost":
		return s.TrafficBoost(), nil
	case "ipc.enabled":
		return s.IPCEnabled(), nil
	case "ipc.pipeName":
		return s.PipeName(), nil
	case "logging.level":
		return levelString(s.LogLevel()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// SetKey mutates a field by dotted key, applying the same coercion rules as
// Load. Returns the stored value.
func (s *Store) SetKey(key string, value any) (any, error) {
	switch key {
	case "upscaler":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("upscaler wants bool, got %T", value)
		}
		s.SetUpscalerEnabled(b)
		return b, nil
	case "trafficBoost":
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("trafficBoost wants number, got %T", value)
		}
		return s.SetTrafficBoost(f), nil
	case "ipc.enabled":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("ipc.enabled wants bool, got %T", value)
		}
		s.SetIPCEnabled(b)
		return b, nil
	case "ipc.pipeName":
		str, ok := value.(string)
		if !ok || str == "" {
			return nil, fmt.Errorf("ipc.pipeName wants non-empty string")
		}
		s.SetPipeName(str)
		return str, nil
	case "logging.level":
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("logging.level wants string, got %T", value)
		}
		lv := logging.ParseLevel(str)
		s.SetLogLevel(lv)
		return levelString(lv), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
}

// ---- persistence ----

// fileConfig is the on-disk shape. Unknown top-level fields are ignored by
// json.Unmarshal into this struct.
type fileConfig struct {
	Version      int      `json:"version"`
	Upscaler     *bool    `json:"upscaler,omitempty"`
	TrafficBoost *float64 `json:"trafficBoost,omitempty"`
	IPC          *struct {
		Enabled  *bool   `json:"enabled,omitempty"`
		PipeName *string `json:"pipeName,omitempty"`
	} `json:"ipc,omitempty"`
	Logging *struct {
		Level *string `json:"level,omitempty"`
	} `json:"logging,omitempty"`
}

// Load reads the file at the bound path and replaces the in-memory state.
// A missing file or parse failure leaves the current state untouched apart
// from logging; Load never fails the caller.
func (s *Store) Load(source string) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debugf("Config file not found, using defaults: %s", s.path)
		} else {
			s.log.Warnf("Failed to read config %s: %v", s.path, err)
		}
		return
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		s.log.Warnf("Config parse error (%s): %v", s.path, err)
		return
	}

	if fc.Upscaler != nil {
		s.upscaler.Store(*fc.Upscaler)
	}
	if fc.TrafficBoost != nil {
		s.traffic.Store(clamp(*fc.TrafficBoost, TrafficMin, TrafficMax))
	}
	if fc.IPC != nil {
		if fc.IPC.Enabled != nil {
			s.ipcEnabled.Store(*fc.IPC.Enabled)
		}
		if fc.IPC.PipeName != nil && *fc.IPC.PipeName != "" {
			s.SetPipeName(*fc.IPC.PipeName)
		}
	}
	if fc.Logging != nil && fc.Logging.Level != nil {
		s.logLevel.Store(int32(logging.ParseLevel(*fc.Logging.Level)))
	}

	observability.ConfigReloads.WithLabelValues(source).Inc()
	s.log.Infof("Config loaded: upscaler=%t traffic=%.2f ipc=%t level=%s",
		s.upscaler.Load(), s.traffic.Load(), s.ipcEnabled.Load(), levelString(s.LogLevel()))
}

// Save serializes the current state and atomically replaces the target file
// via a sibling temp file. The temp file is removed on any failure.
func (s *Store) Save() error {
	snap := s.Snapshot()
	up := snap.Upscaler
	tb := snap.TrafficBoost
	ipcEn := snap.IPCEnabled
	level := levelString(snap.LogLevel)

	out := map[string]any{
		"version":      configVersion,
		"upscaler":     up,
		"trafficBoost": tb,
		"ipc": map[string]any{
			"enabled":  ipcEn,
			"pipeName": snap.PipeName,
		},
		"logging": map[string]any{
			"level": level,
		},
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		observability.ConfigSaveFailures.Inc()
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := writeThrough(tmp, data); err != nil {
		os.Remove(tmp)
		observability.ConfigSaveFailures.Inc()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		observability.ConfigSaveFailures.Inc()
		return fmt.Errorf("replace config: %w", err)
	}
	s.log.Infof("Config saved to %s", s.path)
	return nil
}

func writeThrough(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ApplyRuntime pushes the current values to the registered sinks and the
// logger. Idempotent and callable from any goroutine.
func (s *Store) ApplyRuntime() {
	snap := s.Snapshot()

	s.sinkMu.Lock()
	up := s.upSink
	traf := s.trafSink
	s.sinkMu.Unlock()

	if up != nil {
		up.SetEnabled(snap.Upscaler)
	}
	if traf != nil {
		traf.SetMultiplier(snap.TrafficBoost)
	}
	if s.log != nil {
		s.log.SetLevel(snap.LogLevel)
	}
	s.log.Debugf("Runtime applied: upscaler=%t traffic=%.2f level=%s",
		snap.Upscaler, snap.TrafficBoost, levelString(snap.LogLevel))
}

func levelString(lv logging.Level) string {
	switch lv {
	case logging.Trace:
		return "trace"
	case logging.Debug:
		return "debug"
	case logging.Warn:
		return "warn"
	case logging.Error:
		return "error"
	default:
		return "info"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
