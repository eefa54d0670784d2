// Package bridge wires the sidecar together: logger, config store, op
// registry, worker pool and the pipe server, in that order, then the config
// watcher, with teardown in reverse. One Bridge per process.
package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/itskum47/mirrorblade/config"
	"github.com/itskum47/mirrorblade/curve"
	"github.com/itskum47/mirrorblade/features"
	"github.com/itskum47/mirrorblade/fold"
	"github.com/itskum47/mirrorblade/jitter"
	"github.com/itskum47/mirrorblade/loader"
	"github.com/itskum47/mirrorblade/logging"
	"github.com/itskum47/mirrorblade/ops"
	"github.com/itskum47/mirrorblade/pool"
	"github.com/itskum47/mirrorblade/rpc"
	"github.com/itskum47/mirrorblade/scooty"
	"github.com/itskum47/mirrorblade/smooth"
	"github.com/itskum47/mirrorblade/telemetry"
)

// Version identifies the bridge build on the wire and the C surface.
const Version = "MirrorBladeBridge-v1"

// Options configures Init.
type Options struct {
	// Root is the host root; the config file lives at
	// <Root>/r6/config/MirrorBlade.json and logs under <Root>/r6/logs.
	Root string

	// MetricsAddr, when set, serves /metrics and /ws/diag on a local HTTP
	// listener (e.g. "127.0.0.1:9327").
	MetricsAddr string

	// BootConfigPath overrides the boot script location. Default:
	// <Root>/config.json.
	BootConfigPath string

	// PipeName overrides the configured endpoint identifier.
	PipeName string

	// Pool overrides the worker pool configuration.
	Pool *pool.Config

	// Optional external sinks.
	Upscaler config.UpscalerSink
	Traffic  config.TrafficSink

	// SkipBootOps disables the onLoad runner (used by tests and embedders
	// that drive the registry directly).
	SkipBootOps bool
}

// Bridge owns every subsystem.
type Bridge struct {
	log      *logging.Logger
	cfg      *config.Store
	registry *ops.Registry
	pool     *pool.Pool
	server   *rpc.Server
	watcher  *config.Watcher
	loader   *loader.Loader

	foldField *fold.Field
	smoother  *smooth.Smoother
	jitterSrc *jitter.Source
	scootyRng *scooty.Ring
	telem     *telemetry.Store
	figure8   *curve.Figure8
	features  *features.Registry

	hub      *Hub
	httpSrv  *http.Server
	diagAddr string

	started time.Time
}

// DiagAddr returns the bound diagnostics listener address, or "" when the
// listener is disabled.
func (b *Bridge) DiagAddr() string { return b.diagAddr }

// Init boots the sidecar: Logger first, Config second, Registry third, Pool
// fourth, RPC fifth; the config watcher and the optional diagnostics listener
// start after RPC. A logger failure is the only fatal condition here.
func Init(opts Options) (*Bridge, error) {
	b := &Bridge{started: time.Now()}

	b.log = logging.New()
	logDir := filepath.Join(opts.Root, "r6", "logs")
	if err := b.log.Init(logDir, "MirrorBladeBridge", 4<<20, 3); err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	b.log.Infof("%s starting", Version)

	b.cfg = config.NewStore(config.ResolvePath(opts.Root), b.log)
	b.cfg.SetSinks(opts.Upscaler, opts.Traffic)
	b.cfg.Load("initial")
	if opts.PipeName != "" {
		b.cfg.SetPipeName(opts.PipeName)
	}
	b.cfg.ApplyRuntime()

	b.features = features.NewRegistry(b.log)
	b.foldField = fold.NewField()
	b.smoother = smooth.New()
	b.jitterSrc = jitter.New(jitter.DefaultParams())
	b.scootyRng = scooty.NewRing()
	b.telem = telemetry.NewStore()
	b.figure8 = curve.NewFigure8(curve.DefaultParams())
	b.loader = loader.New(b.log, b.jitterSrc)

	b.registry = ops.NewRegistry(b.log)
	poolCfg := pool.DefaultConfig()
	if opts.Pool != nil {
		poolCfg = *opts.Pool
	}
	b.pool = pool.New(poolCfg, b.log)

	ops.RegisterAll(b.registry, &ops.Deps{
		Log:       b.log,
		Config:    b.cfg,
		Pool:      b.pool,
		Features:  b.features,
		Fold:      b.foldField,
		Smooth:    b.smoother,
		Jitter:    b.jitterSrc,
		Scooty:    b.scootyRng,
		Telemetry: b.telem,
		Loader:    b.loader,
		Figure8:   b.figure8,
		Upscaler:  opts.Upscaler,
		DiagDump:  b.DiagDump,
	})

	b.pool.Start()

	b.server = rpc.NewServer(b.registry, b.cfg, b.log)
	b.server.Start()

	b.watcher = config.NewWatcher(b.cfg)
	b.watcher.Start()

	if opts.MetricsAddr != "" {
		b.startDiagnostics(opts.MetricsAddr)
	}

	if !opts.SkipBootOps {
		bootPath := opts.BootConfigPath
		if bootPath == "" {
			bootPath = filepath.Join(opts.Root, "config.json")
		}
		go b.runBootOps(bootPath)
	}

	b.log.Infof("Bridge initialized (pipe %s)", b.cfg.PipeName())
	return b, nil
}

// Shutdown tears everything down in reverse boot order.
func (b *Bridge) Shutdown() {
	b.log.Infof("Bridge shutting down")

	if b.httpSrv != nil {
		b.httpSrv.Close()
	}
	if b.hub != nil {
		b.hub.Stop()
	}
	b.watcher.Stop()
	b.server.Stop()
	b.pool.Stop()
	b.log.Infof("Bridge shut down")
	b.log.Close()
}

// Registry exposes the op table for embedders.
func (b *Bridge) Registry() *ops.Registry { return b.registry }

// Config exposes the live config store.
func (b *Bridge) Config() *config.Store { return b.cfg }

// Pool exposes the worker pool.
func (b *Bridge) Pool() *pool.Pool { return b.pool }

// Log exposes the logger.
func (b *Bridge) Log() *logging.Logger { return b.log }

// Endpoint returns the live pipe endpoint path.
func (b *Bridge) Endpoint() string { return b.server.Endpoint() }

// Dispatch routes one operation through the registry (the embedding
// surface; panics are contained inside the registry).
func (b *Bridge) Dispatch(op string, args map[string]any) map[string]any {
	return b.registry.Dispatch(op, ops.Args(args))
}

// DiagDump renders a compact JSON diagnostic snapshot.
func (b *Bridge) DiagDump() string {
	snap := b.cfg.Snapshot()
	out := map[string]any{
		"version":   Version,
		"uptimeSec": time.Since(b.started).Seconds(),
		"config": map[string]any{
			"upscaler":     snap.Upscaler,
			"trafficBoost": snap.TrafficBoost,
			"ipcEnabled":   snap.IPCEnabled,
			"pipeName":     snap.PipeName,
			"logLevel":     snap.LogLevel.String(),
		},
		"pool":     b.pool.Stats(),
		"ops":      len(b.registry.Names()),
		"features": b.features.Snapshot(),
		"loader":   b.loader.SnapshotAll(),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return `{"version":"` + Version + `"}`
	}
	return string(data)
}

// runBootOps replays the boot script over the pipe as a regular client,
// best-effort: one request per onLoad entry, one reply read per request,
// failures logged and ignored.
func (b *Bridge) runBootOps(path string) {
	data, err := readFileIfPresent(path)
	if err != nil {
		b.log.Warnf("Boot config %s unreadable: %v", path, err)
		return
	}
	if data == nil {
		b.log.Debugf("No boot config at %s (boot ops skipped)", path)
		return
	}

	var doc struct {
		OnLoad []map[string]any `json:"onLoad"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		b.log.Warnf("Boot config %s parse failed: %v", path, err)
		return
	}
	if len(doc.OnLoad) == 0 {
		b.log.Debugf("Boot config %s has no onLoad entries", path)
		return
	}

	c, err := rpc.DialRetry(b.cfg.PipeName(), 4*time.Second)
	if err != nil {
		b.log.Warnf("Boot ops: could not reach pipe server: %v", err)
		return
	}
	defer c.Close()

	for i, entry := range doc.OnLoad {
		if _, ok := entry["op"]; !ok {
			continue
		}
		if _, ok := entry["v"]; !ok {
			entry["v"] = 1
		}
		c.SetDeadline(time.Now().Add(2 * time.Second))
		reply, err := c.CallRaw(entry)
		if err != nil {
			b.log.Warnf("Boot op %d failed: %v", i, err)
			continue
		}
		line, _ := json.Marshal(reply)
		b.log.Infof("Boot op reply: %s", line)
	}
	b.log.Infof("Boot ops processed (%d entries)", len(doc.OnLoad))
}
