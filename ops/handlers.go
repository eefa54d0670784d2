package ops

import (
	"encoding/json"
	"sync"

	"github.com/itskum47/mirrorblade/config"
	"github.com/itskum47/mirrorblade/curve"
	"github.com/itskum47/mirrorblade/features"
	"github.com/itskum47/mirrorblade/fold"
	"github.com/itskum47/mirrorblade/jitter"
	"github.com/itskum47/mirrorblade/loader"
	"github.com/itskum47/mirrorblade/logging"
	"github.com/itskum47/mirrorblade/pool"
	"github.com/itskum47/mirrorblade/scooty"
	"github.com/itskum47/mirrorblade/smooth"
	"github.com/itskum47/mirrorblade/telemetry"
)

// Deps carries the subsystems the operation handlers act on. Nil members
// degrade to structured errors or no-ops, so tests can register just the
// ops under test.
type Deps struct {
	Log       *logging.Logger
	Config    *config.Store
	Pool      *pool.Pool
	Features  *features.Registry
	Fold      *fold.Field
	Smooth    *smooth.Smoother
	Jitter    *jitter.Source
	Scooty    *scooty.Ring
	Telemetry *telemetry.Store
	Loader    *loader.Loader
	Figure8   *curve.Figure8
	Upscaler  config.UpscalerSink

	// DiagDump renders the orchestrator's diagnostic snapshot.
	DiagDump func() string
}

// guarded runs fn under the named feature guard when a registry is attached,
// so a repeatedly failing sink auto-disables instead of taking sessions down.
func (d *Deps) guarded(name string, fn func()) {
	if d.Features != nil {
		d.Features.GuardedRun(name, fn)
		return
	}
	fn()
}

// RegisterAll wires every operation into the registry.
func RegisterAll(r *Registry, d *Deps) {
	registerCore(r, d)
	registerEvaluators(r, d)
	registerLoader(r, d)
	registerStubs(r, d)
}

func registerCore(r *Registry, d *Deps) {
	r.Register("ping", func(Args) (any, error) {
		return map[string]any{"ok": true, "result": "pong"}, nil
	})

	r.Register("diag.dump", func(Args) (any, error) {
		if d.DiagDump == nil {
			return "{}", nil
		}
		return d.DiagDump(), nil
	})

	r.Register("config.reload", func(Args) (any, error) {
		if d.Config == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "config store not attached"}
		}
		d.Config.Load("op")
		d.Config.ApplyRuntime()
		return map[string]any{"ok": true}, nil
	})

	r.Register("config.save", func(Args) (any, error) {
		if d.Config == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "config store not attached"}
		}
		if err := d.Config.Save(); err != nil {
			d.Log.Errorf("Config save failed: %v", err)
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	})

	r.Register("config.get", func(a Args) (any, error) {
		key, err := a.RequireStr("key")
		if err != nil {
			return nil, err
		}
		if d.Config == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "config store not attached"}
		}
		v, err := d.Config.GetKey(key)
		if err != nil {
			return nil, BadArgs("%v", err)
		}
		return map[string]any{"key": key, "value": v}, nil
	})

	r.Register("config.set", func(a Args) (any, error) {
		key, err := a.RequireStr("key")
		if err != nil {
			return nil, err
		}
		if _, ok := a["value"]; !ok {
			return nil, BadArgs("args.value required")
		}
		if d.Config == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "config store not attached"}
		}
		v, err := d.Config.SetKey(key, a["value"])
		if err != nil {
			return nil, BadArgs("%v", err)
		}
		return map[string]any{"set": key, "value": v}, nil
	})

	r.Register("upscaler.enable", func(a Args) (any, error) {
		en := a.Bool("enabled", false)
		if d.Config != nil {
			d.Config.SetUpscalerEnabled(en)
		}
		if d.Upscaler != nil {
			d.guarded("upscaler", func() { d.Upscaler.SetEnabled(en) })
		}
		d.Log.Infof("Upscaler %s", map[bool]string{true: "enabled", false: "disabled"}[en])
		return map[string]any{"ok": true, "result": en}, nil
	})

	r.Register("traffic.mul", func(a Args) (any, error) {
		mult := a.Float("mult", 1.0)
		applied := mult
		if d.Config != nil {
			applied = d.Config.SetTrafficBoost(mult)
		}
		d.Log.Infof("Traffic multiplier set to %.2f", applied)
		return map[string]any{"ok": true, "result": applied}, nil
	})

	r.Register("ops.capabilities", func(Args) (any, error) {
		return map[string]any{"capabilities": r.Names()}, nil
	})

	r.Register("pool.stats", func(Args) (any, error) {
		if d.Pool == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "pool not attached"}
		}
		return d.Pool.Stats(), nil
	})

	r.Register("feature.enable", func(a Args) (any, error) {
		name, err := a.RequireStr("name")
		if err != nil {
			return nil, err
		}
		en := a.Bool("enabled", true)
		d.Features.SetEnabled(name, en)
		return map[string]any{"feature": name, "enabled": en}, nil
	})

	r.Register("feature.state", func(a Args) (any, error) {
		name, err := a.RequireStr("name")
		if err != nil {
			return nil, err
		}
		return d.Features.Get(name), nil
	})
}

func registerEvaluators(r *Registry, d *Deps) {
	r.Register("figure8.evalLissajous12", func(a Args) (any, error) {
		t, err := a.RequireFloat("t")
		if err != nil {
			return nil, err
		}
		x, y := curve.Lissajous12(t,
			a.Float("ax", 1.0), a.Float("ay", 1.0),
			a.Float("nx", 1.0), a.Float("ny", 2.0),
			a.Float("phase", 0.0))
		return map[string]any{"x": x, "y": y}, nil
	})

	r.Register("figure8.evalBernoulli", func(a Args) (any, error) {
		t, err := a.RequireFloat("t")
		if err != nil {
			return nil, err
		}
		x, y := curve.Bernoulli(t, a.Float("a", 1.0))
		return map[string]any{"x": x, "y": y}, nil
	})

	r.Register("figure8.advance", func(a Args) (any, error) {
		x, y := d.Figure8.Advance(a.Float("dt", 0.016))
		return map[string]any{"x": x, "y": y}, nil
	})

	r.Register("figure8.sampleAt", func(a Args) (any, error) {
		t, err := a.RequireFloat("t")
		if err != nil {
			return nil, err
		}
		x, y := d.Figure8.SampleAt(t)
		return map[string]any{"x": x, "y": y}, nil
	})

	r.Register("figure8.set", func(a Args) (any, error) {
		p := d.Figure8.Params()
		data, err := json.Marshal(map[string]any(a))
		if err != nil {
			return nil, BadArgs("%v", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, BadArgs("%v", err)
		}
		d.Figure8.SetParams(p)
		return d.Figure8.Params(), nil
	})

	r.Register("scooty.bump", func(a Args) (any, error) {
		v, err := a.RequireFloat("v")
		if err != nil {
			return nil, err
		}
		d.Scooty.Bump(v)
		return map[string]any{"count": d.Scooty.Len()}, nil
	})

	r.Register("scooty.samples", func(a Args) (any, error) {
		n := a.Int("n", 32)
		return d.Scooty.FormatSamples(n, "scooty"), nil
	})

	r.Register("scooty.snapshot", func(Args) (any, error) {
		return d.Scooty.Compute(), nil
	})

	r.Register("telem.push", func(a Args) (any, error) {
		name, err := a.RequireStr("name")
		if err != nil {
			return nil, err
		}
		d.Telemetry.Push(telemetry.Event{
			Name: name,
			A:    a.Float("a", 0),
			B:    a.Float("b", 0),
			C:    a.Float("c", 0),
			Tag:  a.Str("tag", ""),
		})
		return map[string]any{"pushed": true}, nil
	})

	r.Register("telem.snapshot", func(a Args) (any, error) {
		max := a.Int("max", 64)
		return map[string]any{"ok": true, "events": d.Telemetry.Snapshot(max)}, nil
	})

	r.Register("telem.table", func(a Args) (any, error) {
		max := a.Int("max", 32)
		title := a.Str("title", "telemetry")
		return d.Telemetry.FormatTable(max, title), nil
	})

	r.Register("telem.optin", func(a Args) (any, error) {
		en := a.Bool("enabled", true)
		d.Telemetry.OptIn(en)
		return map[string]any{"optIn": en}, nil
	})

	r.Register("fold.configure", func(a Args) (any, error) {
		data, err := json.Marshal(map[string]any(a))
		if err != nil {
			return nil, BadArgs("%v", err)
		}
		if err := d.Fold.ConfigureJSON(data); err != nil {
			return nil, BadArgs("%v", err)
		}
		return map[string]any{"configured": true, "creases": len(d.Fold.List())}, nil
	})

	r.Register("fold.snapshot", func(Args) (any, error) {
		var out map[string]any
		if err := json.Unmarshal(d.Fold.SnapshotJSON(), &out); err != nil {
			return nil, err
		}
		return out, nil
	})

	r.Register("fold.eval", func(a Args) (any, error) {
		x, err := a.RequireFloat("x")
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"y":     d.Fold.Evaluate(x),
			"delta": d.Fold.EvaluateDelta(x),
			"dydx":  d.Fold.EvaluateDerivative(x),
		}, nil
	})

	r.Register("smooth.configure", func(a Args) (any, error) {
		data, err := json.Marshal(map[string]any(a))
		if err != nil {
			return nil, BadArgs("%v", err)
		}
		if err := d.Smooth.ConfigureJSON(data); err != nil {
			return nil, BadArgs("%v", err)
		}
		return d.Smooth.Params(), nil
	})

	r.Register("smooth.step", func(a Args) (any, error) {
		x, err := a.RequireFloat("x")
		if err != nil {
			return nil, err
		}
		return map[string]any{"y": d.Smooth.Step(a.Float("dt", 0.016), x)}, nil
	})

	r.Register("smooth.peek", func(a Args) (any, error) {
		x, err := a.RequireFloat("x")
		if err != nil {
			return nil, err
		}
		return map[string]any{"y": d.Smooth.PeekNext(a.Float("dt", 0.016), x)}, nil
	})

	r.Register("smooth.snapshot", func(Args) (any, error) {
		return d.Smooth.SnapshotState(), nil
	})

	r.Register("jitter.advance", func(a Args) (any, error) {
		d.Jitter.Advance(a.Float("dt", 0.016))
		x, y := d.Jitter.CurrentJitter()
		return map[string]any{"x": x, "y": y}, nil
	})

	r.Register("jitter.current", func(Args) (any, error) {
		x, y := d.Jitter.CurrentJitter()
		return map[string]any{"x": x, "y": y}, nil
	})

	r.Register("jitter.set", func(a Args) (any, error) {
		p := d.Jitter.Params()
		data, err := json.Marshal(map[string]any(a))
		if err != nil {
			return nil, BadArgs("%v", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, BadArgs("%v", err)
		}
		d.Jitter.SetParams(p)
		return d.Jitter.Params(), nil
	})
}

func registerLoader(r *Registry, d *Deps) {
	r.Register("loader.load", func(a Args) (any, error) {
		cfgObj, ok := a["config"].(map[string]any)
		if !ok {
			return nil, BadArgs("args.config must be an object")
		}
		cfg := make(map[string]json.RawMessage, len(cfgObj))
		for k, v := range cfgObj {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, BadArgs("args.config.%s: %v", k, err)
			}
			cfg[k] = raw
		}
		d.Loader.Load(cfg, NumberEnv(a.Object("env")))
		return map[string]any{"loaded": true}, nil
	})

	r.Register("loader.loadFile", func(a Args) (any, error) {
		path, err := a.RequireStr("path")
		if err != nil {
			return nil, err
		}
		if err := d.Loader.LoadFile(path, NumberEnv(a.Object("env"))); err != nil {
			return nil, err
		}
		return map[string]any{"loaded": true, "path": path}, nil
	})

	r.Register("loader.snapshot", func(Args) (any, error) {
		return d.Loader.SnapshotAll(), nil
	})

	r.Register("compound.get", func(a Args) (any, error) {
		name, err := a.RequireStr("name")
		if err != nil {
			return nil, err
		}
		c, _ := d.Loader.Get("compound").(*loader.Compound)
		if c == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "compound service not registered"}
		}
		v, ok := c.Get(name)
		if !ok {
			return nil, BadArgs("unknown compound entity: %s", name)
		}
		return map[string]any{"ok": true, "result": v}, nil
	})

	r.Register("impound.check", func(a Args) (any, error) {
		name, err := a.RequireStr("name")
		if err != nil {
			return nil, err
		}
		im, _ := d.Loader.Get("impound").(*loader.Impound)
		if im == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "impound service not registered"}
		}
		return map[string]any{"ok": true, "result": im.IsImpounded(name)}, nil
	})

	r.Register("volphi.get", func(Args) (any, error) {
		vp, _ := d.Loader.Get("volumetricPhi").(*loader.VolPhi)
		if vp == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "volumetricPhi service not registered"}
		}
		return vp.Get(), nil
	})

	r.Register("volphi.set", func(a Args) (any, error) {
		vp, _ := d.Loader.Get("volumetricPhi").(*loader.VolPhi)
		if vp == nil {
			return nil, &OpError{Code: CodeUnavailable, Msg: "volumetricPhi service not registered"}
		}
		p := vp.Get()
		data, err := json.Marshal(map[string]any(a))
		if err != nil {
			return nil, BadArgs("%v", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, BadArgs("%v", err)
		}
		vp.Stage(p)
		vp.Apply()
		return vp.Get(), nil
	})
}

// registerStubs wires the structured-echo operations. They validate inputs
// and echo a structured acknowledgment; real engine integration is the
// host's concern.
func registerStubs(r *Registry, d *Deps) {
	echo := func(fields map[string]any) Handler {
		return func(Args) (any, error) { return fields, nil }
	}

	r.Register("ui.toast", func(a Args) (any, error) {
		text, err := a.RequireStr("text")
		if err != nil {
			return nil, err
		}
		ms := a.Int("ms", 2000)
		if ms <= 0 {
			return nil, BadArgs("ms must be > 0")
		}
		d.Log.Infof("[toast] %s (%d ms)", text, ms)
		return map[string]any{"status": "shown", "ms": ms}, nil
	})

	r.Register("timescale.set", func(a Args) (any, error) {
		scale, err := a.RequireFloat("scale")
		if err != nil {
			return nil, err
		}
		if scale <= 0 || scale > 10 {
			return nil, BadArgs("scale out of range (0,10]")
		}
		return map[string]any{"scale": scale}, nil
	})

	r.Register("lod.pin", func(a Args) (any, error) {
		return map[string]any{"pinned": true, "ttl": a.Int("ttl", 3000), "tag": a.Str("tag", "default")}, nil
	})

	// NPC
	r.Register("npc.freeze", echo(map[string]any{"npc": "frozen"}))
	r.Register("npc.unfreeze", echo(map[string]any{"npc": "unfrozen"}))
	r.Register("npc.spawn", func(a Args) (any, error) {
		return map[string]any{"npc": a.Str("id", "npc_default"), "spawned": true}, nil
	})
	r.Register("npc.despawn", func(a Args) (any, error) {
		return map[string]any{"npc": a.Str("id", "npc_default"), "despawned": true}, nil
	})
	r.Register("npc.teleport", func(a Args) (any, error) {
		return map[string]any{"npc": "teleported", "pos": a.Object("pos")}, nil
	})

	// Vehicle
	r.Register("vehicle.spawn", func(a Args) (any, error) {
		return map[string]any{"vehicle": a.Str("id", "Vehicle.v_default"), "spawned": true}, nil
	})
	r.Register("vehicle.despawn", func(a Args) (any, error) {
		return map[string]any{"vehicle": a.Str("id", "Vehicle.v_default"), "despawned": true}, nil
	})
	r.Register("vehicle.boost", func(a Args) (any, error) {
		return map[string]any{"boostFactor": a.Float("factor", 2.0)}, nil
	})
	r.Register("vehicle.paint", func(a Args) (any, error) {
		return map[string]any{"painted": true, "color": a.Str("color", "red")}, nil
	})
	r.Register("vehicle.repair", echo(map[string]any{"vehicle": "repaired"}))

	// Traffic
	r.Register("traffic.clear", echo(map[string]any{"traffic": "cleared"}))
	r.Register("traffic.freeze", echo(map[string]any{"traffic": "frozen"}))
	r.Register("traffic.unfreeze", echo(map[string]any{"traffic": "unfrozen"}))
	r.Register("traffic.route", func(a Args) (any, error) {
		route, _ := a["route"].([]any)
		if route == nil {
			route = []any{}
		}
		return map[string]any{"trafficRoute": route}, nil
	})
	r.Register("traffic.persist", func(a Args) (any, error) {
		return map[string]any{"persist": a.Bool("enabled", true)}, nil
	})

	// AV
	r.Register("av.spawn", func(a Args) (any, error) {
		return map[string]any{"av": a.Str("id", "AV.default"), "spawned": true}, nil
	})
	r.Register("av.route.set", func(a Args) (any, error) {
		pts, _ := a["points"].([]any)
		if pts == nil {
			pts = []any{}
		}
		return map[string]any{"avRoute": pts}, nil
	})
	r.Register("av.despawn", func(a Args) (any, error) {
		return map[string]any{"av": a.Str("id", "AV.default"), "despawned": true}, nil
	})
	r.Register("av.land", echo(map[string]any{"av": "landed"}))
	r.Register("av.takeoff", echo(map[string]any{"av": "takeoff"}))

	// Train
	r.Register("train.persist", func(a Args) (any, error) {
		return map[string]any{"trainPersist": a.Bool("enabled", true)}, nil
	})
	r.Register("train.spawn", func(a Args) (any, error) {
		return map[string]any{"train": a.Str("id", "train_default"), "spawned": true}, nil
	})
	r.Register("train.despawn", func(a Args) (any, error) {
		return map[string]any{"train": a.Str("id", "train_default"), "despawned": true}, nil
	})
	r.Register("train.freeze", echo(map[string]any{"train": "frozen"}))
	r.Register("train.unfreeze", echo(map[string]any{"train": "unfrozen"}))

	// UI
	r.Register("ui.alert", func(a Args) (any, error) {
		return map[string]any{"type": "alert", "text": a.Str("text", "Alert"), "ms": a.Int("ms", 2000)}, nil
	})
	r.Register("ui.marker.add", func(a Args) (any, error) {
		return map[string]any{"marker": "added", "tag": a.Str("tag", "marker"), "pos": a.Object("pos")}, nil
	})
	r.Register("ui.marker.remove", func(a Args) (any, error) {
		return map[string]any{"marker": "removed", "tag": a.Str("tag", "marker")}, nil
	})
	r.Register("ui.hud.toggle", func(a Args) (any, error) {
		return map[string]any{"hudVisible": a.Bool("visible", true)}, nil
	})

	// Time / weather
	r.Register("time.set", func(a Args) (any, error) {
		hour := a.Int("hour", 12)
		minute := a.Int("minute", 0)
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, BadArgs("hour/minute out of range")
		}
		return map[string]any{"timeSet": true, "hour": hour, "minute": minute}, nil
	})
	r.Register("time.pause", echo(map[string]any{"time": "paused"}))
	r.Register("time.resume", echo(map[string]any{"time": "resumed"}))
	r.Register("weather.set", func(a Args) (any, error) {
		return map[string]any{"weatherPreset": a.Str("preset", "Clear"), "blend": a.Float("blend", 1.0)}, nil
	})

	// Player
	r.Register("player.teleport", func(a Args) (any, error) {
		return map[string]any{"teleported": true, "pos": a.Object("pos"), "yaw": a.Float("yaw", 0)}, nil
	})
	r.Register("player.heal", func(a Args) (any, error) {
		return map[string]any{"healed": a.Float("amount", 100)}, nil
	})
	r.Register("player.damage", func(a Args) (any, error) {
		return map[string]any{"damaged": a.Float("amount", 10), "type": a.Str("type", "generic")}, nil
	})
	r.Register("player.inventory.add", func(a Args) (any, error) {
		return map[string]any{"added": a.Str("item", "Item.Default"), "count": a.Int("count", 1)}, nil
	})
	r.Register("player.inventory.remove", func(a Args) (any, error) {
		return map[string]any{"removed": a.Str("item", "Item.Default"), "count": a.Int("count", 1)}, nil
	})

	// World / streaming / LOD
	r.Register("world.spawn.explosion", func(a Args) (any, error) {
		return map[string]any{
			"explosion": "queued",
			"pos":       a.Object("pos"),
			"radius":    a.Float("radius", 5.0),
			"power":     a.Float("power", 1.0),
		}, nil
	})
	r.Register("world.light.spawn", func(a Args) (any, error) {
		return map[string]any{
			"light":     "spawned",
			"tag":       a.Str("tag", "light1"),
			"pos":       a.Object("pos"),
			"intensity": a.Float("intensity", 1000.0),
			"color":     a.Str("color", "#FFFFFF"),
		}, nil
	})
	r.Register("world.light.remove", func(a Args) (any, error) {
		return map[string]any{"light": "removed", "tag": a.Str("tag", "light1")}, nil
	})
	r.Register("world.streamgrid.recenter", func(a Args) (any, error) {
		return map[string]any{"streamgrid": "recentered", "mode": a.Str("mode", "auto"), "pos": a.Object("pos")}, nil
	})
	r.Register("world.lod.lock", func(a Args) (any, error) {
		return map[string]any{"lodLocked": true, "ttl": a.Int("ttl", 3000), "tag": a.Str("tag", "lodlock")}, nil
	})
	r.Register("world.lod.unlock", func(a Args) (any, error) {
		return map[string]any{"lodLocked": false, "tag": a.Str("tag", "lodlock")}, nil
	})

	// Debug
	r.Register("debug.log", func(a Args) (any, error) {
		level := a.Str("level", "info")
		msg := a.Str("msg", "(empty)")
		switch logging.ParseLevel(level) {
		case logging.Trace:
			d.Log.Tracef("[debug] %s", msg)
		case logging.Debug:
			d.Log.Debugf("[debug] %s", msg)
		case logging.Warn:
			d.Log.Warnf("[debug] %s", msg)
		case logging.Error:
			d.Log.Errorf("[debug] %s", msg)
		default:
			d.Log.Infof("[debug] %s", msg)
		}
		return map[string]any{"logged": true, "level": level, "msg": msg}, nil
	})
	r.Register("debug.capture.screenshot", func(a Args) (any, error) {
		return map[string]any{"screenshot": "queued", "path": a.Str("path", "screenshot.png")}, nil
	})

	// Upscaler / graphics target
	var targetMu sync.Mutex
	target := config.UpscalerTarget{OutputWidth: 3840, OutputHeight: 2160}

	r.Register("upscaler.set", func(a Args) (any, error) {
		mode := a.Str("mode", "off")
		if mode != "off" && mode != "fsr2" {
			return nil, BadArgs("mode must be off|fsr2")
		}
		sharp := a.Float("sharpness", 0.6)
		if d.Upscaler != nil {
			d.guarded("upscaler", func() {
				d.Upscaler.SetMode(mode)
				d.Upscaler.SetParams(config.UpscalerParams{Mode: mode, Sharpness: sharp})
			})
		}
		return map[string]any{"mode": mode, "sharpness": sharp}, nil
	})

	r.Register("graphics.target.set", func(a Args) (any, error) {
		targetMu.Lock()
		target.OutputWidth = uint32(a.Int("width", 3840))
		target.OutputHeight = uint32(a.Int("height", 2160))
		t := target
		targetMu.Unlock()
		if d.Upscaler != nil {
			d.Upscaler.Resize(t)
		}
		return map[string]any{"width": t.OutputWidth, "height": t.OutputHeight}, nil
	})

	r.Register("graphics.internal.scale", func(a Args) (any, error) {
		s := a.Float("scale", 0.5)
		if s <= 0 || s > 1 {
			return nil, BadArgs("scale out of range (0,1]")
		}
		targetMu.Lock()
		target.RenderWidth = uint32(maxf(16, s*float64(target.OutputWidth)))
		target.RenderHeight = uint32(maxf(16, s*float64(target.OutputHeight)))
		t := target
		targetMu.Unlock()
		if d.Upscaler != nil {
			d.Upscaler.Resize(t)
		}
		return map[string]any{"renderWidth": t.RenderWidth, "renderHeight": t.RenderHeight}, nil
	})
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
