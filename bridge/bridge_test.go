package bridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itskum47/mirrorblade/config"
	"github.com/itskum47/mirrorblade/rpc"
)

type recordingUpscaler struct {
	enabled atomic.Bool
	calls   atomic.Int64
}

func (u *recordingUpscaler) SetEnabled(en bool) {
	u.enabled.Store(en)
	u.calls.Add(1)
}
func (u *recordingUpscaler) SetMode(string)                  {}
func (u *recordingUpscaler) SetParams(config.UpscalerParams) {}
func (u *recordingUpscaler) Resize(config.UpscalerTarget)    {}

type recordingTraffic struct{ mult atomic.Uint64 }

func (t *recordingTraffic) SetMultiplier(m float64) {
	t.mult.Store(uint64(m * 100))
}

func initTestBridge(t *testing.T, mutate func(*Options)) *Bridge {
	t.Helper()
	opts := Options{
		Root:        t.TempDir(),
		PipeName:    filepath.Join(t.TempDir(), "bridge.sock"),
		SkipBootOps: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	b, err := Init(opts)
	require.NoError(t, err)
	t.Cleanup(b.Shutdown)
	return b
}

func TestInitAndPingOverPipe(t *testing.T) {
	b := initTestBridge(t, nil)

	c, err := rpc.DialRetry(b.Config().PipeName(), 3*time.Second)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Call("ping", nil)
	require.NoError(t, err)
	assert.Equal(t, true, reply["ok"])
	assert.Equal(t, "pong", reply["result"])
}

func TestDispatchDirect(t *testing.T) {
	b := initTestBridge(t, nil)
	reply := b.Dispatch("traffic.mul", map[string]any{"mult": 100.0})
	assert.Equal(t, true, reply["ok"])
	assert.Equal(t, 50.0, reply["result"])
	assert.Equal(t, 50.0, b.Config().TrafficBoost())
}

func TestDiagDumpShape(t *testing.T) {
	b := initTestBridge(t, nil)
	var diag map[string]any
	require.NoError(t, json.Unmarshal([]byte(b.DiagDump()), &diag))
	assert.Equal(t, Version, diag["version"])
	assert.Contains(t, diag, "pool")
	assert.Contains(t, diag, "config")
	assert.Greater(t, diag["ops"].(float64), 70.0)
}

func TestHotReloadReachesSink(t *testing.T) {
	up := &recordingUpscaler{}
	b := initTestBridge(t, func(o *Options) { o.Upscaler = up })

	// External edit: flip upscaler on disk; no RPC involved.
	path := b.Config().Path()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	doc := map[string]any{"version": 1, "upscaler": true}
	data, _ := json.Marshal(doc)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if up.enabled.Load() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.True(t, up.enabled.Load(), "upscaler sink should observe the on-disk change")
}

func TestBootOpsRun(t *testing.T) {
	dir := t.TempDir()
	bootPath := filepath.Join(dir, "config.json")
	boot := map[string]any{
		"onLoad": []any{
			map[string]any{"op": "traffic.mul", "args": map[string]any{"mult": 7.0}},
			map[string]any{"v": 1, "op": "ping"},
		},
	}
	data, _ := json.Marshal(boot)
	require.NoError(t, os.WriteFile(bootPath, data, 0o644))

	b := initTestBridge(t, func(o *Options) {
		o.Root = dir
		o.SkipBootOps = false
		o.BootConfigPath = bootPath
	})

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if b.Config().TrafficBoost() == 7.0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(t, 7.0, b.Config().TrafficBoost(), "boot op should have applied")
}

func TestShutdownIsCleanAndOrdered(t *testing.T) {
	b := initTestBridge(t, nil)
	pipe := b.Config().PipeName()

	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown hung")
	}

	// Pool drained and stopped; no new sessions served.
	assert.False(t, b.Pool().IsRunning())
	_, err := rpc.Dial(pipe)
	assert.Error(t, err, "endpoint should be gone after shutdown")
}

func TestCompoundChainingOverWire(t *testing.T) {
	b := initTestBridge(t, nil)
	c, err := rpc.DialRetry(b.Config().PipeName(), 3*time.Second)
	require.NoError(t, err)
	defer c.Close()

	reply, err := c.Call("loader.load", map[string]any{
		"config": map[string]any{
			"compound": map[string]any{
				"entities": []any{
					map[string]any{"name": "a", "equation": "2+3"},
					map[string]any{"name": "b", "equation": "a*4"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, true, reply["ok"])

	reply, err = c.Call("compound.get", map[string]any{"name": "b"})
	require.NoError(t, err)
	require.Equal(t, true, reply["ok"])
	assert.Equal(t, 20.0, reply["result"])
}

func TestTrafficSinkReceivesApply(t *testing.T) {
	tr := &recordingTraffic{}
	b := initTestBridge(t, func(o *Options) { o.Traffic = tr })
	b.Dispatch("config.set", map[string]any{"key": "trafficBoost", "value": 2.0})
	b.Config().ApplyRuntime()
	assert.Equal(t, uint64(200), tr.mult.Load())
}
