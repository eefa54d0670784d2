package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itskum47/mirrorblade/logging"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 4
	return cfg
}

func TestStartStopIdempotent(t *testing.T) {
	p := New(testConfig(), logging.New())
	p.Start()
	p.Start()
	if !p.IsRunning() {
		t.Fatal("expected running after Start")
	}
	p.Stop()
	p.Stop()
	if p.IsRunning() {
		t.Fatal("expected stopped after Stop")
	}
}

func TestEnqueueWhenStoppedFails(t *testing.T) {
	p := New(testConfig(), logging.New())
	if p.Enqueue(LaneNormal, func() {}) {
		t.Fatal("enqueue should fail on a stopped pool")
	}
	p.Start()
	p.Stop()
	if p.Enqueue(LaneHigh, func() {}) {
		t.Fatal("enqueue should fail after Stop")
	}
}

func TestDrainAccounting(t *testing.T) {
	p := New(testConfig(), logging.New())
	p.Start()

	var done atomic.Uint64
	const total = 400
	lanes := []Lane{LaneHigh, LaneNormal, LaneLow, LaneIO}
	for i := 0; i < total; i++ {
		lane := lanes[i%len(lanes)]
		if !p.Enqueue(lane, func() { done.Add(1) }) {
			t.Fatalf("enqueue %d failed while running", i)
		}
	}
	p.Stop()

	if got := done.Load(); got != total {
		t.Fatalf("drain on stop: executed %d of %d", got, total)
	}
	s := p.Stats()
	sumExec := s.Executed.High + s.Executed.Normal + s.Executed.Low + s.Executed.IO
	sumEnq := s.Enqueued.High + s.Enqueued.Normal + s.Enqueued.Low + s.Enqueued.IO
	if sumExec != sumEnq {
		t.Fatalf("executed %d != enqueued %d after drain", sumExec, sumEnq)
	}
}

func TestAbortDropsPending(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.DrainOnStop = false
	p := New(cfg, logging.New())
	p.Start()

	block := make(chan struct{})
	started := make(chan struct{})
	p.Enqueue(LaneHigh, func() { close(started); <-block })
	<-started
	var ran atomic.Uint64
	for i := 0; i < 100; i++ {
		p.Enqueue(LaneLow, func() { ran.Add(1) })
	}

	// Stop clears the queues while the worker is still parked in the first
	// task; unblock it afterwards so Stop can join.
	done := make(chan struct{})
	go func() { p.Stop(); close(done) }()
	time.Sleep(50 * time.Millisecond)
	close(block)
	<-done

	if got := ran.Load(); got != 0 {
		t.Fatalf("expected pending tasks dropped with DrainOnStop=false, ran %d", got)
	}
}

func TestLaneFIFO(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	p := New(cfg, logging.New())
	p.Start()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		p.Enqueue(LaneNormal, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	p.Stop()

	if len(order) != 50 {
		t.Fatalf("expected 50 executions, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("lane order violated at %d: got %d", i, v)
		}
	}
}

func TestFlushWaitsForQuiescence(t *testing.T) {
	p := New(testConfig(), logging.New())
	p.Start()
	defer p.Stop()

	var done atomic.Uint64
	for i := 0; i < 200; i++ {
		p.Enqueue(LaneNormal, func() {
			time.Sleep(time.Millisecond)
			done.Add(1)
		})
	}
	p.Flush()
	// Flush returns once every lane is empty; tasks already popped may still
	// be running, at most one per worker.
	s := p.Stats()
	if pending := s.Pending.High + s.Pending.Normal + s.Pending.Low + s.Pending.IO; pending != 0 {
		t.Fatalf("flush returned with %d tasks still queued", pending)
	}
	if got := done.Load(); got+uint64(testConfig().Workers) < 200 {
		t.Fatalf("flush returned with %d of 200 done", got)
	}
}

func TestPanicIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	p := New(cfg, logging.New())
	p.Start()

	var after atomic.Uint64
	p.Enqueue(LaneHigh, func() { panic("boom") })
	p.Enqueue(LaneHigh, func() { after.Add(1) })
	p.Stop()

	if after.Load() != 1 {
		t.Fatal("task after a panic did not run")
	}
	s := p.Stats()
	if s.Executed.High != 2 {
		t.Fatalf("panicking task should still count as executed, got %d", s.Executed.High)
	}
}

func TestWeightedRatios(t *testing.T) {
	if testing.Short() {
		t.Skip("saturation test")
	}
	cfg := Config{Workers: 2, WeightHigh: 8, WeightNormal: 4, WeightLow: 1, WeightIO: 2, DrainOnStop: false}
	p := New(cfg, logging.New())
	p.Start()

	// Keep all lanes saturated by refilling from producers.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, lane := range []Lane{LaneHigh, LaneNormal, LaneLow, LaneIO} {
		lane := lane
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p.Enqueue(lane, func() { time.Sleep(200 * time.Microsecond) })
				// Bound the backlog so the queues stay hot but small.
				if s := p.Stats(); s.Pending.High > 500 {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	time.Sleep(3 * time.Second)
	close(stop)
	wg.Wait()
	s := p.Stats()
	p.Stop()

	ratio := func(a, b uint64) float64 { return float64(a) / float64(b) }
	if s.Executed.Normal == 0 || s.Executed.Low == 0 || s.Executed.IO == 0 {
		t.Fatalf("lanes starved: %+v", s.Executed)
	}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"high/normal", ratio(s.Executed.High, s.Executed.Normal), 2.0},
		{"normal/io", ratio(s.Executed.Normal, s.Executed.IO), 2.0},
		{"io/low", ratio(s.Executed.IO, s.Executed.Low), 2.0},
	}
	for _, c := range checks {
		if c.got < c.want*0.75 || c.got > c.want*1.25 {
			t.Errorf("%s ratio %.2f, want ~%.1f (executed %+v)", c.name, c.got, c.want, s.Executed)
		}
	}
}

func TestEWMASeedsOnFirstSample(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	p := New(cfg, logging.New())
	p.Start()
	p.Enqueue(LaneNormal, func() { time.Sleep(2 * time.Millisecond) })
	p.Flush()
	p.Stop()
	s := p.Stats()
	if s.EWMAUsec <= 0 {
		t.Fatalf("ewma not seeded: %f", s.EWMAUsec)
	}
}
