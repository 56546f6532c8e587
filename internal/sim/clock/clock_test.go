package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"avatarsim.ai/internal/sim/world"
	"avatarsim.ai/internal/sim/worldtest"
)

type gatedDispatcher struct {
	calls    atomic.Int32
	inflight atomic.Int32
	maxSeen  atomic.Int32
	release  chan struct{}
}

func (g *gatedDispatcher) Dispatch(ctx context.Context, id string) error {
	g.calls.Add(1)
	n := g.inflight.Add(1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if g.release != nil {
		<-g.release
	}
	g.inflight.Add(-1)
	return nil
}

func TestTickDelay(t *testing.T) {
	cases := []struct {
		s    world.SimulationSettings
		want time.Duration
	}{
		{world.SimulationSettings{Mode: world.ModeTurnBased, TurnDurationMs: 1000}, time.Second},
		{world.SimulationSettings{Mode: world.ModeTurnBased, TurnDurationMs: 0}, MinTick},
		{world.SimulationSettings{Mode: world.ModeTimeBased, Speed: 1}, 50 * time.Millisecond},
		{world.SimulationSettings{Mode: world.ModeTimeBased, Speed: 2}, 25 * time.Millisecond},
		{world.SimulationSettings{Mode: world.ModeTimeBased, Speed: 100}, MinTick},
		{world.SimulationSettings{Mode: world.ModeTimeBased, Speed: 0}, 50 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := TickDelay(tc.s); got != tc.want {
			t.Fatalf("TickDelay(%+v)=%v want %v", tc.s, got, tc.want)
		}
	}
}

func TestTick_WaitsForEveryDispatch(t *testing.T) {
	h := worldtest.NewHarness(t, worldtest.Trio())
	g := &gatedDispatcher{release: make(chan struct{})}
	c := New(h.Store, g)

	done := make(chan int, 1)
	go func() { done <- c.Tick(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for g.inflight.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("dispatches not concurrent: inflight=%d", g.inflight.Load())
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case <-done:
		t.Fatalf("tick returned before dispatches settled")
	default:
	}
	close(g.release)
	if n := <-done; n != 3 {
		t.Fatalf("dispatched=%d", n)
	}
}

func TestRun_TicksOnlyWhileRunning(t *testing.T) {
	w := worldtest.Trio()
	w.Settings.TurnDurationMs = 10
	h := worldtest.NewHarness(t, w)
	g := &gatedDispatcher{}
	c := New(h.Store, g)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	time.Sleep(50 * time.Millisecond)
	if c.Ticks() != 0 {
		t.Fatalf("ticked while paused")
	}

	h.Store.SetRunning(true)
	deadline := time.Now().Add(2 * time.Second)
	for c.Ticks() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("clock did not tick: ticks=%d", c.Ticks())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if g.maxSeen.Load() > 3 {
		t.Fatalf("ticks overlapped: %d dispatches in flight", g.maxSeen.Load())
	}

	h.Store.SetRunning(false)
	time.Sleep(30 * time.Millisecond)
	paused := c.Ticks()
	time.Sleep(60 * time.Millisecond)
	if c.Ticks() != paused {
		t.Fatalf("ticked after pause: %d -> %d", paused, c.Ticks())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := worldtest.NewHarness(t, worldtest.Trio())
	c := New(h.Store, &gatedDispatcher{})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}
