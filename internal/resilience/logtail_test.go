package resilience_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/fentz26/taskdeck/internal/resilience"
	"github.com/fentz26/taskdeck/internal/resilience/resiliencetest"
	"github.com/rs/zerolog"
)

type staticConn struct {
	mu        sync.Mutex
	connected bool
}

func (c *staticConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *staticConn) set(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

type tailFixture struct {
	clock    *resiliencetest.ManualClock
	registry *resilience.IntervalRegistry
	conn     *staticConn
	renderer *recordingRenderer
	tail     *resilience.LogTail[string]

	mu      sync.Mutex
	fetches []string
	fail    bool
	block   map[string]chan struct{}
}

func newTailFixture() *tailFixture {
	f := &tailFixture{
		clock:    resiliencetest.NewManualClock(),
		conn:     &staticConn{connected: true},
		renderer: &recordingRenderer{},
		block:    make(map[string]chan struct{}),
	}
	f.registry = resilience.NewIntervalRegistry(f.clock, zerolog.Nop())
	f.tail = resilience.NewLogTail(resilience.LogTailConfig[string]{
		Kind:     resilience.PollerSchedulerLog,
		Interval: logEvery,
		Registry: f.registry,
		Conn:     f.conn,
		Fetch:    f.fetch,
		Renderer: f.renderer,
		Logger:   zerolog.Nop(),
	})
	return f
}

func (f *tailFixture) fetch(ctx context.Context, taskID string) (string, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, taskID)
	fail := f.fail
	wait := f.block[taskID]
	f.mu.Unlock()
	if wait != nil {
		<-wait
	}
	if fail {
		return "", errors.New("connection refused")
	}
	return "logs", nil
}

func (f *tailFixture) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func TestLogTail_SelectSameTaskKeepsTimer(t *testing.T) {
	f := newTailFixture()
	ctx := context.Background()

	f.tail.Select(ctx, "X")
	first := f.registry.Handle(resilience.PollerSchedulerLog)
	if first == nil {
		t.Fatal("Expected a log timer after select")
	}
	f.tail.Select(ctx, "X")
	second := f.registry.Handle(resilience.PollerSchedulerLog)

	if first.ID != second.ID {
		t.Errorf("Expected handle %d to be kept, got %d", first.ID, second.ID)
	}
	if f.fetchCount() != 1 {
		t.Errorf("Expected 1 fetch, got %d", f.fetchCount())
	}
	if f.tail.State() != resilience.TailActive {
		t.Errorf("Expected state '%s', got '%s'", resilience.TailActive, f.tail.State())
	}
}

func TestLogTail_SwitchingTasksReplacesTimer(t *testing.T) {
	f := newTailFixture()
	ctx := context.Background()

	f.tail.Select(ctx, "X")
	f.tail.Select(ctx, "Y")

	if got := len(f.clock.ActiveWithInterval(logEvery)); got != 1 {
		t.Fatalf("Expected 1 log timer, got %d", got)
	}
	f.clock.Advance(logEvery)

	renders := f.renderer.renders()
	last := renders[len(renders)-1]
	if last != "Y:logs" {
		t.Errorf("Expected last render 'Y:logs', got '%s'", last)
	}
}

func TestLogTail_StaleResponseIsDiscarded(t *testing.T) {
	f := newTailFixture()
	ctx := context.Background()
	release := make(chan struct{})
	f.block["X"] = release

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.tail.Select(ctx, "X")
	}()

	// Wait until the X fetch is in flight.
	for f.fetchCount() == 0 {
		runtime.Gosched()
	}
	f.tail.Select(ctx, "Y")
	close(release)
	<-done

	for _, r := range f.renderer.renders() {
		if r == "X:logs" {
			t.Error("Expected the X response to be discarded")
		}
	}
	if f.tail.Selected() != "Y" {
		t.Errorf("Expected selection 'Y', got '%s'", f.tail.Selected())
	}
	if got := len(f.clock.ActiveWithInterval(logEvery)); got != 1 {
		t.Errorf("Expected 1 log timer, got %d", got)
	}
}

func TestLogTail_SelectWhileDisconnected(t *testing.T) {
	f := newTailFixture()
	f.conn.set(false)

	f.tail.Select(context.Background(), "X")

	if f.tail.AutoRefreshing() {
		t.Error("Expected no timer while disconnected")
	}
	if f.tail.State() != resilience.TailSuspended {
		t.Errorf("Expected state '%s', got '%s'", resilience.TailSuspended, f.tail.State())
	}
	if on, ok := f.renderer.lastAutoRefresh(); !ok || on {
		t.Error("Expected auto-refresh indicator to be off")
	}
}

func TestLogTail_TickFailureSuspends(t *testing.T) {
	f := newTailFixture()
	f.tail.Select(context.Background(), "X")

	f.mu.Lock()
	f.fail = true
	f.mu.Unlock()
	f.clock.Advance(logEvery)

	if f.tail.AutoRefreshing() {
		t.Error("Expected timer to stop after a failed tick")
	}
	if f.tail.Selected() != "X" {
		t.Error("Expected selection to be kept")
	}

	f.mu.Lock()
	f.fail = false
	f.mu.Unlock()
	f.tail.Resume()
	if !f.tail.AutoRefreshing() {
		t.Error("Expected resume to restart the timer")
	}
}

func TestLogTail_ClearDropsSelection(t *testing.T) {
	f := newTailFixture()
	f.tail.Select(context.Background(), "X")
	f.tail.Clear()

	if f.tail.Selected() != "" {
		t.Errorf("Expected empty selection, got '%s'", f.tail.Selected())
	}
	if f.tail.AutoRefreshing() {
		t.Error("Expected timer to be cancelled")
	}
	if f.tail.State() != resilience.TailIdle {
		t.Errorf("Expected state '%s', got '%s'", resilience.TailIdle, f.tail.State())
	}
	f.tail.Resume()
	if f.fetchCount() != 1 {
		t.Errorf("Expected resume without selection not to fetch, got %d fetches", f.fetchCount())
	}
	if err := f.tail.Refresh(context.Background()); !errors.Is(err, resilience.ErrNoSelection) {
		t.Errorf("Expected ErrNoSelection, got %v", err)
	}
}

func TestLogTail_RestartRefetches(t *testing.T) {
	f := newTailFixture()
	ctx := context.Background()
	f.tail.Select(ctx, "X")
	before := f.registry.Handle(resilience.PollerSchedulerLog).ID

	if err := f.tail.Restart(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if f.fetchCount() != 2 {
		t.Errorf("Expected 2 fetches, got %d", f.fetchCount())
	}
	if f.registry.Handle(resilience.PollerSchedulerLog).ID == before {
		t.Error("Expected a new timer after restart")
	}
}

func TestLogTail_SuspendDuringSelectStaysConsistent(t *testing.T) {
	for i := 0; i < 200; i++ {
		f := newTailFixture()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.tail.Select(context.Background(), "X")
		}()
		go func() {
			defer wg.Done()
			runtime.Gosched()
			f.tail.Suspend()
		}()
		wg.Wait()

		active := f.tail.State() == resilience.TailActive
		running := f.tail.AutoRefreshing()
		if active != running {
			t.Fatalf("Run %d: state '%s' disagrees with auto-refresh %v", i, f.tail.State(), running)
		}
		if last, ok := f.renderer.lastAutoRefresh(); ok && last != running {
			t.Fatalf("Run %d: renderer shows auto-refresh %v, timer running %v", i, last, running)
		}
	}
}

func TestLogTail_DisconnectWhileLoading(t *testing.T) {
	f := newTailFixture()
	release := make(chan struct{})
	f.block["X"] = release

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.tail.Select(context.Background(), "X")
	}()
	for f.fetchCount() == 0 {
		runtime.Gosched()
	}
	f.conn.set(false)
	f.tail.Suspend()
	close(release)
	<-done

	if f.tail.State() != resilience.TailSuspended {
		t.Errorf("Expected state '%s', got '%s'", resilience.TailSuspended, f.tail.State())
	}
	if f.tail.AutoRefreshing() {
		t.Error("Expected no log timer while disconnected")
	}
	if last, _ := f.renderer.lastAutoRefresh(); last {
		t.Error("Expected renderer to show auto-refresh off")
	}
}
