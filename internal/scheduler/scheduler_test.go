package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fentz26/taskdeck/internal/connectors"
	"github.com/fentz26/taskdeck/internal/models"
	"github.com/fentz26/taskdeck/internal/store"
	"github.com/rs/zerolog"
)

// mockConnector records calls and optionally blocks until released.
type mockConnector struct {
	name     string
	calls    atomic.Int32
	exitCode int
	gate     chan struct{}
}

func (m *mockConnector) Name() string {
	return m.name
}

func (m *mockConnector) Execute(ctx context.Context, cmd string, args []string) (*connectors.ExecResult, error) {
	m.calls.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &connectors.ExecResult{
		Command:  cmd,
		Args:     args,
		ExitCode: m.exitCode,
		Stdout:   "mock output\nsecond line",
	}, nil
}

func (m *mockConnector) IsAllowed(cmd string, args []string) bool {
	return true
}

func TestRunOnceAppendsOutput(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	createSchedulerTask(t, s, models.SchedulerTask{ID: "backup", Name: "Backup", Exec: `echo "backup done"`})

	conn := &mockConnector{name: "test"}
	sch := New(s, conn, nil, zerolog.Nop())
	defer sch.Stop()

	if err := sch.RunOnce("backup"); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	sch.WaitRuns()

	records, err := s.TailLogs(store.StreamScheduler, "backup", 0)
	if err != nil {
		t.Fatalf("TailLogs failed: %v", err)
	}
	var messages []string
	for _, r := range records {
		messages = append(messages, r.Message)
	}
	joined := strings.Join(messages, "|")
	for _, want := range []string{`Running: echo "backup done"`, "mock output", "second line", "Finished with exit code 0"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected log to contain %q, got %q", want, joined)
		}
	}

	runs, _ := s.RunsForTask(store.StreamScheduler, "backup")
	if len(runs) != 1 || runs[0].ExitCode == nil || *runs[0].ExitCode != 0 {
		t.Errorf("Expected one finished run, got %+v", runs)
	}
}

func TestRunOnceUnknownTask(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	sch := New(s, &mockConnector{name: "test"}, nil, zerolog.Nop())
	defer sch.Stop()

	if err := sch.RunOnce("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRetryOnFailure(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	createSchedulerTask(t, s, models.SchedulerTask{ID: "flaky", Name: "Flaky", Exec: "false", Retry: 2})

	conn := &mockConnector{name: "test", exitCode: 1}
	sch := New(s, conn, nil, zerolog.Nop())
	defer sch.Stop()

	if err := sch.RunOnce("flaky"); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	sch.WaitRuns()

	if got := conn.calls.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestSchedulerConcurrencyLimits(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	createSchedulerTask(t, s, models.SchedulerTask{ID: "slow", Name: "Slow", Exec: "sleep 1"})

	conn := &mockConnector{name: "test", gate: make(chan struct{})}
	cfg := &Config{GlobalMax: 10, ByConnector: map[string]int{"test": 2}}
	sch := New(s, conn, cfg, zerolog.Nop())
	defer sch.Stop()

	for i := 0; i < 2; i++ {
		if err := sch.RunOnce("slow"); err != nil {
			t.Fatalf("RunOnce %d failed: %v", i, err)
		}
	}
	if err := sch.RunOnce("slow"); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("Expected ErrAtCapacity, got %v", err)
	}
	if active := sch.GetStats()["active_workers"].(int); active != 2 {
		t.Errorf("Expected 2 active workers, got %d", active)
	}

	close(conn.gate)
	sch.WaitRuns()
	if active := sch.GetStats()["active_workers"].(int); active != 0 {
		t.Errorf("Expected 0 active workers after completion, got %d", active)
	}
}

func TestLegacyStartStop(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	if err := s.CreateLegacyTask(models.LegacyTask{ID: "sync", Name: "Sync", Command: "date", Enabled: true}); err != nil {
		t.Fatalf("CreateLegacyTask failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.LegacyInterval = time.Hour
	sch := New(s, &mockConnector{name: "test"}, cfg, zerolog.Nop())
	defer sch.Stop()

	if err := sch.StartLegacy("sync"); err != nil {
		t.Fatalf("StartLegacy failed: %v", err)
	}
	if err := sch.StartLegacy("sync"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	task, _ := s.GetLegacyTask("sync")
	if task.Status != models.LegacyStatusRunning {
		t.Errorf("Expected status running, got %s", task.Status)
	}

	if err := sch.StopLegacy("sync"); err != nil {
		t.Fatalf("StopLegacy failed: %v", err)
	}
	task, _ = s.GetLegacyTask("sync")
	if task.Status != models.LegacyStatusStopped {
		t.Errorf("Expected status stopped, got %s", task.Status)
	}
	if sch.LegacyRunning("sync") {
		t.Error("Expected legacy loop to be gone")
	}
	if err := sch.StopLegacy("sync"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestSyncSchedulesEnabledTasks(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	createSchedulerTask(t, s, models.SchedulerTask{ID: "on", Name: "On", Exec: "date", Schedule: "*/5 * * * *", Enabled: true})
	createSchedulerTask(t, s, models.SchedulerTask{ID: "off", Name: "Off", Exec: "date", Schedule: "*/5 * * * *"})
	createSchedulerTask(t, s, models.SchedulerTask{ID: "bad", Name: "Bad", Exec: "date", Schedule: "not a cron", Enabled: true})

	sch := New(s, &mockConnector{name: "test"}, nil, zerolog.Nop())
	if err := sch.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sch.Stop()

	if _, ok := sch.NextRun("on"); !ok {
		t.Error("Expected enabled task to be scheduled")
	}
	if _, ok := sch.NextRun("off"); ok {
		t.Error("Expected disabled task to be unscheduled")
	}
	if _, ok := sch.NextRun("bad"); ok {
		t.Error("Expected invalid schedule to be skipped")
	}

	if err := s.SetSchedulerEnabled("on", false); err != nil {
		t.Fatalf("SetSchedulerEnabled failed: %v", err)
	}
	if err := sch.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if _, ok := sch.NextRun("on"); ok {
		t.Error("Expected task to be unscheduled after disabling")
	}
}

func createSchedulerTask(t *testing.T, s *store.Store, task models.SchedulerTask) {
	t.Helper()
	if err := s.CreateSchedulerTask(task); err != nil {
		t.Fatalf("CreateSchedulerTask failed: %v", err)
	}
}

func newTestStore(t *testing.T) *store.Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
