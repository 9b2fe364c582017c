package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fentz26/taskdeck/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestSchedulerTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task := models.SchedulerTask{
		ID:           "backup",
		Name:         "Backup",
		Exec:         "echo backup",
		Schedule:     "0 3 * * *",
		Env:          map[string]string{"MODE": "full"},
		Dependencies: []string{"mount"},
		Notify:       map[string]any{"email": "ops@example.com"},
	}
	if err := s.CreateSchedulerTask(task); err != nil {
		t.Fatalf("CreateSchedulerTask failed: %v", err)
	}
	if err := s.CreateSchedulerTask(task); !errors.Is(err, ErrExists) {
		t.Errorf("Expected ErrExists for duplicate id, got %v", err)
	}

	got, err := s.GetSchedulerTask("backup")
	if err != nil {
		t.Fatalf("GetSchedulerTask failed: %v", err)
	}
	if got.Env["MODE"] != "full" || len(got.Dependencies) != 1 || got.Notify["email"] != "ops@example.com" {
		t.Errorf("Extras not round-tripped: %+v", got)
	}
	if got.Enabled {
		t.Error("Expected task to start disabled")
	}

	got.Name = "Nightly backup"
	if err := s.UpdateSchedulerTask(*got); err != nil {
		t.Fatalf("UpdateSchedulerTask failed: %v", err)
	}
	if err := s.SetSchedulerEnabled("backup", true); err != nil {
		t.Fatalf("SetSchedulerEnabled failed: %v", err)
	}

	tasks, err := s.ListSchedulerTasks()
	if err != nil {
		t.Fatalf("ListSchedulerTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Name != "Nightly backup" || !tasks[0].Enabled {
		t.Errorf("Unexpected task after update: %+v", tasks[0])
	}

	if err := s.DeleteSchedulerTask("backup"); err != nil {
		t.Fatalf("DeleteSchedulerTask failed: %v", err)
	}
	if _, err := s.GetSchedulerTask("backup"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteSchedulerTask("backup"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second delete, got %v", err)
	}
}

func TestLegacyTaskStatus(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if err := s.CreateLegacyTask(models.LegacyTask{ID: "sync", Name: "Sync", Command: "date", Enabled: true}); err != nil {
		t.Fatalf("CreateLegacyTask failed: %v", err)
	}
	got, err := s.GetLegacyTask("sync")
	if err != nil {
		t.Fatalf("GetLegacyTask failed: %v", err)
	}
	if got.Status != models.LegacyStatusStopped {
		t.Errorf("Expected status stopped, got %s", got.Status)
	}

	if err := s.SetLegacyStatus("sync", models.LegacyStatusRunning); err != nil {
		t.Fatalf("SetLegacyStatus failed: %v", err)
	}
	if err := s.SetLegacyEnabled("sync", false); err != nil {
		t.Fatalf("SetLegacyEnabled failed: %v", err)
	}
	got, _ = s.GetLegacyTask("sync")
	if got.Status != models.LegacyStatusRunning || got.Enabled {
		t.Errorf("Unexpected task: %+v", got)
	}

	if err := s.SetLegacyStatus("missing", models.LegacyStatusRunning); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTailLogs(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	for i := 1; i <= 5; i++ {
		if err := s.AppendLog(StreamScheduler, "backup", "INFO", fmt.Sprintf("line %d", i)); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}
	if err := s.AppendLog(StreamLegacy, "backup", "INFO", "other stream"); err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}

	records, err := s.TailLogs(StreamScheduler, "backup", 3)
	if err != nil {
		t.Fatalf("TailLogs failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].Message != "line 3" || records[2].Message != "line 5" {
		t.Errorf("Expected lines 3..5 oldest first, got %q..%q", records[0].Message, records[2].Message)
	}

	all, _ := s.TailLogs(StreamScheduler, "backup", 0)
	if len(all) != 5 {
		t.Errorf("Expected 5 records without a limit, got %d", len(all))
	}

	if err := s.ClearLogs(StreamScheduler, "backup"); err != nil {
		t.Fatalf("ClearLogs failed: %v", err)
	}
	records, _ = s.TailLogs(StreamScheduler, "backup", 0)
	if len(records) != 0 {
		t.Errorf("Expected no records after clear, got %d", len(records))
	}
	legacy, _ := s.TailLogs(StreamLegacy, "backup", 0)
	if len(legacy) != 1 {
		t.Errorf("Expected the legacy stream to be untouched, got %d records", len(legacy))
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if err := s.SaveSettings(map[string]string{"username": "ops", "retries": "3"}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if err := s.SaveSettings(map[string]string{"username": "admin"}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	settings, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings["username"] != "admin" || settings["retries"] != "3" {
		t.Errorf("Unexpected settings: %v", settings)
	}
}

func TestRuns(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	run, err := s.CreateRun(StreamScheduler, "backup", "echo backup")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID == "" {
		t.Error("Run ID should not be empty")
	}
	if err := s.FinishRun(run.ID, 2); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := s.RunsForTask(StreamScheduler, "backup")
	if err != nil {
		t.Fatalf("RunsForTask failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].ExitCode == nil || *runs[0].ExitCode != 2 {
		t.Errorf("Expected exit code 2, got %v", runs[0].ExitCode)
	}
	if runs[0].EndedAt == nil {
		t.Error("Expected ended_at to be set")
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
