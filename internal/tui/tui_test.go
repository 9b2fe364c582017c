package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/taskdeck/internal/dashboard"
	"github.com/fentz26/taskdeck/internal/models"
)

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.msgs = append(r.msgs, msg)
}

func TestProgramViewDropsUntilAttached(t *testing.T) {
	v := NewProgramView()
	v.ShowMessage(dashboard.LevelInfo, "dropped")

	s := &recordingSender{}
	v.Attach(s)
	v.SetBanner(dashboard.BannerReconnecting)
	v.ClearLogs(dashboard.StreamScheduler, dashboard.PlaceholderCleared)

	if len(s.msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(s.msgs))
	}
	if b, ok := s.msgs[0].(bannerMsg); !ok || b.banner != dashboard.BannerReconnecting {
		t.Errorf("Expected reconnecting banner, got %#v", s.msgs[0])
	}
	if c, ok := s.msgs[1].(clearLogsMsg); !ok || c.stream != dashboard.StreamScheduler {
		t.Errorf("Expected scheduler clear, got %#v", s.msgs[1])
	}
}

func TestTaskListKeepsSelection(t *testing.T) {
	m := NewTaskListModel("Tasks")
	m.SetLegacyTasks([]models.LegacyTask{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	m.Down()
	m.Down()

	m.SetLegacyTasks([]models.LegacyTask{{ID: "c"}, {ID: "a"}})
	if sel := m.Selected(); sel == nil || sel.ID != "c" {
		t.Fatalf("Expected selection to stay on c, got %+v", sel)
	}

	m.SetLegacyTasks(nil)
	if m.Selected() != nil {
		t.Error("Expected no selection in an empty list")
	}
}

func TestTaskListUpdateStatus(t *testing.T) {
	m := NewTaskListModel("Tasks")
	m.SetLegacyTasks([]models.LegacyTask{{ID: "a", Status: models.LegacyStatusStopped, Enabled: true}})
	m.UpdateStatus("a", string(models.LegacyStatusRunning), false)

	sel := m.Selected()
	if sel.Status != "running" || sel.Enabled {
		t.Errorf("Expected running and disabled, got %+v", sel)
	}
}

func TestLogPaneClearForgetsTask(t *testing.T) {
	p := NewLogPaneModel()
	p.SetLegacy("job", []models.LegacyLogEntry{{Timestamp: "2024-01-01 00:00:00", Level: "INFO", Message: "hi"}})
	p.SetAutoRefresh(dashboard.StreamLegacy, true)

	if !strings.Contains(p.Title(), "job (live)") {
		t.Errorf("Expected live title, got %q", p.Title())
	}

	p.Clear(dashboard.StreamLegacy, dashboard.PlaceholderCleared)
	if b := p.Buffer(dashboard.StreamLegacy); b.taskID != "job" || len(b.lines) != 0 {
		t.Errorf("Expected cleared lines for job, got %+v", b)
	}

	p.Clear(dashboard.StreamLegacy, dashboard.PlaceholderNoSelection)
	if b := p.Buffer(dashboard.StreamLegacy); b.taskID != "" || b.auto {
		t.Errorf("Expected no selection, got %+v", b)
	}
}

func TestLogPaneError(t *testing.T) {
	p := NewLogPaneModel()
	p.Show(dashboard.StreamScheduler)
	p.SetError(dashboard.StreamScheduler, "job", errors.New("boom"))

	if !strings.Contains(p.View(80), "boom") {
		t.Error("Expected error in log pane")
	}
}

func TestSuggestions(t *testing.T) {
	s := NewSuggestions()
	s.SetTasks([]string{"backup", "build", "cleanup"})

	s.Update("de")
	if sel := s.Selected(); sel == nil || sel.Completion != "delete " {
		t.Fatalf("Expected delete completion, got %+v", sel)
	}

	s.Update("logs b")
	if len(s.filtered) != 2 {
		t.Fatalf("Expected 2 task suggestions, got %d", len(s.filtered))
	}
	s.Next()
	if sel := s.Selected(); sel.Completion != "logs build " {
		t.Errorf("Expected logs build completion, got %q", sel.Completion)
	}

	s.Update("cron 0")
	if s.IsVisible() {
		t.Error("Expected no suggestions for cron arguments")
	}
}

func TestApplyFields(t *testing.T) {
	task := &models.SchedulerTask{ID: "job", Name: "old"}
	err := applyFields(task, []string{"name=new", "schedule=*/5 * * * *", "retry=2", "timeout=30"})
	if err != nil {
		t.Fatalf("applyFields failed: %v", err)
	}
	if task.Name != "new" || task.Schedule != "*/5 * * * *" || task.Retry != 2 || task.Timeout != 30 {
		t.Errorf("Unexpected task: %+v", task)
	}

	if err := applyFields(task, []string{"retry=many"}); err == nil {
		t.Error("Expected error for non-numeric retry")
	}
	if err := applyFields(task, []string{"owner=me"}); err == nil {
		t.Error("Expected error for unknown field")
	}
}

func TestExecuteUsage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"add job", "Usage: add"},
		{"set", "Usage: set"},
		{"set novalue", "Usage: set"},
		{"frobnicate", "Unknown command: frobnicate"},
		{`cron "unterminated`, "Error:"},
	}

	for _, tt := range tests {
		cmd := Execute(context.Background(), nil, tt.input, cmdTarget{stream: dashboard.StreamScheduler})
		if cmd == nil {
			t.Fatalf("%q: expected a command", tt.input)
		}
		res, ok := cmd().(cmdResultMsg)
		if !ok || !strings.HasPrefix(res.message, tt.want) {
			t.Errorf("%q: expected %q, got %#v", tt.input, tt.want, res)
		}
	}

	if Execute(context.Background(), nil, "   ", cmdTarget{}) != nil {
		t.Error("Expected nil command for blank input")
	}
}
