package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/taskdeck/internal/models"
)

var (
	paneTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	statusRunning  = lipgloss.NewStyle().Foreground(successColor)
	statusStopped  = lipgloss.NewStyle().Foreground(mutedColor)
	statusEnabled  = lipgloss.NewStyle().Foreground(cyanColor)
	statusDisabled = lipgloss.NewStyle().Foreground(warningColor)
)

// TaskItem is one row of a task pane.
type TaskItem struct {
	ID      string
	Name    string
	Status  string
	Enabled bool
	Detail  string
}

func formatStatus(status string, enabled bool) string {
	var s string
	switch status {
	case string(models.LegacyStatusRunning):
		s = statusRunning.Render("● running")
	case string(models.LegacyStatusStopped):
		s = statusStopped.Render("○ stopped")
	default:
		s = ""
	}
	flag := statusEnabled.Render("enabled")
	if !enabled {
		flag = statusDisabled.Render("disabled")
	}
	if s == "" {
		return flag
	}
	return s + " " + flag
}

func formatStatusPlain(status string) string {
	switch status {
	case string(models.LegacyStatusRunning):
		return "●"
	case string(models.LegacyStatusStopped):
		return "○"
	default:
		return "◆"
	}
}

// TaskListModel is a selectable list of tasks for one stream.
type TaskListModel struct {
	title    string
	tasks    []TaskItem
	selected int
	err      error
	loaded   bool
}

// NewTaskListModel creates an empty pane.
func NewTaskListModel(title string) *TaskListModel {
	return &TaskListModel{title: title}
}

// SetLegacyTasks replaces the rows with legacy tasks, keeping the selection on the same id.
func (m *TaskListModel) SetLegacyTasks(tasks []models.LegacyTask) {
	items := make([]TaskItem, len(tasks))
	for i, t := range tasks {
		items[i] = TaskItem{ID: t.ID, Name: t.Name, Status: string(t.Status), Enabled: t.Enabled, Detail: t.Command}
	}
	m.setItems(items)
}

// SetSchedulerTasks replaces the rows with scheduler tasks, keeping the selection on the same id.
func (m *TaskListModel) SetSchedulerTasks(tasks []models.SchedulerTask) {
	items := make([]TaskItem, len(tasks))
	for i, t := range tasks {
		detail := t.Schedule
		if t.NextRunTime != "" {
			detail += "  next " + t.NextRunTime
		}
		items[i] = TaskItem{ID: t.ID, Name: t.Name, Enabled: t.Enabled, Detail: detail}
	}
	m.setItems(items)
}

func (m *TaskListModel) setItems(items []TaskItem) {
	prev := ""
	if sel := m.Selected(); sel != nil {
		prev = sel.ID
	}
	m.tasks = items
	m.err = nil
	m.loaded = true
	m.selected = 0
	for i, t := range items {
		if t.ID == prev {
			m.selected = i
		}
	}
}

// UpdateStatus patches the status of one row.
func (m *TaskListModel) UpdateStatus(id, status string, enabled bool) {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Status = status
			m.tasks[i].Enabled = enabled
		}
	}
}

// SetError shows a load failure in place of the rows.
func (m *TaskListModel) SetError(err error) {
	m.err = err
}

// Selected returns the highlighted task, or nil for an empty list.
func (m *TaskListModel) Selected() *TaskItem {
	if m.selected < 0 || m.selected >= len(m.tasks) {
		return nil
	}
	t := m.tasks[m.selected]
	return &t
}

// IDs returns every task id, in display order.
func (m *TaskListModel) IDs() []string {
	ids := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		ids[i] = t.ID
	}
	return ids
}

// Up moves the selection up.
func (m *TaskListModel) Up() {
	if m.selected > 0 {
		m.selected--
	}
}

// Down moves the selection down.
func (m *TaskListModel) Down() {
	if m.selected < len(m.tasks)-1 {
		m.selected++
	}
}

// View renders the pane at the given size.
func (m *TaskListModel) View(width, height int, focused bool) string {
	var b strings.Builder
	title := fmt.Sprintf("%s (%d)", m.title, len(m.tasks))
	b.WriteString(paneTitleStyle.Render(title) + "\n")

	switch {
	case m.err != nil:
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render("  Failed to load: "+m.err.Error()) + "\n")
	case !m.loaded:
		b.WriteString("  Loading tasks...\n")
	case len(m.tasks) == 0:
		b.WriteString(helpStyle.Render("  No tasks") + "\n")
	}

	var lines []string
	for i, task := range m.tasks {
		name := task.Name
		if name == "" {
			name = task.ID
		}
		if i == m.selected && focused {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %s %s  %s", formatStatusPlain(task.Status), task.ID, name)))
			continue
		}
		line := fmt.Sprintf("  %s %s  %s", formatStatus(task.Status, task.Enabled), task.ID, name)
		if i == m.selected {
			line = lipgloss.NewStyle().Bold(true).Render(line)
		}
		lines = append(lines, line)
	}

	if rows := height - 2; rows > 0 && len(lines) > rows {
		start := m.selected - rows/2
		if start < 0 {
			start = 0
		}
		end := start + rows
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-rows)
		}
		lines = lines[start:end]
	}
	b.WriteString(strings.Join(lines, "\n"))

	if sel := m.Selected(); sel != nil && sel.Detail != "" {
		b.WriteString("\n" + helpStyle.Render("  "+sel.Detail))
	}

	style := panelStyle.Width(width - 2)
	if focused {
		style = style.BorderForeground(primaryColor)
	}
	return style.Render(b.String())
}
