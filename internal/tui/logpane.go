package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/taskdeck/internal/dashboard"
	"github.com/fentz26/taskdeck/internal/models"
)

var (
	logErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	logWarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	logMetaStyle    = lipgloss.NewStyle().Foreground(mutedColor)
)

// logBuffer is what the log pane shows for one stream.
type logBuffer struct {
	taskID      string
	logFile     string
	lines       []string
	placeholder string
	loading     bool
	err         error
	auto        bool
}

// LogPaneModel shows the log of the selected task of the focused stream.
type LogPaneModel struct {
	viewport viewport.Model
	buffers  map[dashboard.Stream]*logBuffer
	stream   dashboard.Stream
}

// NewLogPaneModel creates a log pane with both streams empty.
func NewLogPaneModel() *LogPaneModel {
	return &LogPaneModel{
		viewport: viewport.New(80, 10),
		buffers: map[dashboard.Stream]*logBuffer{
			dashboard.StreamLegacy:    {placeholder: dashboard.PlaceholderNoSelection},
			dashboard.StreamScheduler: {placeholder: dashboard.PlaceholderNoSelection},
		},
		stream: dashboard.StreamLegacy,
	}
}

// SetSize sets the viewport dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = max(h, 3)
	m.sync(false)
}

// Show switches the pane to a stream.
func (m *LogPaneModel) Show(stream dashboard.Stream) {
	if m.stream == stream {
		return
	}
	m.stream = stream
	m.sync(true)
}

// Buffer returns the state of a stream.
func (m *LogPaneModel) Buffer(stream dashboard.Stream) *logBuffer {
	return m.buffers[stream]
}

func (m *LogPaneModel) Loading(stream dashboard.Stream, taskID string) {
	b := m.buffers[stream]
	b.taskID = taskID
	b.loading = true
	b.err = nil
	m.refresh(stream, false)
}

func (m *LogPaneModel) SetLegacy(taskID string, entries []models.LegacyLogEntry) {
	b := m.buffers[dashboard.StreamLegacy]
	b.taskID = taskID
	b.loading = false
	b.err = nil
	b.lines = b.lines[:0]
	for _, e := range entries {
		b.lines = append(b.lines, renderLegacyEntry(e))
	}
	b.placeholder = "No log entries yet"
	m.refresh(dashboard.StreamLegacy, true)
}

func (m *LogPaneModel) SetScheduler(batch *models.LogBatch) {
	b := m.buffers[dashboard.StreamScheduler]
	b.taskID = batch.TaskID
	b.logFile = batch.LogFile
	b.loading = false
	b.err = nil
	b.lines = b.lines[:0]
	for _, l := range batch.Lines {
		b.lines = append(b.lines, renderLogLine(l))
	}
	b.placeholder = "No log entries yet"
	m.refresh(dashboard.StreamScheduler, true)
}

func (m *LogPaneModel) SetError(stream dashboard.Stream, taskID string, err error) {
	b := m.buffers[stream]
	b.taskID = taskID
	b.loading = false
	b.err = err
	m.refresh(stream, false)
}

func (m *LogPaneModel) SetAutoRefresh(stream dashboard.Stream, on bool) {
	m.buffers[stream].auto = on
}

// Clear empties a stream and shows placeholder instead. The no-selection
// placeholder also forgets the task.
func (m *LogPaneModel) Clear(stream dashboard.Stream, placeholder string) {
	b := m.buffers[stream]
	b.lines = nil
	b.err = nil
	b.loading = false
	b.placeholder = placeholder
	if placeholder == dashboard.PlaceholderNoSelection {
		b.taskID = ""
		b.logFile = ""
		b.auto = false
	}
	m.refresh(stream, false)
}

// ScrollUp and ScrollDown move the viewport by one line.
func (m *LogPaneModel) ScrollUp()   { m.viewport.LineUp(1) }
func (m *LogPaneModel) ScrollDown() { m.viewport.LineDown(1) }

func (m *LogPaneModel) refresh(stream dashboard.Stream, follow bool) {
	if stream == m.stream {
		m.sync(follow)
	}
}

// sync copies the shown buffer into the viewport. follow keeps the view pinned
// to the newest line when it already was at the bottom.
func (m *LogPaneModel) sync(follow bool) {
	atBottom := m.viewport.AtBottom()
	b := m.buffers[m.stream]

	var content string
	switch {
	case b.err != nil:
		content = logErrorStyle.Render("Failed to load logs: " + b.err.Error())
	case b.loading && len(b.lines) == 0:
		content = logMetaStyle.Render("Loading logs...")
	case len(b.lines) == 0:
		content = logMetaStyle.Render(b.placeholder)
	default:
		content = strings.Join(b.lines, "\n")
	}
	m.viewport.SetContent(content)
	if follow && atBottom {
		m.viewport.GotoBottom()
	}
}

// Title describes the shown stream for the pane header.
func (m *LogPaneModel) Title() string {
	b := m.buffers[m.stream]
	if b.taskID == "" {
		return fmt.Sprintf("Logs [%s]", m.stream)
	}
	state := "paused"
	if b.auto {
		state = "live"
	}
	title := fmt.Sprintf("Logs [%s] %s (%s)", m.stream, b.taskID, state)
	if b.logFile != "" {
		title += " " + b.logFile
	}
	return title
}

// View renders the pane.
func (m *LogPaneModel) View(width int) string {
	header := paneTitleStyle.Render(m.Title())
	return panelStyle.Width(width - 2).Render(header + "\n" + m.viewport.View())
}

func renderLegacyEntry(e models.LegacyLogEntry) string {
	if e.Raw != "" {
		return e.Raw
	}
	line := fmt.Sprintf("%s %s %s", e.Timestamp, e.Level, e.Message)
	switch strings.ToUpper(e.Level) {
	case "ERROR":
		return logErrorStyle.Render(line)
	case "WARNING", "WARN":
		return logWarningStyle.Render(line)
	}
	return line
}

func renderLogLine(l models.LogLine) string {
	line := logMetaStyle.Render(fmt.Sprintf("%4d ", l.Line))
	switch {
	case strings.Contains(l.Content, "ERROR"):
		return line + logErrorStyle.Render(l.Content)
	case strings.Contains(l.Content, "WARNING"):
		return line + logWarningStyle.Render(l.Content)
	}
	return line + l.Content
}
