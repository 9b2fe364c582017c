package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/taskdeck/internal/dashboard"
	"github.com/fentz26/taskdeck/internal/models"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramView implements dashboard.View by forwarding every call to the
// bubbletea program as a message. Calls made before Attach are dropped.
type ProgramView struct {
	mu     sync.RWMutex
	sender Sender
}

// NewProgramView creates a detached view.
func NewProgramView() *ProgramView {
	return &ProgramView{}
}

// Attach starts forwarding to s.
func (v *ProgramView) Attach(s Sender) {
	v.mu.Lock()
	v.sender = s
	v.mu.Unlock()
}

func (v *ProgramView) send(msg tea.Msg) {
	v.mu.RLock()
	s := v.sender
	v.mu.RUnlock()
	if s != nil {
		s.Send(msg)
	}
}

var _ dashboard.View = (*ProgramView)(nil)

func (v *ProgramView) RenderLegacyTasks(tasks []models.LegacyTask) {
	v.send(legacyTasksMsg{tasks})
}

func (v *ProgramView) RenderSchedulerTasks(tasks []models.SchedulerTask) {
	v.send(schedulerTasksMsg{tasks})
}

func (v *ProgramView) UpdateLegacyStatus(status models.LegacyTaskStatus) {
	v.send(legacyStatusMsg{status})
}

func (v *ProgramView) ShowListError(stream dashboard.Stream, err error) {
	v.send(listErrorMsg{stream, err})
}

func (v *ProgramView) ShowLogLoading(stream dashboard.Stream, taskID string) {
	v.send(logLoadingMsg{stream, taskID})
}

func (v *ProgramView) RenderLegacyLogs(taskID string, entries []models.LegacyLogEntry) {
	v.send(legacyLogsMsg{taskID, entries})
}

func (v *ProgramView) RenderSchedulerLogs(batch *models.LogBatch) {
	v.send(schedulerLogsMsg{batch})
}

func (v *ProgramView) ShowLogError(stream dashboard.Stream, taskID string, err error) {
	v.send(logErrorMsg{stream, taskID, err})
}

func (v *ProgramView) SetLogAutoRefresh(stream dashboard.Stream, on bool) {
	v.send(autoRefreshMsg{stream, on})
}

func (v *ProgramView) ClearLogs(stream dashboard.Stream, placeholder string) {
	v.send(clearLogsMsg{stream, placeholder})
}

func (v *ProgramView) ShowMessage(level dashboard.Level, text string) {
	v.send(messageMsg{level, text})
}

func (v *ProgramView) SetBanner(banner dashboard.Banner) {
	v.send(bannerMsg{banner})
}
