package dashboard

import (
	"github.com/fentz26/taskdeck/internal/models"
)

// Stream identifies one of the two task surfaces.
type Stream string

const (
	StreamLegacy    Stream = "legacy"
	StreamScheduler Stream = "scheduler"
)

// Level is the severity of a user-facing message.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Banner is the connection banner shown above the task lists.
type Banner int

const (
	BannerHidden Banner = iota
	BannerReconnecting
	BannerStopped
)

func (b Banner) String() string {
	switch b {
	case BannerReconnecting:
		return "connection lost, reconnecting..."
	case BannerStopped:
		return "connection lost, automatic reconnection stopped"
	default:
		return ""
	}
}

// Placeholders shown in an empty log pane.
const (
	PlaceholderNoSelection = "Select a task to view its logs"
	PlaceholderCleared     = "Logs cleared, waiting for new output..."
)

// View is what the dashboard draws on. Implementations must not block for long;
// every method may be called from a poller goroutine.
type View interface {
	RenderLegacyTasks(tasks []models.LegacyTask)
	RenderSchedulerTasks(tasks []models.SchedulerTask)
	UpdateLegacyStatus(status models.LegacyTaskStatus)
	ShowListError(stream Stream, err error)

	ShowLogLoading(stream Stream, taskID string)
	RenderLegacyLogs(taskID string, entries []models.LegacyLogEntry)
	RenderSchedulerLogs(batch *models.LogBatch)
	ShowLogError(stream Stream, taskID string, err error)
	SetLogAutoRefresh(stream Stream, on bool)
	ClearLogs(stream Stream, placeholder string)

	ShowMessage(level Level, text string)
	SetBanner(banner Banner)
}

// legacyRenderer adapts View to the legacy log tail.
type legacyRenderer struct{ view View }

func (r legacyRenderer) ShowLoading(taskID string) { r.view.ShowLogLoading(StreamLegacy, taskID) }
func (r legacyRenderer) Render(taskID string, entries []models.LegacyLogEntry) {
	r.view.RenderLegacyLogs(taskID, entries)
}
func (r legacyRenderer) ShowError(taskID string, err error) {
	r.view.ShowLogError(StreamLegacy, taskID, err)
}
func (r legacyRenderer) SetAutoRefresh(on bool) { r.view.SetLogAutoRefresh(StreamLegacy, on) }
func (r legacyRenderer) Clear()                 { r.view.ClearLogs(StreamLegacy, PlaceholderNoSelection) }

// schedulerRenderer adapts View to the scheduler log tail.
type schedulerRenderer struct{ view View }

func (r schedulerRenderer) ShowLoading(taskID string) { r.view.ShowLogLoading(StreamScheduler, taskID) }
func (r schedulerRenderer) Render(_ string, batch *models.LogBatch) {
	r.view.RenderSchedulerLogs(batch)
}
func (r schedulerRenderer) ShowError(taskID string, err error) {
	r.view.ShowLogError(StreamScheduler, taskID, err)
}
func (r schedulerRenderer) SetAutoRefresh(on bool) { r.view.SetLogAutoRefresh(StreamScheduler, on) }
func (r schedulerRenderer) Clear()                 { r.view.ClearLogs(StreamScheduler, PlaceholderNoSelection) }
