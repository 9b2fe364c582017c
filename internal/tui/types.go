package tui

import (
	"github.com/fentz26/taskdeck/internal/dashboard"
	"github.com/fentz26/taskdeck/internal/models"
)

// Messages sent by ProgramView into the bubbletea event loop.

type legacyTasksMsg struct {
	tasks []models.LegacyTask
}

type schedulerTasksMsg struct {
	tasks []models.SchedulerTask
}

type legacyStatusMsg struct {
	status models.LegacyTaskStatus
}

type listErrorMsg struct {
	stream dashboard.Stream
	err    error
}

type logLoadingMsg struct {
	stream dashboard.Stream
	taskID string
}

type legacyLogsMsg struct {
	taskID  string
	entries []models.LegacyLogEntry
}

type schedulerLogsMsg struct {
	batch *models.LogBatch
}

type logErrorMsg struct {
	stream dashboard.Stream
	taskID string
	err    error
}

type autoRefreshMsg struct {
	stream dashboard.Stream
	on     bool
}

type clearLogsMsg struct {
	stream      dashboard.Stream
	placeholder string
}

type messageMsg struct {
	level dashboard.Level
	text  string
}

type bannerMsg struct {
	banner dashboard.Banner
}

// Messages produced by commands the App starts.

type cmdResultMsg struct {
	level   dashboard.Level
	message string
}

type configLoadedMsg struct {
	config map[string]string
}

type opDoneMsg struct{}
