// Package models defines the wire types shared by the dashboard, the client and the development backend.
package models

import "time"

// LegacyStatus is the run state reported by the legacy task surface.
type LegacyStatus string

const (
	LegacyStatusRunning LegacyStatus = "running"
	LegacyStatusStopped LegacyStatus = "stopped"
)

// SchedulerTask is a cron-scheduled job managed under /api/scheduler.
type SchedulerTask struct {
	ID            string            `json:"task_id"`
	Name          string            `json:"task_name"`
	Exec          string            `json:"task_exec"`
	Schedule      string            `json:"task_schedule"`
	Description   string            `json:"task_desc"`
	ScriptType    string            `json:"script_type,omitempty"`
	Timeout       int               `json:"task_timeout"`
	Retry         int               `json:"task_retry"`
	RetryInterval int               `json:"task_retry_interval"`
	Enabled       bool              `json:"task_enabled"`
	LogPath       string            `json:"task_log"`
	Env           map[string]string `json:"task_env"`
	Dependencies  []string          `json:"task_dependencies"`
	Notify        map[string]any    `json:"task_notify"`
	NextRunTime   string            `json:"next_run_time,omitempty"`
}

// LegacyTask is a long-running process managed under /api/tasks.
type LegacyTask struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Command     string       `json:"command"`
	Schedule    string       `json:"schedule"`
	Status      LegacyStatus `json:"status"`
	Enabled     bool         `json:"enabled"`
}

// LegacyTaskStatus is the body of GET /api/tasks/{id}/status.
type LegacyTaskStatus struct {
	ID      string       `json:"task_id"`
	Status  LegacyStatus `json:"status"`
	Enabled bool         `json:"enabled"`
}

// LogLine is one numbered line of a scheduler task log.
type LogLine struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// LegacyLogEntry is one entry of a legacy task log. Raw is set for lines the backend could not parse.
type LegacyLogEntry struct {
	Raw       string `json:"raw,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Level     string `json:"level,omitempty"`
	Message   string `json:"message,omitempty"`
}

// LogBatch is the result of one incremental log fetch.
type LogBatch struct {
	TaskID  string
	LogFile string
	Lines   []LogLine
}

// CronValidation is the data of POST /api/scheduler/validate-cron.
type CronValidation struct {
	Valid   bool   `json:"valid"`
	NextRun string `json:"next_run,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Envelope is the common response body. Data holds the raw payload.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// LogRecord is one stored log line of a task, on either surface.
type LogRecord struct {
	ID      int64     `json:"id"`
	Stream  string    `json:"stream"`
	TaskID  string    `json:"task_id"`
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Run records one execution of a task command by the development backend.
type Run struct {
	ID        string     `json:"id"`
	Stream    string     `json:"stream"`
	TaskID    string     `json:"task_id"`
	Command   string     `json:"command"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
