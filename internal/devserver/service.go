// Package devserver implements the task backend REST API over SQLite, for
// local development and end-to-end tests of the dashboard.
package devserver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fentz26/taskdeck/internal/models"
	"github.com/fentz26/taskdeck/internal/scheduler"
	"github.com/fentz26/taskdeck/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Log tail sizes returned by the log endpoints.
const (
	SchedulerLogTail   = 100
	DefaultLegacyLimit = 100
)

const legacyTimeLayout = "2006-01-02 15:04:05"

var taskIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Service implements the backend operations on top of the store and the runner.
type Service struct {
	store  *store.Store
	sched  *scheduler.Scheduler
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new service.
func NewService(s *store.Store, sched *scheduler.Scheduler, logger zerolog.Logger) *Service {
	return &Service{store: s, sched: sched, logger: logger, now: time.Now}
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Scheduler tasks ---

// ListSchedulerTasks returns every scheduler task with its next run time.
func (s *Service) ListSchedulerTasks() ([]models.SchedulerTask, error) {
	tasks, err := s.store.ListSchedulerTasks()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if next, ok := s.sched.NextRun(tasks[i].ID); ok {
			tasks[i].NextRunTime = next.Format(time.RFC3339)
		}
	}
	return tasks, nil
}

// GetSchedulerTask returns one scheduler task.
func (s *Service) GetSchedulerTask(id string) (*models.SchedulerTask, error) {
	task, err := s.store.GetSchedulerTask(id)
	if err != nil {
		return nil, err
	}
	if next, ok := s.sched.NextRun(id); ok {
		task.NextRunTime = next.Format(time.RFC3339)
	}
	return task, nil
}

func (s *Service) checkSchedulerTask(task *models.SchedulerTask) error {
	if !taskIDPattern.MatchString(task.ID) {
		return ErrInvalidTaskID
	}
	if strings.TrimSpace(task.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(task.Exec) == "" {
		return ErrCommandRequired
	}
	if task.Schedule != "" {
		if _, err := cron.ParseStandard(task.Schedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	if task.LogPath == "" {
		task.LogPath = "logs/task_" + task.ID + ".log"
	}
	return nil
}

// CreateSchedulerTask stores a new scheduler task and schedules it when enabled.
func (s *Service) CreateSchedulerTask(task models.SchedulerTask, requestID string) error {
	if err := s.checkSchedulerTask(&task); err != nil {
		return err
	}
	if err := s.store.CreateSchedulerTask(task); err != nil {
		return err
	}
	s.logger.Info().Str("task_id", task.ID).Str("request_id", requestID).Msg("scheduler task created")
	return s.sched.Sync()
}

// UpdateSchedulerTask replaces a scheduler task.
func (s *Service) UpdateSchedulerTask(task models.SchedulerTask, requestID string) error {
	if err := s.checkSchedulerTask(&task); err != nil {
		return err
	}
	if err := s.store.UpdateSchedulerTask(task); err != nil {
		return err
	}
	s.logger.Info().Str("task_id", task.ID).Str("request_id", requestID).Msg("scheduler task updated")
	return s.sched.Sync()
}

// DeleteSchedulerTask removes a scheduler task and its log.
func (s *Service) DeleteSchedulerTask(id string) error {
	if err := s.store.DeleteSchedulerTask(id); err != nil {
		return err
	}
	return s.sched.Sync()
}

// ToggleSchedulerTask sets the enabled flag. A nil flag flips the current value.
func (s *Service) ToggleSchedulerTask(id string, enabled *bool) (bool, error) {
	task, err := s.store.GetSchedulerTask(id)
	if err != nil {
		return false, err
	}
	next := !task.Enabled
	if enabled != nil {
		next = *enabled
	}
	if err := s.store.SetSchedulerEnabled(id, next); err != nil {
		return false, err
	}
	return next, s.sched.Sync()
}

// RunSchedulerTask dispatches one immediate run.
func (s *Service) RunSchedulerTask(id string) error {
	return s.sched.RunOnce(id)
}

// SchedulerLogs returns the numbered tail of a scheduler task log and its log file name.
func (s *Service) SchedulerLogs(id string) ([]models.LogLine, string, error) {
	task, err := s.store.GetSchedulerTask(id)
	if err != nil {
		return nil, "", err
	}
	records, err := s.store.TailLogs(store.StreamScheduler, id, SchedulerLogTail)
	if err != nil {
		return nil, "", err
	}
	lines := make([]models.LogLine, 0, len(records))
	for i, r := range records {
		lines = append(lines, models.LogLine{
			Line:    i + 1,
			Content: fmt.Sprintf("%s - %s - %s", r.Time.Local().Format(legacyTimeLayout), r.Level, r.Message),
		})
	}
	return lines, task.LogPath, nil
}

// ClearSchedulerLogs truncates a scheduler task log.
func (s *Service) ClearSchedulerLogs(id string) error {
	if _, err := s.store.GetSchedulerTask(id); err != nil {
		return err
	}
	return s.store.ClearLogs(store.StreamScheduler, id)
}

// ValidateCron checks a standard five-field cron expression.
func (s *Service) ValidateCron(expr string) models.CronValidation {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return models.CronValidation{Valid: false, Error: err.Error()}
	}
	return models.CronValidation{Valid: true, NextRun: schedule.Next(s.now()).Format(time.RFC3339)}
}

// --- Legacy tasks ---

// ListLegacyTasks returns every legacy task.
func (s *Service) ListLegacyTasks() ([]models.LegacyTask, error) {
	return s.store.ListLegacyTasks()
}

// GetLegacyTask returns one legacy task.
func (s *Service) GetLegacyTask(id string) (*models.LegacyTask, error) {
	return s.store.GetLegacyTask(id)
}

// CreateLegacyTask stores a new, enabled and stopped legacy task.
func (s *Service) CreateLegacyTask(task models.LegacyTask) error {
	if !taskIDPattern.MatchString(task.ID) {
		return ErrInvalidTaskID
	}
	if strings.TrimSpace(task.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(task.Command) == "" {
		return ErrCommandRequired
	}
	task.Status = models.LegacyStatusStopped
	task.Enabled = true
	return s.store.CreateLegacyTask(task)
}

// StartLegacyTask starts the command loop of an enabled legacy task.
func (s *Service) StartLegacyTask(id string) error {
	task, err := s.store.GetLegacyTask(id)
	if err != nil {
		return err
	}
	if !task.Enabled {
		return ErrTaskDisabled
	}
	return s.sched.StartLegacy(id)
}

// StopLegacyTask stops the command loop of a legacy task.
func (s *Service) StopLegacyTask(id string) error {
	if _, err := s.store.GetLegacyTask(id); err != nil {
		return err
	}
	return s.sched.StopLegacy(id)
}

// ToggleLegacyTask sets the enabled flag. Disabling a running task stops it.
func (s *Service) ToggleLegacyTask(id string, enabled *bool) (bool, error) {
	task, err := s.store.GetLegacyTask(id)
	if err != nil {
		return false, err
	}
	next := !task.Enabled
	if enabled != nil {
		next = *enabled
	}
	if !next && s.sched.LegacyRunning(id) {
		if err := s.sched.StopLegacy(id); err != nil {
			return false, err
		}
	}
	return next, s.store.SetLegacyEnabled(id, next)
}

// LegacyStatus returns the run state of a legacy task.
func (s *Service) LegacyStatus(id string) (*models.LegacyTaskStatus, error) {
	task, err := s.store.GetLegacyTask(id)
	if err != nil {
		return nil, err
	}
	return &models.LegacyTaskStatus{ID: id, Status: task.Status, Enabled: task.Enabled}, nil
}

// LegacyLogs returns up to limit recent entries of a legacy task log.
func (s *Service) LegacyLogs(id string, limit int) ([]models.LegacyLogEntry, error) {
	if _, err := s.store.GetLegacyTask(id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLegacyLimit
	}
	records, err := s.store.TailLogs(store.StreamLegacy, id, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]models.LegacyLogEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, models.LegacyLogEntry{
			Timestamp: r.Time.Local().Format(legacyTimeLayout),
			Level:     r.Level,
			Message:   r.Message,
		})
	}
	return entries, nil
}

// ClearLegacyLogs truncates a legacy task log.
func (s *Service) ClearLegacyLogs(id string) error {
	if _, err := s.store.GetLegacyTask(id); err != nil {
		return err
	}
	return s.store.ClearLogs(store.StreamLegacy, id)
}

// --- Settings ---

// Config returns the stored backend settings.
func (s *Service) Config() (map[string]string, error) {
	return s.store.GetSettings()
}

// SaveConfig stores backend settings. Non-string values are stored in their text form.
func (s *Service) SaveConfig(values map[string]any) error {
	settings := make(map[string]string, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			settings[k] = val
		case nil:
			settings[k] = ""
		default:
			settings[k] = fmt.Sprint(val)
		}
	}
	return s.store.SaveSettings(settings)
}
