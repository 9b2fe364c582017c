// Package dashboard wires the task client, the resilience layer and a View
// into the operations a task-scheduler dashboard offers.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/taskdeck/internal/client"
	"github.com/fentz26/taskdeck/internal/models"
	"github.com/fentz26/taskdeck/internal/resilience"
	"github.com/rs/zerolog"
)

// ErrOperationInProgress is returned when a guarded operation is already running.
var ErrOperationInProgress = errors.New("another task operation is in progress")

// Options configures a Dashboard.
type Options struct {
	BaseURL         string
	HTTPClient      *http.Client
	Clock           resilience.Clock
	StatusInterval  time.Duration
	HealthInterval  time.Duration
	LogTailInterval time.Duration
	StartSettle     time.Duration
	RunSettle       time.Duration
	LegacyLogLimit  int
	Logger          zerolog.Logger
}

// Dashboard coordinates task lists, log tails and guarded task operations.
type Dashboard struct {
	opts     Options
	view     View
	client   *client.Client
	gateway  *resilience.Gateway
	state    *resilience.ConnectionState
	registry *resilience.IntervalRegistry
	guard    *resilience.OperationGuard
	logger   zerolog.Logger

	legacyTail    *resilience.LogTail[[]models.LegacyLogEntry]
	schedulerTail *resilience.LogTail[*models.LogBatch]

	mu        sync.Mutex
	legacyIDs []string
}

// New builds a dashboard drawing on view.
func New(opts Options, view View) *Dashboard {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.LegacyLogLimit <= 0 {
		opts.LegacyLogLimit = 100
	}
	logger := opts.Logger.With().Str("component", "dashboard").Logger()

	state := resilience.NewConnectionState()
	registry := resilience.NewIntervalRegistry(opts.Clock, opts.Logger)
	gw := resilience.NewGateway(resilience.GatewayConfig{
		BaseURL:        opts.BaseURL,
		StatusInterval: opts.StatusInterval,
		HealthInterval: opts.HealthInterval,
	}, opts.HTTPClient, state, registry, opts.Logger)

	d := &Dashboard{
		opts:     opts,
		view:     view,
		client:   client.New(gw),
		gateway:  gw,
		state:    state,
		registry: registry,
		guard:    resilience.NewOperationGuard(opts.Logger),
		logger:   logger,
	}

	d.legacyTail = resilience.NewLogTail(resilience.LogTailConfig[[]models.LegacyLogEntry]{
		Kind:     resilience.PollerLegacyLog,
		Interval: opts.LogTailInterval,
		Registry: registry,
		Conn:     state,
		Fetch: func(ctx context.Context, id string) ([]models.LegacyLogEntry, error) {
			return d.client.LegacyLogs(ctx, id, opts.LegacyLogLimit)
		},
		Renderer: legacyRenderer{view},
		Context:  gw.Context(),
		Logger:   opts.Logger,
	})
	d.schedulerTail = resilience.NewLogTail(resilience.LogTailConfig[*models.LogBatch]{
		Kind:     resilience.PollerSchedulerLog,
		Interval: opts.LogTailInterval,
		Registry: registry,
		Conn:     state,
		Fetch:    d.client.SchedulerLogs,
		Renderer: schedulerRenderer{view},
		Context:  gw.Context(),
		Logger:   opts.Logger,
	})

	gw.SetStatusPoller(d.pollStatus)
	gw.OnDisconnect(func() {
		if !state.IsConnected() {
			view.SetBanner(BannerReconnecting)
		}
	})
	gw.OnDisconnect(d.legacyTail.Suspend)
	gw.OnDisconnect(d.schedulerTail.Suspend)
	gw.OnReconnect(func() {
		if state.IsConnected() {
			view.SetBanner(BannerHidden)
		}
	})
	gw.OnReconnect(func() {
		d.RefreshLegacyTasks(gw.Context())
		d.RefreshSchedulerTasks(gw.Context())
	})
	gw.OnReconnect(d.legacyTail.Resume)
	gw.OnReconnect(d.schedulerTail.Resume)
	gw.OnReconnect(func() {
		if state.IsConnected() {
			view.ShowMessage(LevelSuccess, "Connection to server restored")
		}
	})
	gw.OnStopReconnecting(func() { view.SetBanner(BannerStopped) })

	return d
}

// Client returns the API client used by the dashboard.
func (d *Dashboard) Client() *client.Client { return d.client }

// Connected reports the last observed backend reachability.
func (d *Dashboard) Connected() bool { return d.state.IsConnected() }

// Reconnecting reports whether the health probe is running.
func (d *Dashboard) Reconnecting() bool { return d.gateway.Probe().Probing() }

// Busy reports whether a guarded task operation is running.
func (d *Dashboard) Busy() bool { return d.guard.Held() }

// Start loads both task lists and starts status polling.
func (d *Dashboard) Start(ctx context.Context) {
	d.logger.Info().Str("api", d.opts.BaseURL).Msg("dashboard starting")
	d.RefreshLegacyTasks(ctx)
	d.RefreshSchedulerTasks(ctx)
	d.gateway.StartStatusPolling()
}

// Close stops every timer and cancels background requests.
func (d *Dashboard) Close() {
	d.gateway.Close()
	d.logger.Info().Msg("dashboard stopped")
}

// StopReconnecting gives up on automatic reconnection.
func (d *Dashboard) StopReconnecting() {
	d.gateway.StopReconnecting()
}

// ---- Task lists ----

// RefreshLegacyTasks reloads and renders the legacy task list.
func (d *Dashboard) RefreshLegacyTasks(ctx context.Context) {
	tasks, err := d.client.ListLegacyTasks(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("load legacy tasks")
		d.view.ShowListError(StreamLegacy, err)
		return
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	d.mu.Lock()
	d.legacyIDs = ids
	d.mu.Unlock()
	d.view.RenderLegacyTasks(tasks)
}

// RefreshSchedulerTasks reloads and renders the scheduler task list.
func (d *Dashboard) RefreshSchedulerTasks(ctx context.Context) {
	tasks, err := d.client.ListSchedulerTasks(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("load scheduler tasks")
		d.view.ShowListError(StreamScheduler, err)
		return
	}
	d.view.RenderSchedulerTasks(tasks)
}

// pollStatus refreshes the status of every displayed legacy task. It skips the
// tick while disconnected or while a task operation is running.
func (d *Dashboard) pollStatus() {
	if !d.state.IsConnected() || d.guard.Held() {
		return
	}
	d.mu.Lock()
	ids := append([]string(nil), d.legacyIDs...)
	d.mu.Unlock()

	ctx := d.gateway.Context()
	for _, id := range ids {
		if !d.state.IsConnected() {
			return
		}
		status, err := d.client.LegacyTaskStatus(ctx, id)
		if err != nil {
			d.logger.Debug().Err(err).Str("task_id", id).Msg("status poll")
			continue
		}
		d.view.UpdateLegacyStatus(*status)
	}
}

// ---- Guarded operations ----

func (d *Dashboard) guarded(name, taskID string, fn func() error) error {
	if !client.ValidTaskID(taskID) {
		d.view.ShowMessage(LevelError, "Invalid task id")
		return fmt.Errorf("%w: %q", client.ErrInvalidTaskID, taskID)
	}
	ran, err := d.guard.Run(name, fn)
	if !ran {
		d.view.ShowMessage(LevelWarning, "Another task operation is in progress")
		return ErrOperationInProgress
	}
	return err
}

// StartLegacyTask starts a legacy task, then reloads the list and shows its logs.
func (d *Dashboard) StartLegacyTask(ctx context.Context, id string) error {
	return d.guarded("start", id, func() error {
		msg, err := d.client.StartLegacyTask(ctx, id)
		if err != nil {
			d.view.ShowMessage(LevelError, failureText("Failed to start task", err))
			return err
		}
		d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+id+" started"))
		if err := sleep(ctx, d.opts.StartSettle); err != nil {
			return err
		}
		d.RefreshLegacyTasks(ctx)
		d.legacyTail.Select(ctx, id)
		return nil
	})
}

// StopLegacyTask stops a legacy task and reloads the list.
func (d *Dashboard) StopLegacyTask(ctx context.Context, id string) error {
	return d.guarded("stop", id, func() error {
		msg, err := d.client.StopLegacyTask(ctx, id)
		if err != nil {
			d.view.ShowMessage(LevelError, failureText("Failed to stop task", err))
			return err
		}
		d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+id+" stopped"))
		d.RefreshLegacyTasks(ctx)
		return nil
	})
}

// ToggleLegacyTask enables or disables a legacy task.
func (d *Dashboard) ToggleLegacyTask(ctx context.Context, id string, enabled bool) error {
	return d.guarded("toggle", id, func() error {
		msg, err := d.client.ToggleLegacyTask(ctx, id, enabled)
		if err != nil {
			d.view.ShowMessage(LevelError, failureText("Failed to "+enableVerb(enabled)+" task", err))
			return err
		}
		d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+id+" "+enableVerb(enabled)+"d"))
		d.RefreshLegacyTasks(ctx)
		return nil
	})
}

// RunSchedulerTask triggers an immediate run and then tails the task's log.
func (d *Dashboard) RunSchedulerTask(ctx context.Context, id string) error {
	return d.guarded("run-once", id, func() error {
		msg, err := d.client.RunSchedulerTaskOnce(ctx, id)
		if err != nil {
			d.view.ShowMessage(LevelError, failureText("Failed to run task", err))
			return err
		}
		d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+id+" started"))
		if err := sleep(ctx, d.opts.RunSettle); err != nil {
			return err
		}
		d.schedulerTail.Select(ctx, id)
		return nil
	})
}

// ToggleSchedulerTask enables or disables a scheduler task.
func (d *Dashboard) ToggleSchedulerTask(ctx context.Context, id string, enabled bool) error {
	return d.guarded("toggle", id, func() error {
		msg, err := d.client.ToggleSchedulerTask(ctx, id, enabled)
		if err != nil {
			d.view.ShowMessage(LevelError, failureText("Failed to "+enableVerb(enabled)+" task", err))
			return err
		}
		d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+id+" "+enableVerb(enabled)+"d"))
		d.RefreshSchedulerTasks(ctx)
		return nil
	})
}

// ---- Scheduler task management ----

// CreateSchedulerTask creates a new, initially disabled, task.
func (d *Dashboard) CreateSchedulerTask(ctx context.Context, task models.SchedulerTask) error {
	task.ID = strings.TrimSpace(task.ID)
	if !client.ValidNewTaskID(task.ID) {
		d.view.ShowMessage(LevelError, "Task id may only contain letters, digits, underscores and hyphens")
		return fmt.Errorf("%w: %q", client.ErrInvalidTaskIDChars, task.ID)
	}
	if task.LogPath == "" {
		task.LogPath = "logs/task_" + task.ID + ".log"
	}
	task.Enabled = false
	if task.Env == nil {
		task.Env = map[string]string{}
	}
	if task.Dependencies == nil {
		task.Dependencies = []string{}
	}
	if task.Notify == nil {
		task.Notify = map[string]any{}
	}

	msg, err := d.client.CreateSchedulerTask(ctx, task)
	if err != nil {
		d.view.ShowMessage(LevelError, failureText("Failed to create task", err))
		return err
	}
	d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+task.ID+" created"))
	d.RefreshSchedulerTasks(ctx)
	return nil
}

// UpdateSchedulerTask saves edits to an existing task.
func (d *Dashboard) UpdateSchedulerTask(ctx context.Context, task models.SchedulerTask) error {
	if !client.ValidTaskID(task.ID) {
		d.view.ShowMessage(LevelError, "Invalid task id")
		return fmt.Errorf("%w: %q", client.ErrInvalidTaskID, task.ID)
	}
	msg, err := d.client.UpdateSchedulerTask(ctx, task)
	if err != nil {
		d.view.ShowMessage(LevelError, failureText("Failed to update task", err))
		return err
	}
	d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+task.ID+" updated"))
	d.RefreshSchedulerTasks(ctx)
	return nil
}

// DeleteSchedulerTask deletes a task and clears its log view if it was shown.
func (d *Dashboard) DeleteSchedulerTask(ctx context.Context, id string) error {
	if !client.ValidTaskID(id) {
		d.view.ShowMessage(LevelError, "Invalid task id")
		return fmt.Errorf("%w: %q", client.ErrInvalidTaskID, id)
	}
	msg, err := d.client.DeleteSchedulerTask(ctx, id)
	if err != nil {
		d.view.ShowMessage(LevelError, failureText("Failed to delete task", err))
		return err
	}
	d.view.ShowMessage(LevelSuccess, orDefault(msg, "Task "+id+" deleted"))
	if d.schedulerTail.Selected() == id {
		d.schedulerTail.Clear()
	}
	d.RefreshSchedulerTasks(ctx)
	return nil
}

// ValidateCron checks a cron expression against the backend.
func (d *Dashboard) ValidateCron(ctx context.Context, expr string) (*models.CronValidation, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &models.CronValidation{Valid: false, Error: "empty expression"}, nil
	}
	result, err := d.client.ValidateCron(ctx, expr)
	if err != nil {
		d.view.ShowMessage(LevelError, failureText("Failed to validate cron expression", err))
		return nil, err
	}
	if result.Valid {
		d.view.ShowMessage(LevelInfo, "Valid schedule, next run "+result.NextRun)
	} else {
		d.view.ShowMessage(LevelWarning, "Invalid schedule: "+result.Error)
	}
	return result, nil
}

// ---- Logs ----

// logTail is the stream-independent part of resilience.LogTail.
type logTail interface {
	Select(ctx context.Context, taskID string)
	Refresh(ctx context.Context) error
	Restart(ctx context.Context) error
	Suspend()
	Selected() string
	AutoRefreshing() bool
}

func (d *Dashboard) tail(stream Stream) logTail {
	if stream == StreamLegacy {
		return d.legacyTail
	}
	return d.schedulerTail
}

// ViewLogs shows and tails the logs of a task.
func (d *Dashboard) ViewLogs(ctx context.Context, stream Stream, id string) error {
	if !client.ValidTaskID(id) {
		d.view.ShowMessage(LevelError, "Invalid task id")
		return fmt.Errorf("%w: %q", client.ErrInvalidTaskID, id)
	}
	d.tail(stream).Select(ctx, id)
	return nil
}

// RefreshLogs fetches the selected task's logs once.
func (d *Dashboard) RefreshLogs(ctx context.Context, stream Stream) error {
	err := d.tail(stream).Refresh(ctx)
	if errors.Is(err, resilience.ErrNoSelection) {
		d.view.ShowMessage(LevelWarning, "Select a task first")
	}
	return err
}

// ToggleLogAutoRefresh pauses or resumes auto-refresh of the selected task's logs.
func (d *Dashboard) ToggleLogAutoRefresh(ctx context.Context, stream Stream) error {
	t := d.tail(stream)
	id := t.Selected()
	if id == "" {
		d.view.ShowMessage(LevelWarning, "Select a task first")
		return resilience.ErrNoSelection
	}
	if t.AutoRefreshing() {
		t.Suspend()
		return nil
	}
	t.Select(ctx, id)
	return nil
}

// LogSelection returns the task whose logs are shown on the stream.
func (d *Dashboard) LogSelection(stream Stream) string {
	return d.tail(stream).Selected()
}

// ClearLogs truncates the selected task's log on the backend.
func (d *Dashboard) ClearLogs(ctx context.Context, stream Stream) error {
	t := d.tail(stream)
	id := t.Selected()
	if id == "" {
		d.view.ShowMessage(LevelWarning, "Select a task first")
		return resilience.ErrNoSelection
	}

	var msg string
	var err error
	if stream == StreamLegacy {
		msg, err = d.client.ClearLegacyLogs(ctx, id)
	} else {
		if _, err = d.client.GetSchedulerTask(ctx, id); err == nil {
			msg, err = d.client.ClearSchedulerLogs(ctx, id)
		}
	}
	if err != nil {
		d.view.ShowMessage(LevelError, failureText("Failed to clear logs", err))
		_ = t.Refresh(ctx)
		return err
	}

	d.view.ShowMessage(LevelSuccess, orDefault(msg, "Logs cleared"))
	d.view.ClearLogs(stream, PlaceholderCleared)
	return t.Restart(ctx)
}

// ---- Backend configuration ----

// LoadConfig fetches the backend configuration.
func (d *Dashboard) LoadConfig(ctx context.Context) (map[string]string, error) {
	cfg, err := d.client.GetConfig(ctx)
	if err != nil {
		d.view.ShowMessage(LevelError, failureText("Failed to load configuration", err))
		return nil, err
	}
	return cfg, nil
}

// SaveConfig stores the backend configuration.
func (d *Dashboard) SaveConfig(ctx context.Context, cfg map[string]string) error {
	msg, err := d.client.SaveConfig(ctx, cfg)
	if err != nil {
		d.view.ShowMessage(LevelError, failureText("Failed to save configuration", err))
		return err
	}
	d.view.ShowMessage(LevelSuccess, orDefault(msg, "Configuration saved"))
	return nil
}

// ---- helpers ----

func failureText(prefix string, err error) string {
	var be *client.BusinessError
	switch {
	case errors.As(err, &be):
		return prefix + ": " + be.Error()
	case errors.Is(err, resilience.ErrTransport):
		return prefix + ": network error"
	default:
		var httpErr *resilience.HTTPError
		if errors.As(err, &httpErr) {
			return fmt.Sprintf("%s: server returned %d", prefix, httpErr.StatusCode)
		}
		return prefix + ": " + err.Error()
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func enableVerb(enabled bool) string {
	if enabled {
		return "enable"
	}
	return "disable"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
