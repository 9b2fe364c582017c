// Package client wraps the task backend's HTTP API. Every call goes through the
// resilience gateway so that connectivity is tracked in one place.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/fentz26/taskdeck/internal/models"
	"github.com/fentz26/taskdeck/internal/resilience"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// HeaderRequestID tags mutating requests so the backend can log and dedupe them.
const HeaderRequestID = "X-Request-ID"

var (
	// ErrInvalidTaskID is returned for empty, blank or "null" task ids.
	ErrInvalidTaskID = errors.New("invalid task id")
	// ErrInvalidTaskIDChars is returned when a new task id has characters outside [a-zA-Z0-9_-].
	ErrInvalidTaskIDChars = errors.New("task id may only contain letters, digits, underscores and hyphens")
	// ErrMalformedResponse is returned when a 2xx body is not a JSON envelope.
	ErrMalformedResponse = errors.New("malformed response body")
)

var taskIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// BusinessError is a 2xx response whose envelope reports success=false.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return "request rejected by server"
	}
	return e.Message
}

// ValidTaskID reports whether id can be sent to the backend.
func ValidTaskID(id string) bool {
	return strings.TrimSpace(id) != "" && id != "null" && id != "undefined"
}

// ValidNewTaskID reports whether id is acceptable for a new task.
func ValidNewTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// Client calls the task backend.
type Client struct {
	gw *resilience.Gateway
}

// New creates a client on top of the gateway.
func New(gw *resilience.Gateway) *Client {
	return &Client{gw: gw}
}

// Gateway returns the underlying request gateway.
func (c *Client) Gateway() *resilience.Gateway {
	return c.gw
}

// call sends one request and returns the parsed envelope.
func (c *Client) call(ctx context.Context, method, path string, body any, headers map[string]string, label string) (gjson.Result, error) {
	req, err := c.gw.NewRequest(ctx, method, path, body)
	if err != nil {
		return gjson.Result{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.gw.Execute(req, label)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, fmt.Errorf("%s: %w", label, ErrMalformedResponse)
	}

	env := gjson.ParseBytes(resp.Body)
	if !env.Get("success").Bool() {
		return env, &BusinessError{Message: env.Get("message").String()}
	}
	return env, nil
}

func decode(env gjson.Result, path string, v any) error {
	raw := env.Get(path).Raw
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func taskPath(prefix, id string, suffix ...string) string {
	p := prefix + "/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func checkID(id string) error {
	if !ValidTaskID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	return nil
}

// ---- Scheduler surface ----

const schedulerTasks = "/api/scheduler/tasks"

// ListSchedulerTasks fetches all scheduler tasks.
func (c *Client) ListSchedulerTasks(ctx context.Context) ([]models.SchedulerTask, error) {
	env, err := c.call(ctx, http.MethodGet, schedulerTasks, nil, nil, "list scheduler tasks")
	if err != nil {
		return nil, err
	}
	var tasks []models.SchedulerTask
	if err := decode(env, "data", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetSchedulerTask fetches a single scheduler task.
func (c *Client) GetSchedulerTask(ctx context.Context, id string) (*models.SchedulerTask, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	env, err := c.call(ctx, http.MethodGet, taskPath(schedulerTasks, id), nil, nil, "get scheduler task "+id)
	if err != nil {
		return nil, err
	}
	var task models.SchedulerTask
	if err := decode(env, "data", &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateSchedulerTask creates a task. The id must match [a-zA-Z0-9_-]+.
func (c *Client) CreateSchedulerTask(ctx context.Context, task models.SchedulerTask) (string, error) {
	if !ValidNewTaskID(task.ID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskIDChars, task.ID)
	}
	headers := map[string]string{HeaderRequestID: "create_" + task.ID + "_" + uuid.NewString()}
	env, err := c.call(ctx, http.MethodPost, schedulerTasks, task, headers, "create scheduler task "+task.ID)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// UpdateSchedulerTask replaces the editable fields of a task. Dependencies and
// notification settings are taken from the stored task, since the edit form
// does not carry them.
func (c *Client) UpdateSchedulerTask(ctx context.Context, task models.SchedulerTask) (string, error) {
	original, err := c.GetSchedulerTask(ctx, task.ID)
	if err != nil {
		return "", fmt.Errorf("load task before update: %w", err)
	}
	task.Dependencies = original.Dependencies
	task.Notify = original.Notify

	headers := map[string]string{HeaderRequestID: "edit_" + task.ID + "_" + uuid.NewString()}
	env, err := c.call(ctx, http.MethodPut, taskPath(schedulerTasks, task.ID), task, headers, "update scheduler task "+task.ID)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// DeleteSchedulerTask deletes a task.
func (c *Client) DeleteSchedulerTask(ctx context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	env, err := c.call(ctx, http.MethodDelete, taskPath(schedulerTasks, id), nil, nil, "delete scheduler task "+id)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// RunSchedulerTaskOnce triggers an immediate run.
func (c *Client) RunSchedulerTaskOnce(ctx context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	env, err := c.call(ctx, http.MethodPost, taskPath(schedulerTasks, id, "run-once"), nil, nil, "run scheduler task "+id)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// ToggleSchedulerTask enables or disables a task.
func (c *Client) ToggleSchedulerTask(ctx context.Context, id string, enabled bool) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	body := map[string]bool{"enabled": enabled}
	env, err := c.call(ctx, http.MethodPost, taskPath(schedulerTasks, id, "toggle"), body, nil, "toggle scheduler task "+id)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// SchedulerLogs fetches the tail of a task's log file.
func (c *Client) SchedulerLogs(ctx context.Context, id string) (*models.LogBatch, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	env, err := c.call(ctx, http.MethodGet, taskPath(schedulerTasks, id, "logs"), nil, nil, "scheduler logs "+id)
	if err != nil {
		return nil, err
	}
	batch := &models.LogBatch{TaskID: id, LogFile: env.Get("log_file").String()}
	if err := decode(env, "data", &batch.Lines); err != nil {
		return nil, err
	}
	return batch, nil
}

// ClearSchedulerLogs truncates a task's log file.
func (c *Client) ClearSchedulerLogs(ctx context.Context, id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	env, err := c.call(ctx, http.MethodPost, taskPath(schedulerTasks, id, "logs", "clear"), nil, nil, "clear scheduler logs "+id)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// ValidateCron asks the backend whether expr is a valid schedule.
func (c *Client) ValidateCron(ctx context.Context, expr string) (*models.CronValidation, error) {
	body := map[string]string{"cron": expr}
	env, err := c.call(ctx, http.MethodPost, "/api/scheduler/validate-cron", body, nil, "validate cron")
	if err != nil {
		return nil, err
	}
	var result models.CronValidation
	if err := decode(env, "data", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ---- Legacy surface ----

const legacyTasks = "/api/tasks"

// ListLegacyTasks fetches all legacy tasks.
func (c *Client) ListLegacyTasks(ctx context.Context) ([]models.LegacyTask, error) {
	env, err := c.call(ctx, http.MethodGet, legacyTasks, nil, nil, "list legacy tasks")
	if err != nil {
		return nil, err
	}
	var tasks []models.LegacyTask
	if err := decode(env, "tasks", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetLegacyTask fetches a single legacy task.
func (c *Client) GetLegacyTask(ctx context.Context, id string) (*models.LegacyTask, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	env, err := c.call(ctx, http.MethodGet, taskPath(legacyTasks, id), nil, nil, "get legacy task "+id)
	if err != nil {
		return nil, err
	}
	var task models.LegacyTask
	if err := decode(env, "task", &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateLegacyTask registers a new legacy task.
func (c *Client) CreateLegacyTask(ctx context.Context, task models.LegacyTask) (string, error) {
	if !ValidNewTaskID(task.ID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskIDChars, task.ID)
	}
	headers := map[string]string{HeaderRequestID: "create_" + task.ID + "_" + uuid.NewString()}
	env, err := c.call(ctx, http.MethodPost, legacyTasks, task, headers, "create legacy task "+task.ID)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// StartLegacyTask starts a legacy task process.
func (c *Client) StartLegacyTask(ctx context.Context, id string) (string, error) {
	return c.legacyAction(ctx, id, "start", nil)
}

// StopLegacyTask stops a legacy task process.
func (c *Client) StopLegacyTask(ctx context.Context, id string) (string, error) {
	return c.legacyAction(ctx, id, "stop", nil)
}

// ToggleLegacyTask enables or disables a legacy task.
func (c *Client) ToggleLegacyTask(ctx context.Context, id string, enabled bool) (string, error) {
	return c.legacyAction(ctx, id, "toggle", map[string]bool{"enabled": enabled})
}

// ClearLegacyLogs truncates a legacy task's log.
func (c *Client) ClearLegacyLogs(ctx context.Context, id string) (string, error) {
	return c.legacyAction(ctx, id, "logs/clear", nil)
}

func (c *Client) legacyAction(ctx context.Context, id, action string, body any) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	env, err := c.call(ctx, http.MethodPost, taskPath(legacyTasks, id, action), body, nil, "legacy "+action+" "+id)
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}

// LegacyTaskStatus fetches the run state of a legacy task.
func (c *Client) LegacyTaskStatus(ctx context.Context, id string) (*models.LegacyTaskStatus, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	env, err := c.call(ctx, http.MethodGet, taskPath(legacyTasks, id, "status"), nil, nil, "legacy status "+id)
	if err != nil {
		return nil, err
	}
	return &models.LegacyTaskStatus{
		ID:      id,
		Status:  models.LegacyStatus(env.Get("status").String()),
		Enabled: env.Get("enabled").Bool(),
	}, nil
}

// LegacyLogs fetches up to limit recent log entries of a legacy task.
func (c *Client) LegacyLogs(ctx context.Context, id string, limit int) ([]models.LegacyLogEntry, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	path := taskPath(legacyTasks, id, "logs")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	env, err := c.call(ctx, http.MethodGet, path, nil, nil, "legacy logs "+id)
	if err != nil {
		return nil, err
	}
	var entries []models.LegacyLogEntry
	if err := decode(env, "logs", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetConfig fetches the backend configuration.
func (c *Client) GetConfig(ctx context.Context) (map[string]string, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/config", nil, nil, "load config")
	if err != nil {
		return nil, err
	}
	cfg := make(map[string]string)
	env.Get("config").ForEach(func(key, value gjson.Result) bool {
		cfg[key.String()] = value.String()
		return true
	})
	return cfg, nil
}

// SaveConfig stores the backend configuration.
func (c *Client) SaveConfig(ctx context.Context, cfg map[string]string) (string, error) {
	env, err := c.call(ctx, http.MethodPost, "/api/config", cfg, nil, "save config")
	if err != nil {
		return "", err
	}
	return env.Get("message").String(), nil
}
