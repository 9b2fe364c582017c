package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/fentz26/taskdeck/internal/models"
	"github.com/fentz26/taskdeck/internal/resilience"
	"github.com/fentz26/taskdeck/internal/resilience/resiliencetest"
	"github.com/h2non/gock"
	"github.com/rs/zerolog"
)

const testBase = "http://backend.test"

func newTestClient(t *testing.T) (*Client, *resilience.ConnectionState) {
	t.Helper()
	httpClient := &http.Client{}
	gock.InterceptClient(httpClient)
	t.Cleanup(func() {
		gock.RestoreClient(httpClient)
		gock.OffAll()
	})

	state := resilience.NewConnectionState()
	registry := resilience.NewIntervalRegistry(resiliencetest.NewManualClock(), zerolog.Nop())
	gw := resilience.NewGateway(resilience.GatewayConfig{BaseURL: testBase}, httpClient, state, registry, zerolog.Nop())
	return New(gw), state
}

func TestValidTaskID(t *testing.T) {
	for _, id := range []string{"", "   ", "null", "undefined"} {
		if ValidTaskID(id) {
			t.Errorf("Expected %q to be invalid", id)
		}
	}
	if !ValidTaskID("backup_daily") {
		t.Error("Expected backup_daily to be valid")
	}
	if ValidNewTaskID("has space") {
		t.Error("Expected id with space to be rejected for creation")
	}
	if !ValidNewTaskID("nightly-2") {
		t.Error("Expected nightly-2 to be accepted for creation")
	}
}

func TestListSchedulerTasks(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Get("/api/scheduler/tasks").
		Reply(200).
		JSON(map[string]any{
			"success": true,
			"total":   1,
			"data": []map[string]any{
				{"task_id": "backup", "task_name": "Backup", "task_schedule": "0 3 * * *", "task_enabled": true},
			},
		})

	tasks, err := c.ListSchedulerTasks(context.Background())
	if err != nil {
		t.Fatalf("ListSchedulerTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	if tasks[0].ID != "backup" || !tasks[0].Enabled {
		t.Errorf("Unexpected task: %+v", tasks[0])
	}
	if !gock.IsDone() {
		t.Error("Expected all mocks to be consumed")
	}
}

func TestBusinessFailureKeepsConnection(t *testing.T) {
	c, state := newTestClient(t)
	gock.New(testBase).
		Post("/api/tasks/backup/start").
		Reply(200).
		JSON(map[string]any{"success": false, "message": "task already running"})

	_, err := c.StartLegacyTask(context.Background(), "backup")
	var be *BusinessError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BusinessError, got %v", err)
	}
	if be.Message != "task already running" {
		t.Errorf("Expected message 'task already running', got '%s'", be.Message)
	}
	if !state.IsConnected() {
		t.Error("Expected a business failure to leave the connection up")
	}
}

func TestServerErrorMarksDisconnected(t *testing.T) {
	c, state := newTestClient(t)
	gock.New(testBase).
		Get("/api/tasks").
		Reply(500).
		JSON(map[string]any{"success": false, "message": "boom"})

	_, err := c.ListLegacyTasks(context.Background())
	var httpErr *resilience.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if state.IsConnected() {
		t.Error("Expected 500 to mark the backend disconnected")
	}
}

func TestMalformedBody(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Get("/api/scheduler/tasks").
		Reply(200).
		BodyString("<html>proxy error</html>")

	if _, err := c.ListSchedulerTasks(context.Background()); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
}

func TestInvalidIDSendsNoRequest(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Post("/api/tasks/null/start").
		Reply(200).
		JSON(map[string]any{"success": true})

	if _, err := c.StartLegacyTask(context.Background(), "null"); !errors.Is(err, ErrInvalidTaskID) {
		t.Errorf("Expected ErrInvalidTaskID, got %v", err)
	}
	if gock.IsDone() {
		t.Error("Expected no request to be sent for an invalid id")
	}
}

func TestCreateSchedulerTask(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Post("/api/scheduler/tasks").
		MatchHeader(HeaderRequestID, "^create_nightly_").
		Reply(200).
		JSON(map[string]any{"success": true, "message": "task created"})

	task := models.SchedulerTask{ID: "nightly", Name: "Nightly"}
	msg, err := c.CreateSchedulerTask(context.Background(), task)
	if err != nil {
		t.Fatalf("CreateSchedulerTask failed: %v", err)
	}
	if msg != "task created" {
		t.Errorf("Expected 'task created', got '%s'", msg)
	}

	if _, err := c.CreateSchedulerTask(context.Background(), models.SchedulerTask{ID: "bad id"}); !errors.Is(err, ErrInvalidTaskIDChars) {
		t.Errorf("Expected ErrInvalidTaskIDChars, got %v", err)
	}
}

func TestUpdateSchedulerTaskKeepsHiddenFields(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Get("/api/scheduler/tasks/nightly").
		Reply(200).
		JSON(map[string]any{
			"success": true,
			"data": map[string]any{
				"task_id":           "nightly",
				"task_dependencies": []string{"backup"},
				"task_notify":       map[string]any{"email": "ops@example.com"},
			},
		})
	gock.New(testBase).
		Put("/api/scheduler/tasks/nightly").
		MatchHeader(HeaderRequestID, "^edit_nightly_").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return false, err
			}
			return strings.Contains(string(body), `"task_dependencies":["backup"]`), nil
		}).
		Reply(200).
		JSON(map[string]any{"success": true, "message": "updated"})

	_, err := c.UpdateSchedulerTask(context.Background(), models.SchedulerTask{ID: "nightly", Name: "Nightly v2"})
	if err != nil {
		t.Fatalf("UpdateSchedulerTask failed: %v", err)
	}
	if !gock.IsDone() {
		t.Error("Expected both the fetch and the update to be sent")
	}
}

func TestSchedulerLogs(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Get("/api/scheduler/tasks/nightly/logs").
		Reply(200).
		JSON(map[string]any{
			"success":  true,
			"log_file": "logs/task_nightly.log",
			"data": []map[string]any{
				{"line": 1, "content": "starting"},
				{"line": 2, "content": "done"},
			},
		})

	batch, err := c.SchedulerLogs(context.Background(), "nightly")
	if err != nil {
		t.Fatalf("SchedulerLogs failed: %v", err)
	}
	if batch.LogFile != "logs/task_nightly.log" {
		t.Errorf("Expected log file, got '%s'", batch.LogFile)
	}
	if len(batch.Lines) != 2 || batch.Lines[1].Content != "done" {
		t.Errorf("Unexpected lines: %+v", batch.Lines)
	}
}

func TestLegacyLogsAndStatus(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Get("/api/tasks/backup/logs").
		MatchParam("limit", "100").
		Reply(200).
		JSON(map[string]any{
			"success": true,
			"logs": []map[string]any{
				{"timestamp": "2024-01-01 10:00:00", "level": "INFO", "message": "ok"},
				{"raw": "unparsed line"},
			},
		})
	gock.New(testBase).
		Get("/api/tasks/backup/status").
		Reply(200).
		JSON(map[string]any{"success": true, "status": "running", "enabled": true})

	entries, err := c.LegacyLogs(context.Background(), "backup", 100)
	if err != nil {
		t.Fatalf("LegacyLogs failed: %v", err)
	}
	if len(entries) != 2 || entries[1].Raw != "unparsed line" {
		t.Errorf("Unexpected entries: %+v", entries)
	}

	status, err := c.LegacyTaskStatus(context.Background(), "backup")
	if err != nil {
		t.Fatalf("LegacyTaskStatus failed: %v", err)
	}
	if status.Status != models.LegacyStatusRunning || !status.Enabled {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestValidateCron(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Post("/api/scheduler/validate-cron").
		JSON(map[string]string{"cron": "*/5 * * * *"}).
		Reply(200).
		JSON(map[string]any{"success": true, "data": map[string]any{"valid": true, "next_run": "2024-01-01T10:05:00Z"}})

	result, err := c.ValidateCron(context.Background(), "*/5 * * * *")
	if err != nil {
		t.Fatalf("ValidateCron failed: %v", err)
	}
	if !result.Valid || result.NextRun == "" {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	gock.New(testBase).
		Get("/api/config").
		Reply(200).
		JSON(map[string]any{"success": true, "config": map[string]any{"username": "ops", "retries": 3}})
	gock.New(testBase).
		Post("/api/config").
		JSON(map[string]string{"username": "admin"}).
		Reply(200).
		JSON(map[string]any{"success": true, "message": "saved"})

	cfg, err := c.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if cfg["username"] != "ops" || cfg["retries"] != "3" {
		t.Errorf("Unexpected config: %v", cfg)
	}
	msg, err := c.SaveConfig(context.Background(), map[string]string{"username": "admin"})
	if err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if msg != "saved" {
		t.Errorf("Expected 'saved', got '%s'", msg)
	}
}
