package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fentz26/taskdeck/internal/models"
	"github.com/rs/zerolog"
)

// Request headers the dashboard sends.
const (
	headerRequestID   = "X-Request-ID"
	headerHealthCheck = "X-Health-Check"
)

// Server provides the HTTP API of the development backend.
type Server struct {
	service   *Service
	addr      string
	server    *http.Server
	logger    zerolog.Logger
	available atomic.Bool
}

// NewServer creates a new HTTP server. It starts out available.
func NewServer(service *Service, addr string, logger zerolog.Logger) *Server {
	s := &Server{
		service: service,
		addr:    addr,
		logger:  logger,
	}
	s.available.Store(true)
	return s
}

// SetAvailable toggles the simulated outage. While unavailable every /api route answers 503.
func (s *Server) SetAvailable(available bool) {
	if s.available.Swap(available) != available {
		s.logger.Warn().Bool("available", available).Msg("availability changed")
	}
}

// Available reports whether /api routes are being served.
func (s *Server) Available() bool {
	return s.available.Load()
}

// Handler returns the routed HTTP handler with logging and availability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/scheduler/tasks", s.handleSchedulerTasks)
	mux.HandleFunc("/api/scheduler/tasks/", s.handleSchedulerTaskByID)
	mux.HandleFunc("/api/scheduler/validate-cron", s.handleValidateCron)

	mux.HandleFunc("/api/tasks", s.handleLegacyTasks)
	mux.HandleFunc("/api/tasks/", s.handleLegacyTaskByID)

	mux.HandleFunc("/api/config", s.handleConfig)

	mux.HandleFunc("/debug/availability", s.handleAvailability)
	mux.HandleFunc("/health", s.handleHealth)

	return s.logRequests(s.gate(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("starting task backend")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := zerolog.DebugLevel
		if rec.status >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}
		ev := s.logger.WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start))
		if id := r.Header.Get(headerRequestID); id != "" {
			ev = ev.Str("request_id", id)
		}
		if r.Header.Get(headerHealthCheck) == "true" {
			ev = ev.Bool("health_check", true)
		}
		ev.Msg("request")
	})
}

func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Available() && strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSON(w, http.StatusServiceUnavailable, models.Envelope{Success: false, Message: "service unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Responses ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ok writes a success envelope carrying the given top-level fields.
func ok(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func okMessage(w http.ResponseWriter, message string) {
	ok(w, map[string]any{"message": message})
}

// fail reports business errors as success=false and everything else as a 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if isBusiness(err) {
		writeJSON(w, http.StatusOK, models.Envelope{Success: false, Message: err.Error()})
		return
	}
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, models.Envelope{Success: false, Message: "internal error"})
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, models.Envelope{Success: false, Message: "invalid json"})
	return false
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, models.Envelope{Success: false, Message: "not found"})
}

// splitTaskPath splits "/prefix/{id}/{action...}" into the id and the action.
func splitTaskPath(path, prefix string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ := strings.Cut(rest, "/")
	return id, action
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func enabledMessage(enabled bool) string {
	if enabled {
		return "Task enabled"
	}
	return "Task disabled"
}

// --- Scheduler handlers ---

func (s *Server) handleSchedulerTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.service.ListSchedulerTasks()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"data": tasks, "total": len(tasks)})
	case http.MethodPost:
		var task models.SchedulerTask
		if !decodeBody(w, r, &task) {
			return
		}
		if err := s.service.CreateSchedulerTask(task, r.Header.Get(headerRequestID)); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Task created")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSchedulerTaskByID(w http.ResponseWriter, r *http.Request) {
	taskID, action := splitTaskPath(r.URL.Path, "/api/scheduler/tasks/")
	if taskID == "" {
		notFound(w)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		task, err := s.service.GetSchedulerTask(taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"data": task})
	case action == "" && r.Method == http.MethodPut:
		var task models.SchedulerTask
		if !decodeBody(w, r, &task) {
			return
		}
		task.ID = taskID
		if err := s.service.UpdateSchedulerTask(task, r.Header.Get(headerRequestID)); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Task updated")
	case action == "" && r.Method == http.MethodDelete:
		if err := s.service.DeleteSchedulerTask(taskID); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Task deleted")
	case action == "run-once" && r.Method == http.MethodPost:
		if err := s.service.RunSchedulerTask(taskID); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Task dispatched")
	case action == "toggle" && r.Method == http.MethodPost:
		var req toggleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		enabled, err := s.service.ToggleSchedulerTask(taskID, req.Enabled)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"message": enabledMessage(enabled), "data": map[string]bool{"enabled": enabled}})
	case action == "logs" && r.Method == http.MethodGet:
		lines, logFile, err := s.service.SchedulerLogs(taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"data": lines, "log_file": logFile})
	case action == "logs/clear" && r.Method == http.MethodPost:
		if err := s.service.ClearSchedulerLogs(taskID); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Logs cleared")
	default:
		notFound(w)
	}
}

type validateCronRequest struct {
	Cron string `json:"cron"`
}

func (s *Server) handleValidateCron(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req validateCronRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ok(w, map[string]any{"data": s.service.ValidateCron(req.Cron)})
}

// --- Legacy handlers ---

func (s *Server) handleLegacyTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.service.ListLegacyTasks()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"tasks": tasks})
	case http.MethodPost:
		var task models.LegacyTask
		if !decodeBody(w, r, &task) {
			return
		}
		if err := s.service.CreateLegacyTask(task); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Task created")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLegacyTaskByID(w http.ResponseWriter, r *http.Request) {
	taskID, action := splitTaskPath(r.URL.Path, "/api/tasks/")
	if taskID == "" {
		notFound(w)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		task, err := s.service.GetLegacyTask(taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"task": task})
	case action == "start" && r.Method == http.MethodPost:
		if err := s.service.StartLegacyTask(taskID); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Task started")
	case action == "stop" && r.Method == http.MethodPost:
		if err := s.service.StopLegacyTask(taskID); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Task stopped")
	case action == "toggle" && r.Method == http.MethodPost:
		var req toggleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		enabled, err := s.service.ToggleLegacyTask(taskID, req.Enabled)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"message": enabledMessage(enabled), "enabled": enabled})
	case action == "status" && r.Method == http.MethodGet:
		status, err := s.service.LegacyStatus(taskID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"status": status.Status, "enabled": status.Enabled})
	case action == "logs" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := s.service.LegacyLogs(taskID, limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"logs": entries})
	case action == "logs/clear" && r.Method == http.MethodPost:
		if err := s.service.ClearLegacyLogs(taskID); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Logs cleared")
	default:
		notFound(w)
	}
}

// --- Config and debug handlers ---

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.service.Config()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ok(w, map[string]any{"config": cfg})
	case http.MethodPost:
		values := map[string]any{}
		if !decodeBody(w, r, &values) {
			return
		}
		if err := s.service.SaveConfig(values); err != nil {
			s.fail(w, r, err)
			return
		}
		okMessage(w, "Configuration saved")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK        bool   `json:"ok"`
	DB        string `json:"db"`
	Available bool   `json:"available"`
	Time      string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	health := HealthResponse{OK: true, DB: "ok", Available: s.Available(), Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if err := s.service.Ping(r.Context()); err != nil {
		health.OK = false
		health.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ok(w, map[string]any{"available": s.Available()})
	case http.MethodPost:
		var req availabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s.SetAvailable(req.Available)
		ok(w, map[string]any{"available": req.Available})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
