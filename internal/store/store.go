// Package store provides SQLite-backed persistence for the development backend.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/taskdeck/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Log streams.
const (
	StreamLegacy    = "legacy"
	StreamScheduler = "scheduler"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrExists is returned when creating a task whose id is taken.
	ErrExists = errors.New("task already exists")
)

// Store provides access to the backend SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scheduler_tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		exec TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		script_type TEXT NOT NULL DEFAULT '',
		timeout INTEGER NOT NULL DEFAULT 0,
		retry INTEGER NOT NULL DEFAULT 0,
		retry_interval INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 0,
		log_path TEXT NOT NULL DEFAULT '',
		env TEXT,
		dependencies TEXT,
		notify TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS legacy_tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'stopped',
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS log_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stream TEXT NOT NULL,
		task_id TEXT NOT NULL,
		ts DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		stream TEXT NOT NULL,
		task_id TEXT NOT NULL,
		command TEXT NOT NULL,
		exit_code INTEGER,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_log_lines_task ON log_lines(stream, task_id);
	CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Scheduler Task Operations ---

const schedulerColumns = `id, name, exec, schedule, description, script_type, timeout, retry, retry_interval, enabled, log_path, env, dependencies, notify`

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedulerTask(row scanner) (*models.SchedulerTask, error) {
	var task models.SchedulerTask
	var env, deps, notify sql.NullString
	if err := row.Scan(&task.ID, &task.Name, &task.Exec, &task.Schedule, &task.Description, &task.ScriptType,
		&task.Timeout, &task.Retry, &task.RetryInterval, &task.Enabled, &task.LogPath, &env, &deps, &notify); err != nil {
		return nil, err
	}
	task.Env = map[string]string{}
	task.Dependencies = []string{}
	task.Notify = map[string]any{}
	if env.Valid && env.String != "" {
		_ = json.Unmarshal([]byte(env.String), &task.Env)
	}
	if deps.Valid && deps.String != "" {
		_ = json.Unmarshal([]byte(deps.String), &task.Dependencies)
	}
	if notify.Valid && notify.String != "" {
		_ = json.Unmarshal([]byte(notify.String), &task.Notify)
	}
	return &task, nil
}

func encodeExtras(task models.SchedulerTask) (env, deps, notify string) {
	e, _ := json.Marshal(task.Env)
	d, _ := json.Marshal(task.Dependencies)
	n, _ := json.Marshal(task.Notify)
	return string(e), string(d), string(n)
}

// CreateSchedulerTask inserts a scheduler task. The id must be unused.
func (s *Store) CreateSchedulerTask(task models.SchedulerTask) error {
	now := time.Now().UTC()
	env, deps, notify := encodeExtras(task)
	_, err := s.db.Exec(
		`INSERT INTO scheduler_tasks (`+schedulerColumns+`, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Name, task.Exec, task.Schedule, task.Description, task.ScriptType,
		task.Timeout, task.Retry, task.RetryInterval, task.Enabled, task.LogPath, env, deps, notify, now, now,
	)
	if isUniqueViolation(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert scheduler task: %w", err)
	}
	return nil
}

// GetSchedulerTask retrieves a scheduler task by ID.
func (s *Store) GetSchedulerTask(id string) (*models.SchedulerTask, error) {
	task, err := scanSchedulerTask(s.db.QueryRow(`SELECT `+schedulerColumns+` FROM scheduler_tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query scheduler task: %w", err)
	}
	return task, nil
}

// ListSchedulerTasks returns all scheduler tasks ordered by id.
func (s *Store) ListSchedulerTasks() ([]models.SchedulerTask, error) {
	rows, err := s.db.Query(`SELECT ` + schedulerColumns + ` FROM scheduler_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query scheduler tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.SchedulerTask{}
	for rows.Next() {
		task, err := scanSchedulerTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduler task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateSchedulerTask replaces every stored field of an existing scheduler task.
func (s *Store) UpdateSchedulerTask(task models.SchedulerTask) error {
	env, deps, notify := encodeExtras(task)
	res, err := s.db.Exec(
		`UPDATE scheduler_tasks SET name = ?, exec = ?, schedule = ?, description = ?, script_type = ?, timeout = ?, retry = ?,
		retry_interval = ?, enabled = ?, log_path = ?, env = ?, dependencies = ?, notify = ?, updated_at = ? WHERE id = ?`,
		task.Name, task.Exec, task.Schedule, task.Description, task.ScriptType, task.Timeout, task.Retry,
		task.RetryInterval, task.Enabled, task.LogPath, env, deps, notify, time.Now().UTC(), task.ID,
	)
	if err != nil {
		return fmt.Errorf("update scheduler task: %w", err)
	}
	return requireRow(res)
}

// SetSchedulerEnabled flips the enabled flag of a scheduler task.
func (s *Store) SetSchedulerEnabled(id string, enabled bool) error {
	res, err := s.db.Exec(`UPDATE scheduler_tasks SET enabled = ?, updated_at = ? WHERE id = ?`, enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update scheduler task: %w", err)
	}
	return requireRow(res)
}

// DeleteSchedulerTask removes a scheduler task and its log lines.
func (s *Store) DeleteSchedulerTask(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM scheduler_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scheduler task: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM log_lines WHERE stream = ? AND task_id = ?`, StreamScheduler, id); err != nil {
		return fmt.Errorf("delete log lines: %w", err)
	}
	return tx.Commit()
}

// --- Legacy Task Operations ---

func scanLegacyTask(row scanner) (*models.LegacyTask, error) {
	var task models.LegacyTask
	if err := row.Scan(&task.ID, &task.Name, &task.Description, &task.Command, &task.Schedule, &task.Status, &task.Enabled); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateLegacyTask inserts a legacy task in the stopped state.
func (s *Store) CreateLegacyTask(task models.LegacyTask) error {
	if task.Status == "" {
		task.Status = models.LegacyStatusStopped
	}
	_, err := s.db.Exec(
		`INSERT INTO legacy_tasks (id, name, description, command, schedule, status, enabled, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Name, task.Description, task.Command, task.Schedule, task.Status, task.Enabled, time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert legacy task: %w", err)
	}
	return nil
}

// GetLegacyTask retrieves a legacy task by ID.
func (s *Store) GetLegacyTask(id string) (*models.LegacyTask, error) {
	task, err := scanLegacyTask(s.db.QueryRow(
		`SELECT id, name, description, command, schedule, status, enabled FROM legacy_tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query legacy task: %w", err)
	}
	return task, nil
}

// ListLegacyTasks returns all legacy tasks in creation order.
func (s *Store) ListLegacyTasks() ([]models.LegacyTask, error) {
	rows, err := s.db.Query(`SELECT id, name, description, command, schedule, status, enabled FROM legacy_tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query legacy tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.LegacyTask{}
	for rows.Next() {
		task, err := scanLegacyTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan legacy task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// SetLegacyStatus records whether a legacy task is running.
func (s *Store) SetLegacyStatus(id string, status models.LegacyStatus) error {
	res, err := s.db.Exec(`UPDATE legacy_tasks SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update legacy task: %w", err)
	}
	return requireRow(res)
}

// SetLegacyEnabled flips the enabled flag of a legacy task.
func (s *Store) SetLegacyEnabled(id string, enabled bool) error {
	res, err := s.db.Exec(`UPDATE legacy_tasks SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("update legacy task: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Log Operations ---

// AppendLog stores one log line for a task.
func (s *Store) AppendLog(stream, taskID, level, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO log_lines (stream, task_id, ts, level, message) VALUES (?, ?, ?, ?, ?)`,
		stream, taskID, time.Now().UTC(), level, message,
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// TailLogs returns the last limit lines of a task log, oldest first.
// A limit of zero or less returns every line.
func (s *Store) TailLogs(stream, taskID string, limit int) ([]models.LogRecord, error) {
	query := `SELECT id, stream, task_id, ts, level, message FROM log_lines WHERE stream = ? AND task_id = ? ORDER BY id DESC`
	args := []any{stream, taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log lines: %w", err)
	}
	defer rows.Close()

	var records []models.LogRecord
	for rows.Next() {
		var r models.LogRecord
		if err := rows.Scan(&r.ID, &r.Stream, &r.TaskID, &r.Time, &r.Level, &r.Message); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// ClearLogs removes every stored line of a task log.
func (s *Store) ClearLogs(stream, taskID string) error {
	_, err := s.db.Exec(`DELETE FROM log_lines WHERE stream = ? AND task_id = ?`, stream, taskID)
	if err != nil {
		return fmt.Errorf("delete log lines: %w", err)
	}
	return nil
}

// --- Settings Operations ---

// GetSettings returns every stored setting.
func (s *Store) GetSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// SaveSettings upserts the given settings in one transaction.
func (s *Store) SaveSettings(settings map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for k, v := range settings {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v,
		); err != nil {
			return fmt.Errorf("save setting %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// --- Run Operations ---

// CreateRun inserts a new run record.
func (s *Store) CreateRun(stream, taskID, command string) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.New().String(),
		Stream:    stream,
		TaskID:    taskID,
		Command:   command,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, stream, task_id, command, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Stream, run.TaskID, run.Command, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the exit code of a run.
func (s *Store) FinishRun(id string, exitCode int) error {
	_, err := s.db.Exec(`UPDATE runs SET exit_code = ?, ended_at = ? WHERE id = ?`, exitCode, time.Now().UTC(), id)
	return err
}

// RunsForTask returns the runs of a task, newest first.
func (s *Store) RunsForTask(stream, taskID string) ([]models.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, stream, task_id, command, exit_code, started_at, ended_at FROM runs WHERE stream = ? AND task_id = ? ORDER BY started_at DESC`,
		stream, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var exitCode sql.NullInt64
		var endedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.Stream, &run.TaskID, &run.Command, &exitCode, &run.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			run.ExitCode = &code
		}
		if endedAt.Valid {
			run.EndedAt = &endedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
