package scheduler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/taskdeck/internal/connectors"
	"github.com/fentz26/taskdeck/internal/models"
	"github.com/fentz26/taskdeck/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrAtCapacity is returned when every worker slot is busy.
	ErrAtCapacity = errors.New("all workers are busy")
	// ErrAlreadyRunning is returned when starting a legacy task that is running.
	ErrAlreadyRunning = errors.New("task is already running")
	// ErrNotRunning is returned when stopping a legacy task that is not running.
	ErrNotRunning = errors.New("task is not running")
)

// Scheduler executes scheduler tasks on their cron schedule or on demand,
// and keeps legacy tasks looping while they are started.
type Scheduler struct {
	store     *store.Store
	connector connectors.Connector
	config    *Config
	logger    zerolog.Logger
	cron      *cron.Cron

	mu              sync.Mutex
	activeWorkers   int
	connectorCounts map[string]int
	entries         map[string]cron.EntryID
	legacy          map[string]*legacyRun

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runs   sync.WaitGroup
}

// New creates a new scheduler.
func New(s *store.Store, conn connectors.Connector, cfg *Config, logger zerolog.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:           s,
		connector:       conn,
		config:          cfg,
		logger:          logger,
		cron:            cron.New(),
		connectorCounts: make(map[string]int),
		entries:         make(map[string]cron.EntryID),
		legacy:          make(map[string]*legacyRun),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start loads the cron entries of enabled tasks and starts the cron loop.
func (sch *Scheduler) Start() error {
	if err := sch.Sync(); err != nil {
		return err
	}
	sch.cron.Start()
	sch.logger.Info().Int("entries", len(sch.cron.Entries())).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop, stops every legacy loop and waits for running commands.
func (sch *Scheduler) Stop() {
	<-sch.cron.Stop().Done()
	sch.cancel()
	sch.wg.Wait()
	sch.logger.Info().Msg("scheduler stopped")
}

// Sync rebuilds the cron entries from the enabled scheduler tasks in the store.
func (sch *Scheduler) Sync() error {
	tasks, err := sch.store.ListSchedulerTasks()
	if err != nil {
		return fmt.Errorf("list scheduler tasks: %w", err)
	}

	sch.mu.Lock()
	defer sch.mu.Unlock()

	for id, entry := range sch.entries {
		sch.cron.Remove(entry)
		delete(sch.entries, id)
	}
	for _, task := range tasks {
		if !task.Enabled || strings.TrimSpace(task.Schedule) == "" {
			continue
		}
		id := task.ID
		entry, err := sch.cron.AddFunc(task.Schedule, func() {
			if err := sch.RunOnce(id); err != nil {
				sch.logger.Warn().Err(err).Str("task_id", id).Msg("scheduled run skipped")
			}
		})
		if err != nil {
			sch.logger.Warn().Err(err).Str("task_id", id).Str("schedule", task.Schedule).Msg("invalid schedule")
			continue
		}
		sch.entries[id] = entry
	}
	return nil
}

// NextRun reports when a scheduler task fires next, if it is scheduled.
func (sch *Scheduler) NextRun(taskID string) (time.Time, bool) {
	sch.mu.Lock()
	entry, ok := sch.entries[taskID]
	sch.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := sch.cron.Entry(entry).Next
	return next, !next.IsZero()
}

// RunOnce dispatches one run of a scheduler task to a worker.
func (sch *Scheduler) RunOnce(taskID string) error {
	task, err := sch.store.GetSchedulerTask(taskID)
	if err != nil {
		return err
	}
	if !sch.acquire() {
		return ErrAtCapacity
	}

	sch.wg.Add(1)
	sch.runs.Add(1)
	go func() {
		defer sch.wg.Done()
		defer sch.runs.Done()
		defer sch.release()
		sch.runScheduled(task)
	}()
	return nil
}

// WaitRuns blocks until every dispatched scheduler run has finished.
func (sch *Scheduler) WaitRuns() {
	sch.runs.Wait()
}

func (sch *Scheduler) acquire() bool {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	name := sch.connector.Name()
	if sch.activeWorkers >= sch.config.GlobalMax || sch.connectorCounts[name] >= sch.config.GetConnectorLimit(name) {
		return false
	}
	sch.activeWorkers++
	sch.connectorCounts[name]++
	return true
}

func (sch *Scheduler) release() {
	sch.mu.Lock()
	sch.activeWorkers--
	sch.connectorCounts[sch.connector.Name()]--
	sch.mu.Unlock()
}

func (sch *Scheduler) runScheduled(task *models.SchedulerTask) {
	attempts := 1 + max(task.Retry, 0)
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := sch.ctx, context.CancelFunc(func() {})
		if task.Timeout > 0 {
			ctx, cancel = context.WithTimeout(sch.ctx, time.Duration(task.Timeout)*time.Second)
		}
		code, err := sch.execute(ctx, store.StreamScheduler, task.ID, task.Exec)
		cancel()
		if err == nil && code == 0 {
			return
		}
		if attempt == attempts || sch.ctx.Err() != nil {
			return
		}
		sch.appendLog(store.StreamScheduler, task.ID, "WARNING", fmt.Sprintf("Retrying (%d/%d)", attempt, task.Retry))
		select {
		case <-sch.ctx.Done():
			return
		case <-time.After(time.Duration(task.RetryInterval) * time.Second):
		}
	}
}

type legacyRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartLegacy marks a legacy task running and executes its command repeatedly until stopped.
func (sch *Scheduler) StartLegacy(taskID string) error {
	task, err := sch.store.GetLegacyTask(taskID)
	if err != nil {
		return err
	}

	sch.mu.Lock()
	if _, running := sch.legacy[taskID]; running {
		sch.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(sch.ctx)
	lr := &legacyRun{cancel: cancel, done: make(chan struct{})}
	sch.legacy[taskID] = lr
	sch.mu.Unlock()

	if err := sch.store.SetLegacyStatus(taskID, models.LegacyStatusRunning); err != nil {
		sch.forgetLegacy(taskID)
		cancel()
		return err
	}
	sch.appendLog(store.StreamLegacy, taskID, "INFO", "Task started")

	sch.wg.Add(1)
	go sch.legacyLoop(ctx, task, lr.done)
	return nil
}

// StopLegacy stops the loop of a running legacy task and waits until it is marked stopped.
func (sch *Scheduler) StopLegacy(taskID string) error {
	sch.mu.Lock()
	lr, running := sch.legacy[taskID]
	sch.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	lr.cancel()
	<-lr.done
	return nil
}

// LegacyRunning reports whether a legacy task loop is active.
func (sch *Scheduler) LegacyRunning(taskID string) bool {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	_, ok := sch.legacy[taskID]
	return ok
}

func (sch *Scheduler) forgetLegacy(taskID string) {
	sch.mu.Lock()
	delete(sch.legacy, taskID)
	sch.mu.Unlock()
}

func (sch *Scheduler) legacyLoop(ctx context.Context, task *models.LegacyTask, done chan struct{}) {
	defer sch.wg.Done()
	defer close(done)
	defer func() {
		sch.forgetLegacy(task.ID)
		if err := sch.store.SetLegacyStatus(task.ID, models.LegacyStatusStopped); err != nil {
			sch.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to mark task stopped")
		}
		sch.appendLog(store.StreamLegacy, task.ID, "INFO", "Task stopped")
	}()

	for {
		if _, err := sch.execute(ctx, store.StreamLegacy, task.ID, task.Command); err != nil && ctx.Err() == nil {
			sch.logger.Warn().Err(err).Str("task_id", task.ID).Msg("legacy run failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sch.config.LegacyInterval):
		}
	}
}

// execute runs one command line, records the run and appends its output to the task log.
func (sch *Scheduler) execute(ctx context.Context, stream, taskID, command string) (int, error) {
	run, err := sch.store.CreateRun(stream, taskID, command)
	if err != nil {
		return -1, err
	}
	code := -1
	defer func() {
		if err := sch.store.FinishRun(run.ID, code); err != nil {
			sch.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to finish run")
		}
	}()

	cmd, args, err := connectors.ParseCommand(command)
	if err != nil {
		sch.appendLog(stream, taskID, "ERROR", err.Error())
		return code, err
	}
	sch.appendLog(stream, taskID, "INFO", "Running: "+command)

	result, err := sch.connector.Execute(ctx, cmd, args)
	if err != nil {
		sch.appendLog(stream, taskID, "ERROR", err.Error())
		return code, err
	}
	sch.appendOutput(stream, taskID, "INFO", result.Stdout)
	sch.appendOutput(stream, taskID, "ERROR", result.Stderr)

	code = result.ExitCode
	level := "INFO"
	if code != 0 {
		level = "ERROR"
	}
	sch.appendLog(stream, taskID, level, fmt.Sprintf("Finished with exit code %d", code))
	sch.logger.Debug().Str("task_id", taskID).Str("stream", stream).Int("exit_code", code).Msg("command finished")
	return code, nil
}

func (sch *Scheduler) appendOutput(stream, taskID, level, output string) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	lines := 0
	for scanner.Scan() {
		if sch.config.LogLines > 0 && lines == sch.config.LogLines {
			sch.appendLog(stream, taskID, "WARNING", "output truncated")
			return
		}
		sch.appendLog(stream, taskID, level, scanner.Text())
		lines++
	}
}

func (sch *Scheduler) appendLog(stream, taskID, level, message string) {
	if err := sch.store.AppendLog(stream, taskID, level, message); err != nil {
		sch.logger.Error().Err(err).Str("task_id", taskID).Msg("failed to append log")
	}
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]any {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	connectorCounts := make(map[string]int)
	for k, v := range sch.connectorCounts {
		connectorCounts[k] = v
	}
	return map[string]any{
		"active_workers":   sch.activeWorkers,
		"global_max":       sch.config.GlobalMax,
		"connector_counts": connectorCounts,
		"legacy_running":   len(sch.legacy),
		"cron_entries":     len(sch.entries),
	}
}
