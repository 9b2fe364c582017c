package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// Log tail states.
const (
	TailIdle      = "idle"
	TailActive    = "active"
	TailSuspended = "suspended"

	eventActivate = "activate"
	eventSuspend  = "suspend"
	eventReset    = "reset"
)

// ErrNoSelection is returned when a log operation needs a selected task.
var ErrNoSelection = errors.New("no task selected")

// Connectivity reports whether the backend is currently reachable.
type Connectivity interface {
	IsConnected() bool
}

// LogRenderer receives everything a log tail wants to show.
type LogRenderer[T any] interface {
	ShowLoading(taskID string)
	Render(taskID string, logs T)
	ShowError(taskID string, err error)
	SetAutoRefresh(on bool)
	Clear()
}

// LogTailConfig configures a LogTail.
type LogTailConfig[T any] struct {
	Kind     PollerKind
	Interval time.Duration
	Registry *IntervalRegistry
	Conn     Connectivity
	Fetch    func(ctx context.Context, taskID string) (T, error)
	Renderer LogRenderer[T]
	Context  context.Context
	Logger   zerolog.Logger
}

// LogTail refreshes the log view of the selected task on a fixed interval.
// Responses for a task that is no longer selected are dropped.
type LogTail[T any] struct {
	kind     PollerKind
	interval time.Duration
	registry *IntervalRegistry
	conn     Connectivity
	fetch    func(ctx context.Context, taskID string) (T, error)
	render   LogRenderer[T]
	ctx      context.Context
	machine  *fsm.FSM
	logger   zerolog.Logger

	mu        sync.Mutex
	selection string

	// transition orders timer changes with the state machine and the
	// renderer's auto-refresh flag. It is never held by Selected, so renderers
	// may block on a reader of the selection.
	transition sync.Mutex
}

// NewLogTail creates an idle tail.
func NewLogTail[T any](cfg LogTailConfig[T]) *LogTail[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	t := &LogTail[T]{
		kind:     cfg.Kind,
		interval: cfg.Interval,
		registry: cfg.Registry,
		conn:     cfg.Conn,
		fetch:    cfg.Fetch,
		render:   cfg.Renderer,
		ctx:      cfg.Context,
		logger:   cfg.Logger.With().Str("component", "log_tail").Str("stream", string(cfg.Kind)).Logger(),
	}
	t.machine = fsm.NewFSM(
		TailIdle,
		fsm.Events{
			{Name: eventActivate, Src: []string{TailIdle, TailSuspended}, Dst: TailActive},
			{Name: eventSuspend, Src: []string{TailIdle, TailActive}, Dst: TailSuspended},
			{Name: eventReset, Src: []string{TailActive, TailSuspended}, Dst: TailIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.logger.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("log tail state changed")
			},
		},
	)
	return t
}

// Select shows the logs of taskID and keeps them refreshed. Selecting the task
// that is already being tailed does nothing.
func (t *LogTail[T]) Select(ctx context.Context, taskID string) {
	t.mu.Lock()
	if t.selection == taskID && t.registry.Running(t.kind) {
		t.mu.Unlock()
		return
	}
	t.registry.Cancel(t.kind)
	t.selection = taskID
	t.mu.Unlock()

	t.load(ctx, taskID, true)

	t.transition.Lock()
	defer t.transition.Unlock()
	t.mu.Lock()
	if t.selection != taskID {
		t.mu.Unlock()
		return
	}
	connected := t.conn.IsConnected()
	if connected {
		t.registry.Start(t.kind, t.interval, func() { t.tick(taskID) })
	}
	t.mu.Unlock()

	if connected {
		fire(t.machine, eventActivate, t.logger)
		t.render.SetAutoRefresh(true)
		return
	}
	fire(t.machine, eventSuspend, t.logger)
	t.render.SetAutoRefresh(false)
}

// Suspend stops auto-refresh and keeps the selection.
func (t *LogTail[T]) Suspend() {
	t.transition.Lock()
	defer t.transition.Unlock()
	t.mu.Lock()
	taskID := t.selection
	t.registry.Cancel(t.kind)
	t.mu.Unlock()
	if taskID == "" {
		return
	}
	fire(t.machine, eventSuspend, t.logger)
	t.render.SetAutoRefresh(false)
}

// Resume restarts tailing of the kept selection, if any.
func (t *LogTail[T]) Resume() {
	taskID := t.Selected()
	if taskID == "" {
		return
	}
	t.Select(t.ctx, taskID)
}

// Restart fetches the selected task again and restarts the timer.
func (t *LogTail[T]) Restart(ctx context.Context) error {
	taskID := t.Selected()
	if taskID == "" {
		return ErrNoSelection
	}
	t.registry.Cancel(t.kind)
	t.Select(ctx, taskID)
	return nil
}

// Refresh fetches the selected task once without touching the timer.
func (t *LogTail[T]) Refresh(ctx context.Context) error {
	taskID := t.Selected()
	if taskID == "" {
		return ErrNoSelection
	}
	return t.load(ctx, taskID, true)
}

// Clear drops the selection and stops the timer.
func (t *LogTail[T]) Clear() {
	t.transition.Lock()
	defer t.transition.Unlock()
	t.mu.Lock()
	t.registry.Cancel(t.kind)
	t.selection = ""
	t.mu.Unlock()
	fire(t.machine, eventReset, t.logger)
	t.render.Clear()
}

// Selected returns the selected task id, or "".
func (t *LogTail[T]) Selected() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selection
}

// State returns idle, active or suspended.
func (t *LogTail[T]) State() string {
	return t.machine.Current()
}

// AutoRefreshing reports whether the timer is running.
func (t *LogTail[T]) AutoRefreshing() bool {
	return t.registry.Running(t.kind)
}

func (t *LogTail[T]) tick(taskID string) {
	if t.Selected() != taskID {
		return
	}
	if err := t.load(t.ctx, taskID, false); err == nil {
		return
	}
	t.transition.Lock()
	defer t.transition.Unlock()
	t.mu.Lock()
	owned := t.selection == taskID
	if owned {
		t.registry.Cancel(t.kind)
	}
	t.mu.Unlock()
	if owned {
		fire(t.machine, eventSuspend, t.logger)
		t.render.SetAutoRefresh(false)
	}
}

// load fetches and renders the logs of taskID. A response that arrives after
// the selection moved on is discarded and reported as success.
func (t *LogTail[T]) load(ctx context.Context, taskID string, loading bool) error {
	if loading {
		t.render.ShowLoading(taskID)
	}
	logs, err := t.fetch(ctx, taskID)
	if t.Selected() != taskID {
		t.logger.Debug().Str("task_id", taskID).Msg("discarding logs of deselected task")
		return nil
	}
	if err != nil {
		t.logger.Warn().Err(err).Str("task_id", taskID).Msg("fetch logs")
		t.render.ShowError(taskID, err)
		return err
	}
	t.render.Render(taskID, logs)
	return nil
}
