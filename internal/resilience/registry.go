package resilience

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PollerKind names one of the recurring jobs. At most one timer per kind exists.
type PollerKind string

const (
	PollerStatus       PollerKind = "status"
	PollerLegacyLog    PollerKind = "legacy_log"
	PollerSchedulerLog PollerKind = "scheduler_log"
	PollerHealth       PollerKind = "health"
)

// Timer is a recurring callback that can be stopped.
type Timer interface {
	Stop()
}

// Clock schedules recurring callbacks. Tests substitute a manual clock.
type Clock interface {
	Every(d time.Duration, fn func()) Timer
}

// SystemClock returns a Clock backed by time.Ticker. Ticks that arrive while
// the previous callback is still running are dropped.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Every(d time.Duration, fn func()) Timer {
	t := &tickerTimer{done: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

type tickerTimer struct {
	once sync.Once
	done chan struct{}
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Handle identifies one started poller. A new handle is issued on every start.
type Handle struct {
	ID       uint64
	Kind     PollerKind
	Interval time.Duration
	timer    Timer
}

// IntervalRegistry owns every recurring timer of the dashboard.
type IntervalRegistry struct {
	clock  Clock
	logger zerolog.Logger

	mu      sync.Mutex
	nextID  uint64
	handles map[PollerKind]*Handle
}

// NewIntervalRegistry creates an empty registry.
func NewIntervalRegistry(clock Clock, logger zerolog.Logger) *IntervalRegistry {
	if clock == nil {
		clock = SystemClock()
	}
	return &IntervalRegistry{
		clock:   clock,
		logger:  logger.With().Str("component", "registry").Logger(),
		handles: make(map[PollerKind]*Handle),
	}
}

// Start cancels any existing timer of the kind and starts a new one.
func (r *IntervalRegistry) Start(kind PollerKind, d time.Duration, fn func()) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(kind)
	return r.startLocked(kind, d, fn)
}

// StartIfIdle starts a timer only when none of the kind is running. It returns
// the running handle and whether a new one was started.
func (r *IntervalRegistry) StartIfIdle(kind PollerKind, d time.Duration, fn func()) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[kind]; ok {
		return h, false
	}
	return r.startLocked(kind, d, fn), true
}

// Cancel stops the timers of the given kinds and returns how many were running.
func (r *IntervalRegistry) Cancel(kinds ...PollerKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, kind := range kinds {
		if r.cancelLocked(kind) {
			n++
		}
	}
	return n
}

// CancelAll stops every timer.
func (r *IntervalRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for kind := range r.handles {
		if r.cancelLocked(kind) {
			n++
		}
	}
	return n
}

// Handle returns the running handle of the kind, or nil.
func (r *IntervalRegistry) Handle(kind PollerKind) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[kind]
}

// Running reports whether a timer of the kind is active.
func (r *IntervalRegistry) Running(kind PollerKind) bool {
	return r.Handle(kind) != nil
}

func (r *IntervalRegistry) startLocked(kind PollerKind, d time.Duration, fn func()) *Handle {
	r.nextID++
	h := &Handle{ID: r.nextID, Kind: kind, Interval: d}
	h.timer = r.clock.Every(d, r.guarded(kind, fn))
	r.handles[kind] = h
	r.logger.Debug().Str("poller", string(kind)).Uint64("handle", h.ID).Dur("interval", d).Msg("poller started")
	return h
}

func (r *IntervalRegistry) cancelLocked(kind PollerKind) bool {
	h, ok := r.handles[kind]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(r.handles, kind)
	r.logger.Debug().Str("poller", string(kind)).Uint64("handle", h.ID).Msg("poller cancelled")
	return true
}

// guarded keeps a panicking tick from taking the process down with it.
func (r *IntervalRegistry) guarded(kind PollerKind, fn func()) func() {
	return func() {
		defer func() {
			if v := recover(); v != nil {
				r.logger.Error().Str("poller", string(kind)).Interface("panic", v).Msg("poller tick panicked")
			}
		}()
		fn()
	}
}
