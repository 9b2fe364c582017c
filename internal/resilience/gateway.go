package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthCheckHeader marks probe requests so the backend can tell them apart.
const HealthCheckHeader = "X-Health-Check"

// ErrTransport wraps failures where no HTTP response was received.
var ErrTransport = errors.New("transport failure")

// HTTPError is returned for responses outside the 2xx range.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	BaseURL        string
	StatusInterval time.Duration
	HealthInterval time.Duration
	HealthPath     string
}

// Gateway is the single path every backend request takes. It records each
// outcome in the connection state and drives the disconnect and recovery
// transitions.
type Gateway struct {
	cfg      GatewayConfig
	doer     Doer
	state    *ConnectionState
	registry *IntervalRegistry
	probe    *HealthProbe
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	statusPoll      func()
	onDisconnect    []func()
	onReconnect     []func()
	onStopReconnect []func()

	// transition is held from an edge check through its timer changes and the
	// enqueueing of its hooks, so edges apply and dispatch in order.
	transition sync.Mutex
	epoch      atomic.Uint64

	hookMu   sync.Mutex
	pending  []hookBatch
	draining bool
}

// hookBatch is the hook list of one transition. It is dropped once a later
// transition happened or the connection state no longer matches.
type hookBatch struct {
	epoch     uint64
	connected bool
	hooks     []func()
}

// NewGateway creates a gateway and its health probe.
func NewGateway(cfg GatewayConfig, doer Doer, state *ConnectionState, registry *IntervalRegistry, logger zerolog.Logger) *Gateway {
	if doer == nil {
		doer = http.DefaultClient
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 5 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/api/scheduler/tasks"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:      cfg,
		doer:     doer,
		state:    state,
		registry: registry,
		logger:   logger.With().Str("component", "gateway").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
	g.probe = newHealthProbe(g, cfg.HealthInterval, cfg.HealthPath, logger)
	return g
}

// State returns the connection state the gateway writes to.
func (g *Gateway) State() *ConnectionState { return g.state }

// Registry returns the interval registry the gateway schedules on.
func (g *Gateway) Registry() *IntervalRegistry { return g.registry }

// Probe returns the health probe.
func (g *Gateway) Probe() *HealthProbe { return g.probe }

// Context is cancelled by Close. Background requests derive from it.
func (g *Gateway) Context() context.Context { return g.ctx }

// SetStatusPoller sets the tick function of the status poller.
func (g *Gateway) SetStatusPoller(fn func()) {
	g.mu.Lock()
	g.statusPoll = fn
	g.mu.Unlock()
}

// OnDisconnect registers a hook run once per connected -> disconnected edge.
func (g *Gateway) OnDisconnect(fn func()) {
	g.mu.Lock()
	g.onDisconnect = append(g.onDisconnect, fn)
	g.mu.Unlock()
}

// OnReconnect registers a hook run once per disconnected -> connected edge.
// Hooks run in registration order after the status poller restarted.
func (g *Gateway) OnReconnect(fn func()) {
	g.mu.Lock()
	g.onReconnect = append(g.onReconnect, fn)
	g.mu.Unlock()
}

// OnStopReconnecting registers a hook run when the user gives up on reconnection.
func (g *Gateway) OnStopReconnecting(fn func()) {
	g.mu.Lock()
	g.onStopReconnect = append(g.onStopReconnect, fn)
	g.mu.Unlock()
}

// NewRequest builds a request against the base URL. A non-nil body is sent as JSON.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Execute sends the request. Any failure marks the backend disconnected and any
// success marks it connected. The original error is always returned to the caller.
func (g *Gateway) Execute(req *http.Request, label string) (*Response, error) {
	resp, err := g.doer.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		err = fmt.Errorf("%s: %w: %w", label, ErrTransport, err)
		g.fail(label, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("%s: %w: read body: %w", label, ErrTransport, err)
		g.fail(label, err)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{StatusCode: resp.StatusCode, Body: body}
		g.fail(label, herr)
		return nil, fmt.Errorf("%s: %w", label, herr)
	}

	g.markReachable()
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// StartStatusPolling starts the status poller if the backend is reachable.
func (g *Gateway) StartStatusPolling() {
	g.transition.Lock()
	defer g.transition.Unlock()
	if !g.state.IsConnected() {
		return
	}
	g.startStatusPoller()
}

// StopReconnecting disables automatic reconnection and stops the probe.
func (g *Gateway) StopReconnecting() {
	g.transition.Lock()
	g.state.StopReconnecting()
	g.probe.Stop()
	g.logger.Info().Msg("automatic reconnection stopped")
	g.enqueue(g.epoch.Load(), false, g.hooks(&g.onStopReconnect))
	g.transition.Unlock()
	g.drain()
}

// Close stops every timer and cancels background requests.
func (g *Gateway) Close() {
	g.registry.CancelAll()
	g.probe.Stop()
	g.cancel()
}

func (g *Gateway) fail(label string, err error) {
	g.logger.Warn().Err(err).Str("request", label).Msg("request failed")
	g.transition.Lock()
	if !g.state.MarkDisconnected() {
		g.transition.Unlock()
		return
	}
	g.logger.Warn().Msg("backend unreachable, suspending pollers")
	g.registry.Cancel(PollerStatus, PollerLegacyLog, PollerSchedulerLog)
	g.probe.Start()
	g.enqueue(g.epoch.Add(1), false, g.hooks(&g.onDisconnect))
	g.transition.Unlock()
	g.drain()
}

// markReachable is the shared recovery path for regular requests and probe hits.
func (g *Gateway) markReachable() {
	g.transition.Lock()
	if !g.state.MarkReconnected() {
		g.transition.Unlock()
		return
	}
	g.logger.Info().Msg("backend reachable again")
	g.probe.Stop()
	g.startStatusPoller()
	g.enqueue(g.epoch.Add(1), true, g.hooks(&g.onReconnect))
	g.transition.Unlock()
	g.drain()
}

// enqueue must be called with transition held so batches queue in edge order.
func (g *Gateway) enqueue(epoch uint64, connected bool, hooks []func()) {
	if len(hooks) == 0 {
		return
	}
	g.hookMu.Lock()
	g.pending = append(g.pending, hookBatch{epoch: epoch, connected: connected, hooks: hooks})
	g.hookMu.Unlock()
}

// drain runs queued hooks on the calling goroutine unless another goroutine is
// already draining. A hook that triggers a new edge only queues it, so hooks
// may issue requests through the gateway.
func (g *Gateway) drain() {
	g.hookMu.Lock()
	if g.draining {
		g.hookMu.Unlock()
		return
	}
	g.draining = true
	for len(g.pending) > 0 {
		batch := g.pending[0]
		g.pending = g.pending[1:]
		g.hookMu.Unlock()
		for _, fn := range batch.hooks {
			if g.epoch.Load() != batch.epoch || g.state.IsConnected() != batch.connected {
				g.logger.Debug().Uint64("epoch", batch.epoch).Msg("dropping stale connection hooks")
				break
			}
			g.runHook(fn)
		}
		g.hookMu.Lock()
	}
	g.draining = false
	g.hookMu.Unlock()
}

func (g *Gateway) runHook(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			g.logger.Error().Interface("panic", v).Msg("connection hook panicked")
		}
	}()
	fn()
}

func (g *Gateway) startStatusPoller() {
	g.mu.Lock()
	fn := g.statusPoll
	g.mu.Unlock()
	if fn == nil {
		return
	}
	g.registry.Start(PollerStatus, g.cfg.StatusInterval, fn)
}

func (g *Gateway) hooks(list *[]func()) []func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]func(){}, (*list)...)
}
