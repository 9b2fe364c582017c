package resilience_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/taskdeck/internal/resilience"
	"github.com/fentz26/taskdeck/internal/resilience/resiliencetest"
	"github.com/rs/zerolog"
)

const (
	statusEvery = 5 * time.Second
	healthEvery = 7 * time.Second
	logEvery    = 2 * time.Second
)

// fakeBackend is a Doer that serves canned JSON bodies by path.
type fakeBackend struct {
	mu       sync.Mutex
	down     bool
	status   int
	requests []*http.Request
	routes   map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		status: http.StatusOK,
		routes: map[string]string{
			"/api/scheduler/tasks": `{"success":true,"data":[]}`,
			"/api/tasks":           `{"success":true,"tasks":[]}`,
		},
	}
}

func (b *fakeBackend) Do(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if b.down {
		return nil, errors.New("dial tcp 127.0.0.1:5000: connect: connection refused")
	}
	body, ok := b.routes[req.URL.Path]
	status := b.status
	if !ok {
		status = http.StatusNotFound
		body = "not found"
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func (b *fakeBackend) setDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

func (b *fakeBackend) setStatus(code int) {
	b.mu.Lock()
	b.status = code
	b.mu.Unlock()
}

func (b *fakeBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.URL.Path == path {
			n++
		}
	}
	return n
}

func (b *fakeBackend) countHeader(key, value string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Header.Get(key) == value {
			n++
		}
	}
	return n
}

type harness struct {
	backend  *fakeBackend
	clock    *resiliencetest.ManualClock
	state    *resilience.ConnectionState
	registry *resilience.IntervalRegistry
	gateway  *resilience.Gateway

	mu          sync.Mutex
	disconnects int
	reconnects  int
	statusTicks int
}

func newHarness() *harness {
	h := &harness{
		backend: newFakeBackend(),
		clock:   resiliencetest.NewManualClock(),
		state:   resilience.NewConnectionState(),
	}
	h.registry = resilience.NewIntervalRegistry(h.clock, zerolog.Nop())
	h.gateway = resilience.NewGateway(resilience.GatewayConfig{
		BaseURL:        "http://backend.test",
		StatusInterval: statusEvery,
		HealthInterval: healthEvery,
	}, h.backend, h.state, h.registry, zerolog.Nop())
	h.gateway.SetStatusPoller(func() {
		h.mu.Lock()
		h.statusTicks++
		h.mu.Unlock()
		h.get("/api/tasks")
	})
	h.gateway.OnDisconnect(func() {
		h.mu.Lock()
		h.disconnects++
		h.mu.Unlock()
	})
	h.gateway.OnReconnect(func() {
		h.mu.Lock()
		h.reconnects++
		h.mu.Unlock()
	})
	return h
}

func (h *harness) get(path string) error {
	req, err := h.gateway.NewRequest(h.gateway.Context(), http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	_, err = h.gateway.Execute(req, "GET "+path)
	return err
}

func (h *harness) counts() (disconnects, reconnects int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects, h.reconnects
}

// recordingRenderer captures everything a log tail shows.
type recordingRenderer struct {
	mu          sync.Mutex
	loading     []string
	rendered    []string
	errors      []string
	autoRefresh []bool
	clears      int
}

func (r *recordingRenderer) ShowLoading(taskID string) {
	r.mu.Lock()
	r.loading = append(r.loading, taskID)
	r.mu.Unlock()
}

func (r *recordingRenderer) Render(taskID string, logs string) {
	r.mu.Lock()
	r.rendered = append(r.rendered, taskID+":"+logs)
	r.mu.Unlock()
}

func (r *recordingRenderer) ShowError(taskID string, err error) {
	r.mu.Lock()
	r.errors = append(r.errors, taskID)
	r.mu.Unlock()
}

func (r *recordingRenderer) SetAutoRefresh(on bool) {
	r.mu.Lock()
	r.autoRefresh = append(r.autoRefresh, on)
	r.mu.Unlock()
}

func (r *recordingRenderer) Clear() {
	r.mu.Lock()
	r.clears++
	r.mu.Unlock()
}

func (r *recordingRenderer) renders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.rendered...)
}

func (r *recordingRenderer) lastAutoRefresh() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.autoRefresh) == 0 {
		return false, false
	}
	return r.autoRefresh[len(r.autoRefresh)-1], true
}
