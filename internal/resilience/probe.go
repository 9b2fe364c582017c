package resilience

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

const (
	probeIdle    = "idle"
	probeProbing = "probing"

	eventProbe  = "probe"
	eventSettle = "settle"
)

// HealthProbe polls a cheap endpoint while the backend is unreachable. A
// successful probe goes through the same recovery path as any other request.
type HealthProbe struct {
	gateway  *Gateway
	interval time.Duration
	path     string
	machine  *fsm.FSM
	logger   zerolog.Logger
	attempts atomic.Uint64
}

func newHealthProbe(g *Gateway, interval time.Duration, path string, logger zerolog.Logger) *HealthProbe {
	p := &HealthProbe{
		gateway:  g,
		interval: interval,
		path:     path,
		logger:   logger.With().Str("component", "health_probe").Logger(),
	}
	p.machine = fsm.NewFSM(
		probeIdle,
		fsm.Events{
			{Name: eventProbe, Src: []string{probeIdle}, Dst: probeProbing},
			{Name: eventSettle, Src: []string{probeProbing}, Dst: probeIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.logger.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("health probe state changed")
			},
		},
	)
	return p
}

// Start begins probing. Calling it while already probing is a no-op.
func (p *HealthProbe) Start() {
	fire(p.machine, eventProbe, p.logger)
	if _, started := p.gateway.registry.StartIfIdle(PollerHealth, p.interval, p.tick); started {
		p.logger.Info().Dur("interval", p.interval).Msg("health probe started")
	}
}

// Stop cancels the probe timer.
func (p *HealthProbe) Stop() {
	if p.gateway.registry.Cancel(PollerHealth) > 0 {
		p.logger.Info().Msg("health probe stopped")
	}
	fire(p.machine, eventSettle, p.logger)
}

// Probing reports whether the probe timer is active.
func (p *HealthProbe) Probing() bool {
	return p.gateway.registry.Running(PollerHealth)
}

// State returns the probe state machine's current state.
func (p *HealthProbe) State() string {
	return p.machine.Current()
}

// Attempts returns how many probe requests have been sent.
func (p *HealthProbe) Attempts() uint64 {
	return p.attempts.Load()
}

func (p *HealthProbe) tick() {
	state := p.gateway.state
	if !state.IsReconnectActive() || state.IsConnected() {
		p.Stop()
		return
	}
	req, err := p.gateway.NewRequest(p.gateway.ctx, http.MethodGet, p.path, nil)
	if err != nil {
		p.logger.Error().Err(err).Msg("build health probe request")
		return
	}
	req.Header.Set(HealthCheckHeader, "true")
	p.attempts.Add(1)
	if _, err := p.gateway.Execute(req, "health probe"); err != nil {
		p.logger.Debug().Err(err).Msg("backend still unreachable")
	}
}

// fire triggers the event when the machine allows it from its current state.
func fire(machine *fsm.FSM, event string, logger zerolog.Logger) {
	if !machine.Can(event) {
		return
	}
	if err := machine.Event(context.Background(), event); err != nil {
		logger.Debug().Err(err).Str("event", event).Msg("state transition skipped")
	}
}
