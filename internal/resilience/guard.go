package resilience

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// OperationGuard lets at most one state-changing task operation run at a time.
type OperationGuard struct {
	held   atomic.Bool
	logger zerolog.Logger
}

// NewOperationGuard creates a released guard.
func NewOperationGuard(logger zerolog.Logger) *OperationGuard {
	return &OperationGuard{logger: logger.With().Str("component", "guard").Logger()}
}

// TryAcquire takes the guard if it is free.
func (g *OperationGuard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the guard.
func (g *OperationGuard) Release() {
	g.held.Store(false)
}

// Held reports whether an operation is in progress.
func (g *OperationGuard) Held() bool {
	return g.held.Load()
}

// Run calls fn while holding the guard and releases it on every exit path.
// It reports false without calling fn when another operation holds the guard.
func (g *OperationGuard) Run(name string, fn func() error) (bool, error) {
	if !g.TryAcquire() {
		g.logger.Info().Str("operation", name).Msg("operation already in progress, ignoring")
		return false, nil
	}
	defer g.Release()
	return true, fn()
}
