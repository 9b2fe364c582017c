// Package resilience keeps the dashboard usable while the backend comes and goes.
//
// It owns the connection flag, the registry of recurring pollers, the request
// gateway every backend call goes through, the health probe that runs while the
// backend is unreachable, the operation guard, and the log tail controllers.
package resilience

import "sync"

// ConnectionState tracks whether the backend is reachable and whether
// automatic reconnection is still wanted.
type ConnectionState struct {
	mu              sync.RWMutex
	connected       bool
	reconnectActive bool
}

// NewConnectionState returns a state that starts connected with reconnection enabled.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{connected: true, reconnectActive: true}
}

// MarkDisconnected flips the state to disconnected. It returns true only on the
// connected -> disconnected edge, and re-arms reconnection on that edge.
func (s *ConnectionState) MarkDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.connected = false
	s.reconnectActive = true
	return true
}

// MarkReconnected flips the state to connected. It returns true only on the
// disconnected -> connected edge.
func (s *ConnectionState) MarkReconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return false
	}
	s.connected = true
	return true
}

// IsConnected reports the last observed reachability.
func (s *ConnectionState) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsReconnectActive reports whether the health probe should keep running.
func (s *ConnectionState) IsReconnectActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnectActive
}

// StopReconnecting disables automatic reconnection until the next disconnect.
func (s *ConnectionState) StopReconnecting() {
	s.mu.Lock()
	s.reconnectActive = false
	s.mu.Unlock()
}
