package connectivity

import (
	"log/slog"
	"sync"
)

// Monitor holds the current online/offline state and notifies listeners on every
// offline to online transition.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	listeners []func()
}

func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// IsOnline reports the last known state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnRestored registers fn to run after each offline to online transition.
func (m *Monitor) OnRestored(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetOnline records the new state. Listeners run synchronously in the caller's
// goroutine, outside the lock, and only when the state flips to online.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	restored := online && !m.online
	changed := online != m.online
	m.online = online
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()

	if changed {
		slog.Info("Connectivity: state changed", "online", online)
	}
	if !restored {
		return
	}
	for _, fn := range listeners {
		fn()
	}
}
