// Package cache holds the in-process caches the web server keeps: the
// session store and the rendered budget graphs.
package cache

import (
	"sync"
	"time"

	applog "penny/internal/log"
)

// Sweeper is a cache that can drop its expired entries on demand.
type Sweeper interface {
	CleanExpired() int
}

// Manager sweeps a set of named caches on a timer.
type Manager struct {
	logger *applog.Logger

	mu      sync.Mutex
	caches  map[string]Sweeper
	running bool

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager(logger *applog.Logger) *Manager {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Manager{
		logger: logger.WithComponent(applog.ComponentCache),
		caches: make(map[string]Sweeper),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds c under name, replacing an earlier cache with that name.
func (m *Manager) Register(name string, c Sweeper) {
	m.mu.Lock()
	m.caches[name] = c
	m.mu.Unlock()
}

// StartCleanup sweeps every interval until Stop. Later calls are no-ops.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	go m.loop(interval)
}

// CleanNow sweeps every cache once and reports the removed count by name.
func (m *Manager) CleanNow() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string]int, len(m.caches))
	for name, c := range m.caches {
		removed[name] = c.CleanExpired()
	}
	return removed
}

func (m *Manager) loop(interval time.Duration) {
	defer close(m.done)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-t.C:
			for name, n := range m.CleanNow() {
				if n > 0 {
					m.logger.Debug("Swept expired entries", "cache", name, "removed", n)
				}
			}
		}
	}
}

// Stop ends the sweep loop and waits for it. It may be called repeatedly,
// with or without a prior StartCleanup.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
		m.mu.Lock()
		running := m.running
		m.mu.Unlock()
		if running {
			<-m.done
		}
	})
}
