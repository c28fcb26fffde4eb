// Package cache holds the short-lived token state of the identity provider:
// revoked session IDs and pending password reset tokens.
package cache

import (
	"log/slog"
	"time"
)

// Cache defines a generic keyed store with expiry
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	// Take returns the value and removes it in one step
	Take(key string) (T, bool)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps registered caches on an interval
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds caches to the sweep. Call before StartCleanup.
func (m *Manager) Register(caches ...Cleaner) {
	m.caches = append(m.caches, caches...)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("Expired cache entries removed", "component", "cache", "count", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Sweep runs one cleanup pass and returns how many entries were dropped.
func (m *Manager) Sweep() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup goroutine started by StartCleanup.
func (m *Manager) Stop() {
	select {
	case <-m.stopCleanup:
		return
	default:
	}
	close(m.stopCleanup)
	<-m.cleanupDone
}
