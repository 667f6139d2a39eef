// Package session keeps one C@ interpreter per connected client and reaps
// sessions that have gone idle.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/antibyte/catterm/pkg/catlang"
	"github.com/antibyte/catterm/pkg/configuration"
	"github.com/antibyte/catterm/pkg/logger"
	"github.com/google/uuid"
)

var (
	ErrTooManySessions = errors.New("maximum number of sessions reached")
	ErrSessionNotFound = errors.New("session not found")
)

// Options configures a Manager. Zero values disable the matching limit.
type Options struct {
	MaxSessions     int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	MaxLineLength   int
	DefaultBase     catlang.Base
	Recorder        Recorder
}

// OptionsFromConfig reads the [Server] and [Interpreter] sections.
func OptionsFromConfig() Options {
	base, ok := catlang.ParseBase(configuration.GetString("Interpreter", "default_base", "dec"))
	if !ok {
		logger.Warn(logger.AreaConfig, "invalid default_base, using dec")
		base = catlang.BaseDecimal
	}
	return Options{
		MaxSessions:     configuration.GetInt("Server", "max_sessions", 100),
		IdleTimeout:     configuration.GetDuration("Server", "session_idle_timeout", 30*time.Minute),
		CleanupInterval: configuration.GetDuration("Server", "session_cleanup_interval", time.Minute),
		MaxLineLength:   configuration.GetInt("Interpreter", "max_line_length", 4096),
		DefaultBase:     base,
	}
}

// Manager owns all live sessions.
type Manager struct {
	opts Options

	mu        sync.RWMutex
	sessions  map[string]*Session
	onRemoved []func(id string)
}

// NewManager returns an empty manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a fresh interpreter.
func (m *Manager) Create(ctx context.Context, remoteAddr string) (*Session, error) {
	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		logger.SessionWarn("session limit %d reached, rejecting %s", m.opts.MaxSessions, remoteAddr)
		return nil, ErrTooManySessions
	}
	s := newSession(uuid.New().String(), remoteAddr, m.opts)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.opts.Recorder != nil {
		if err := m.opts.Recorder.RegisterSession(ctx, s.ID, remoteAddr); err != nil {
			logger.DatabaseError("failed to register session %s: %v", s.ID, err)
		}
	}

	logger.SessionInfo("session created: %s (%s)", s.ID, remoteAddr)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// OnRemove registers fn to run after a session leaves the manager, whether
// through logout, Forget or idle cleanup. fn is called without the lock held.
func (m *Manager) OnRemove(fn func(id string)) {
	m.mu.Lock()
	m.onRemoved = append(m.onRemoved, fn)
	m.mu.Unlock()
}

// Remove drops a session from memory. Its transcript is kept.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	listeners := m.onRemoved
	m.mu.Unlock()

	if !ok {
		return false
	}
	executed, failed := s.Stats()
	logger.SessionInfo("session removed: %s (statements: %d, failed: %d, age: %v)",
		id, executed, failed, time.Since(s.CreatedAt).Round(time.Second))
	for _, fn := range listeners {
		fn(id)
	}
	return true
}

// Forget removes a session and deletes its transcript.
func (m *Manager) Forget(ctx context.Context, id string) error {
	m.Remove(id)
	if m.opts.Recorder == nil {
		return nil
	}
	return m.opts.Recorder.DeleteSession(ctx, id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupIdle removes every session idle since before now-IdleTimeout and
// returns how many were removed.
func (m *Manager) CleanupIdle(now time.Time) int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}

	var stale []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.opts.IdleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if m.Remove(id) {
			removed++
		}
	}
	if removed > 0 {
		logger.SessionInfo("removed %d idle sessions", removed)
	}
	return removed
}

// StartJanitor runs CleanupIdle every CleanupInterval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context) {
	interval := m.opts.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.CleanupIdle(now)
			}
		}
	}()
}
