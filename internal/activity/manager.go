package activity

import (
	"fmt"
	"sync"
)

// Manager is the in-memory registry of live and planned sessions. It
// serializes all mutation of one session behind a per-session lock and
// enforces at most one live session per user. GPS updates for different
// sessions proceed in parallel.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*slot
	byUser   map[string]string
}

type slot struct {
	mu sync.Mutex
	s  *Session
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*slot),
		byUser:   make(map[string]string),
	}
}

// StartUser creates a session through build and claims the user's live
// slot, failing with ErrConcurrentSession when one is already claimed.
func (m *Manager) StartUser(userID string, build func() (*Session, error)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byUser[userID]; ok {
		return nil, fmt.Errorf("%w: session %s is still live", ErrConcurrentSession, id)
	}
	s, err := build()
	if err != nil {
		return nil, err
	}
	m.sessions[s.ID] = &slot{s: s}
	m.byUser[userID] = s.ID
	return s, nil
}

// Adopt registers a session without claiming a user slot. Used for
// planned sessions and no-ops when the id is already present.
func (m *Manager) Adopt(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		m.sessions[s.ID] = &slot{s: s}
	}
}

// ActivatePlanned transitions a registered planned session to live via
// start, claiming the user's slot under the registry lock so two
// concurrent starts cannot both succeed.
func (m *Manager) ActivatePlanned(userID, sessionID string, start func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byUser[userID]; ok {
		return nil, fmt.Errorf("%w: session %s is still live", ErrConcurrentSession, id)
	}
	sl, ok := m.sessions[sessionID]
	if !ok || sl.s.UserID != userID {
		return nil, fmt.Errorf("%w: planned session %s", ErrNotFound, sessionID)
	}
	if err := start(sl.s); err != nil {
		return nil, err
	}
	m.byUser[userID] = sessionID
	return sl.s, nil
}

// WithSession runs fn with exclusive access to the session. fn must not
// call back into the Manager.
func (m *Manager) WithSession(id string, fn func(*Session) error) error {
	m.mu.Lock()
	sl, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn(sl.s)
}

// Remove drops a session from the registry and frees the user's live
// slot if this session held it.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sl, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if m.byUser[sl.s.UserID] == id {
		delete(m.byUser, sl.s.UserID)
	}
}

// LiveSessionID returns the id of the user's live session, if any.
func (m *Manager) LiveSessionID(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userID]
	return id, ok
}

// Has reports whether the session id is registered.
func (m *Manager) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}
