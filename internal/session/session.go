// Package session owns protocol sessions, the credential cache and
// the idle sweeper.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ToughForge/EspoMCP/internal/server/events"
)

// ErrNotFound is returned for unknown or terminated sessions.
var ErrNotFound = errors.New("session not found")

// State is the lifecycle position of a session.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Session is one logical MCP connection. Its toolset is fixed once
// active; only activity time, readiness and listeners change.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	state        State
	ready        bool
	toolset      *Toolset
	listeners    map[string]*events.Listener
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActivity: now,
		state:        StateCreated,
		listeners:    make(map[string]*events.Listener),
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) activate(ts *Toolset) {
	s.mu.Lock()
	s.toolset = ts
	s.state = StateActive
	s.mu.Unlock()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Toolset returns the session's toolset, nil before activation.
func (s *Session) Toolset() *Toolset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolset
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

// LastActivity returns the time of the last request.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// MarkReady handles notifications/initialized.
func (s *Session) MarkReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// Ready reports whether the client acknowledged initialization.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// AddListener registers a push stream. It fails once terminated.
func (s *Session) AddListener(l *events.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return false
	}
	s.listeners[l.ID] = l
	return true
}

// RemoveListener unregisters and closes a push stream.
func (s *Session) RemoveListener(id string) {
	s.mu.Lock()
	l, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()
	if ok {
		l.Close()
	}
}

// ListenerCount returns the number of open push streams.
func (s *Session) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Broadcast queues event on every push stream and returns how many
// accepted it. Full listeners drop the event.
func (s *Session) Broadcast(event *events.Event) int {
	s.mu.Lock()
	targets := make([]*events.Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		targets = append(targets, l)
	}
	s.mu.Unlock()

	sent := 0
	for _, l := range targets {
		if l.Send(event) {
			sent++
		}
	}
	return sent
}

// expire marks the session terminated if it has been idle since
// cutoff. It reports whether it did.
func (s *Session) expire(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastActivity.Before(cutoff) {
		return false
	}
	s.state = StateTerminated
	return true
}

// terminate closes every push stream and marks the session dead.
func (s *Session) terminate() {
	s.mu.Lock()
	listeners := s.listeners
	s.listeners = make(map[string]*events.Listener)
	s.state = StateTerminated
	s.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
}
