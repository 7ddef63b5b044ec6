// Package session keeps the live chat sessions created at login and
// destroyed at logout.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/tools"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Session is one signed-in conversation. Turns on a session are serialized.
type Session struct {
	ID        string
	Email     string
	Role      string
	ExpiresAt time.Time

	mu         sync.Mutex
	transcript []llm.Message
}

func (s *Session) Caller() tools.Caller {
	return tools.Caller{Email: s.Email, Role: s.Role}
}

// Turn runs fn under the session lock with the current transcript. A non-nil
// transcript returned by fn replaces the stored one.
func (s *Session) Turn(fn func(transcript []llm.Message) []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next := fn(s.transcript); next != nil {
		s.transcript = next
	}
}

func (s *Session) Transcript() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.transcript...)
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Begin registers a session seeded with a restored transcript.
func (m *Manager) Begin(id, email, role string, transcript []llm.Message) *Session {
	s := &Session{
		ID:         id,
		Email:      email,
		Role:       role,
		ExpiresAt:  m.now().Add(m.ttl),
		transcript: transcript,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return s
}

func (m *Manager) Resolve(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if m.now().After(s.ExpiresAt) {
		m.End(id)
		return nil, ErrExpired
	}
	return s, nil
}

// End tears the session down. It reports whether the session existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Prune drops expired sessions and returns how many were removed.
func (m *Manager) Prune() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
