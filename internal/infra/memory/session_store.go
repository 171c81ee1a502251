package memory

import (
	"sync"

	"tribe-quiz-service/internal/app"
)

// SessionStore keeps the live session hubs of this process. Hubs only carry
// subscribers and the in-flight save; session records live in the KV store,
// so a dropped hub is rebuilt on the next Open.
type SessionStore struct {
	mu   sync.Mutex
	hubs map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{hubs: make(map[string]*app.Session)}
}

func (s *SessionStore) GetOrCreate(sessionID string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub := s.hubs[sessionID]
	if hub == nil {
		hub = app.NewSession(sessionID)
		s.hubs[sessionID] = hub
	}
	return hub
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub := s.hubs[sessionID]
	return hub, hub != nil
}

// DeleteIfIdle drops the hub when nobody listens and no save runs.
// It reports whether the hub is gone.
func (s *SessionStore) DeleteIfIdle(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	hub := s.hubs[sessionID]
	if hub == nil {
		return true
	}
	if !hub.IsIdle() {
		return false
	}
	delete(s.hubs, sessionID)
	return true
}

// Len reports how many session hubs are live.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hubs)
}
