package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tribe-quiz-service/internal/domain"
)

// Session is the in-process hub for one quiz session: it serializes
// mutations, fans events out to subscribers and tracks the in-flight profile save.
type Session struct {
	id          string
	createdAt   time.Time
	mu          sync.Mutex
	userID      string
	subscribers map[chan domain.Event]struct{}
	saveSeq     uint64
	cancelSave  context.CancelFunc
	// leaseToken identifies this hub when claiming a session's save across instances.
	leaseToken string
}

// NewSession is exported for infrastructure layers that keep session registries.
func NewSession(id string) *Session {
	return &Session{
		id:          id,
		createdAt:   time.Now(),
		subscribers: make(map[chan domain.Event]struct{}),
		leaseToken:  uuid.NewString(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the authenticated user attached to the session, if any.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// IsIdle reports whether nobody is listening and no profile save is running.
func (s *Session) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) == 0 && s.cancelSave == nil
}

func (s *Session) subscribe(initial domain.Event) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- initial
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(ev domain.Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop its oldest event instead of blocking the session
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// beginSaveLocked cancels any running save and registers a new one.
func (s *Session) beginSaveLocked(cancel context.CancelFunc) uint64 {
	if s.cancelSave != nil {
		s.cancelSave()
	}
	s.saveSeq++
	s.cancelSave = cancel
	return s.saveSeq
}

// currentSaveLocked reports whether seq is still the latest save started on
// this hub. A superseded save must not touch the session's records.
func (s *Session) currentSaveLocked(seq uint64) bool {
	return s.saveSeq == seq
}

func (s *Session) saveInFlightLocked() bool {
	return s.cancelSave != nil
}

func (s *Session) finishSave(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveSeq == seq {
		s.cancelSave = nil
	}
}

// abandonLocked stops retries once the last subscriber has left.
func (s *Session) abandonLocked() {
	if len(s.subscribers) > 0 || s.cancelSave == nil {
		return
	}
	s.cancelSave()
	s.cancelSave = nil
}
