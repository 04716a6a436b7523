package memory

import (
	"sync"

	"quizlive-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository,
// indexing sessions by join code and by id. Ended sessions remain readable
// for reporting; a later session may reuse the join code of an ended one.
type SessionStore struct {
	mu     sync.RWMutex
	byCode map[string]*app.Session
	byID   map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byCode: make(map[string]*app.Session),
		byID:   make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCode[session.Code()] = session
	s.byID[session.ID()] = session
}

func (s *SessionStore) GetByCode(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byCode[code]
	return session, ok
}

func (s *SessionStore) GetByID(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byID[id]
	return session, ok
}

// MarkEnded frees the join code for reuse while keeping the session
// reachable by id.
func (s *SessionStore) MarkEnded(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.byCode[session.Code()]; ok && current == session {
		delete(s.byCode, session.Code())
	}
}
