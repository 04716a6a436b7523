package redis

import (
	"context"
	"sync"
	"time"

	"quizlive-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Session workers stay in-process (the broadcast fan-out is in-memory);
// Redis carries liveness markers so operators and sibling instances can see
// which join codes are claimed.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	byCode map[string]*app.Session
	byID   map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		byCode: make(map[string]*app.Session),
		byID:   make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCode[session.Code()] = session
	s.byID[session.ID()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.Code()), session.ID(), s.ttl).Err()
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

// MarkEnded drops the liveness marker and frees the join code; the session
// itself stays reachable by id for reporting reads.
func (s *SessionStore) MarkEnded(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.byCode[session.Code()]; ok && current == session {
		delete(s.byCode, session.Code())
	}
	_ = s.client.Del(context.Background(), s.key(session.Code())).Err()
}

func (s *SessionStore) key(code string) string {
	return "quiz:session:" + code
}
