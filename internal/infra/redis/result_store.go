package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quizlive-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResultStore mirrors final session results into Redis with a TTL, giving
// reporting consumers a fast read path while the durable copy lives in
// Postgres. Access codes are already stripped from the archived payload.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

func (s *ResultStore) ArchiveResult(ctx context.Context, result domain.SessionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	if err := s.client.Set(ctx, s.key(result.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session result: %w", err)
	}
	return nil
}

// Result reads an archived result back, for consumers polling shortly after
// session end.
func (s *ResultStore) Result(ctx context.Context, sessionID string) (domain.SessionResult, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return domain.SessionResult{}, fmt.Errorf("load session result: %w", err)
	}
	var result domain.SessionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.SessionResult{}, fmt.Errorf("unmarshal session result: %w", err)
	}
	return result, nil
}

func (s *ResultStore) key(sessionID string) string {
	return "quiz:results:" + sessionID
}
