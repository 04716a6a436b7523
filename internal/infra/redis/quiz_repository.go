package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"quizlive-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz definitions from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches whole quiz definitions in Redis and falls back to a
// loader on cache miss. The coordinator needs question types, categories and
// answer keys, so the full definition is stored as JSON:
// SET quiz:{quizID}:def {json} EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := r.defKey(quizID)

	if quiz, ok := r.fromCache(ctx, key); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.fromCache(ctx, key); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if raw, err := json.Marshal(quiz); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) fromCache(ctx context.Context, key string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) defKey(quizID string) string {
	return "quiz:" + quizID + ":def"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// locked global source; concurrent misses on different quiz ids share it
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
