package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"quizlive-service/internal/domain"
	"quizlive-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(client, loader, time.Minute)

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].Type != domain.QuestionMultipleChoice {
		t.Fatalf("unexpected quiz content: %+v", quiz)
	}

	// Second call should hit the cache with the full definition intact.
	cached, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached.Questions) != 1 || cached.Questions[0].Answers[1].Correct != true {
		t.Fatalf("cached definition lost the answer key: %+v", cached)
	}
	if !mr.Exists("quiz:quiz-1:def") {
		t.Fatalf("expected cached definition key")
	}
}

func TestQuizRepositoryConcurrentMisses(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewQuizRepository(newClient(mr), memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
		"quiz-2": sampleQuiz(),
	}), time.Minute)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		quizID := "quiz-1"
		if i%2 == 1 {
			quizID = "quiz-2"
		}
		wg.Add(1)
		go func(quizID string) {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), quizID); err != nil {
				errs <- err
			}
		}(quizID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent get: %v", err)
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Sample",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Type: domain.QuestionMultipleChoice,
				Answers: []domain.AnswerOption{
					{ID: "a1", Text: "3"},
					{ID: "a2", Text: "4", Correct: true},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
