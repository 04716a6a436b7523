package app

import (
	"testing"

	"quizlive-service/internal/domain"
)

func TestEvaluateChoiceQuestions(t *testing.T) {
	q := domain.Question{
		ID:   "q1",
		Type: domain.QuestionMultipleChoice,
		Answers: []domain.AnswerOption{
			{ID: "a1", Correct: true},
			{ID: "a2"},
		},
	}
	right, wrong, unknown := "a1", "a2", "a9"
	if !evaluateAnswer(q, &right, "") {
		t.Fatalf("correct option not accepted")
	}
	if evaluateAnswer(q, &wrong, "") {
		t.Fatalf("wrong option accepted")
	}
	if evaluateAnswer(q, &unknown, "") {
		t.Fatalf("unknown option accepted")
	}
	if evaluateAnswer(q, nil, "") {
		t.Fatalf("nil auto-submit must be incorrect")
	}
}

func TestEvaluateShortAnswer(t *testing.T) {
	q := domain.Question{
		ID:          "q1",
		Type:        domain.QuestionShortAnswer,
		CorrectText: "Oslo",
	}
	cases := []struct {
		text string
		want bool
	}{
		{"Oslo", true},
		{"oslo", true},
		{"  OSLO  ", true},
		{"Bergen", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := evaluateAnswer(q, nil, tc.text); got != tc.want {
			t.Fatalf("evaluate(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestAwardPointsDecay(t *testing.T) {
	q := domain.Question{ID: "q1", TimeLimitSec: 10, Points: 1000}

	if got := awardPoints(q, defaultBasePoints, 0); got != 1000 {
		t.Fatalf("instant answer should earn the full base, got %d", got)
	}
	if got := awardPoints(q, defaultBasePoints, 5000); got != 750 {
		t.Fatalf("half-time answer should earn 750, got %d", got)
	}
	if got := awardPoints(q, defaultBasePoints, 10000); got != 500 {
		t.Fatalf("last-moment answer should earn half, got %d", got)
	}
	// latency past the limit clamps instead of going below half
	if got := awardPoints(q, defaultBasePoints, 25000); got != 500 {
		t.Fatalf("over-limit latency should clamp at half, got %d", got)
	}
}

func TestAwardPointsWithoutLimitOrBase(t *testing.T) {
	q := domain.Question{ID: "q1"}
	if got := awardPoints(q, defaultBasePoints, 60000); got != defaultBasePoints {
		t.Fatalf("no-limit question should award the full fallback base, got %d", got)
	}
	q.Points = 200
	if got := awardPoints(q, defaultBasePoints, 60000); got != 200 {
		t.Fatalf("authored points should win over the fallback, got %d", got)
	}
}
