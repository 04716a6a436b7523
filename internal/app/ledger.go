package app

import (
	"strings"

	"quizlive-service/internal/domain"
)

const defaultBasePoints = 1000

// evaluateAnswer checks a submission against the question's answer key.
// Choice questions match by option identity; short answers match trimmed,
// case-insensitively. A nil choice with no text is an auto-submit on
// timeout and is never correct.
func evaluateAnswer(q domain.Question, answerID *string, shortAnswer string) bool {
	switch q.Type {
	case domain.QuestionShortAnswer:
		text := strings.TrimSpace(shortAnswer)
		if text == "" {
			return false
		}
		return strings.EqualFold(text, strings.TrimSpace(q.CorrectText))
	default:
		if answerID == nil {
			return false
		}
		for _, opt := range q.Answers {
			if opt.ID == *answerID {
				return opt.Correct
			}
		}
		return false
	}
}

// awardPoints computes the score delta for a correct answer: the question's
// base value, decayed linearly with response latency down to half the base
// over the authored time limit. Questions without a limit award the full
// base. The curve is an authoring concern; replacing this function is the
// extension point.
func awardPoints(q domain.Question, fallbackBase, responseMS int) int {
	base := q.Points
	if base <= 0 {
		base = fallbackBase
	}
	if q.TimeLimitSec <= 0 {
		return base
	}
	limitMS := q.TimeLimitSec * 1000
	if responseMS < 0 {
		responseMS = 0
	}
	if responseMS > limitMS {
		responseMS = limitMS
	}
	ratio := float64(responseMS) / float64(limitMS)
	return int(float64(base) * (1 - ratio/2))
}
