package domain

import "time"

// Mode selects how a session is paced.
type Mode string

const (
	// ModeLive is host-paced with many participants.
	ModeLive Mode = "live"
	// ModeSelfStudy is a single participant pacing itself.
	ModeSelfStudy Mode = "self_study"
)

// Status is the coarse lifecycle of a session.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// QuestionType discriminates how an answer is evaluated.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// Category is an authored grouping with a weight used by the ranking engine.
type Category struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// AnswerOption is one selectable choice of a question.
type AnswerOption struct {
	ID      string `json:"answer_id"`
	Text    string `json:"answer_text"`
	Correct bool   `json:"is_correct,omitempty"`
}

// Question models a single quiz question. CorrectText is the answer key for
// short_answer questions; choice questions carry the key on their options.
type Question struct {
	ID           string         `json:"question_id"`
	Text         string         `json:"question_text"`
	Type         QuestionType   `json:"question_type"`
	TimeLimitSec int            `json:"time_limit_sec,omitempty"`
	ImageURL     string         `json:"image_url,omitempty"`
	Category     string         `json:"category,omitempty"`
	Points       int            `json:"points,omitempty"` // defaults to 1000 if zero
	Answers      []AnswerOption `json:"answers"`
	CorrectText  string         `json:"correct_text,omitempty"`
	Explanation  string         `json:"explanation,omitempty"`
}

// Quiz is an immutable authored quiz definition. The coordinator never
// mutates it.
type Quiz struct {
	ID          string     `json:"quiz_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Categories  []Category `json:"categories,omitempty"`
	Questions   []Question `json:"questions"`
}

// Participant is one joined player. It survives disconnects and session end.
type Participant struct {
	ID         string    `json:"participant_id"`
	Nickname   string    `json:"nickname"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	AccessCode string    `json:"-"`
	Connected  bool      `json:"connected"`
	Score      int       `json:"score"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Credential is the bearer secret handed to a client at join time so it can
// resume after a disconnect. Never logged.
type Credential struct {
	ParticipantID string `json:"participant_id"`
	AccessCode    string `json:"access_code"`
	SessionCode   string `json:"session_code"`
}

// AnswerRecord is one entry of the append-only answer ledger. At most one
// record exists per (participant, question).
type AnswerRecord struct {
	ParticipantID string    `json:"participant_id"`
	QuestionID    string    `json:"question_id"`
	AnswerID      *string   `json:"answer_id"`
	ShortAnswer   string    `json:"short_answer,omitempty"`
	ResponseMS    int       `json:"response_time_ms"`
	Correct       bool      `json:"correct"`
	Awarded       int       `json:"awarded"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// ScoreEntry is one row of the raw scoreboard.
type ScoreEntry struct {
	ParticipantID string `json:"participant_id"`
	Nickname      string `json:"nickname"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"`
}

// CategoryScore is a participant's derived performance in one category.
// Recomputed on demand, never stored.
type CategoryScore struct {
	Category string  `json:"category"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
	Weight   float64 `json:"weight"`
}

// CategoryRankEntry is one row of the weighted (SAW) ranking. WeightedScore
// is scaled to 0..100.
type CategoryRankEntry struct {
	ParticipantID string          `json:"participant_id"`
	Nickname      string          `json:"nickname"`
	WeightedScore float64         `json:"weighted_score"`
	RawScore      int             `json:"raw_score"`
	Categories    []CategoryScore `json:"categories"`
	Rank          int             `json:"rank"`
}

// SessionResult is the archived outcome of an ended session, consumed by
// reporting and analytics outside the coordinator.
type SessionResult struct {
	SessionID       string              `json:"session_id"`
	Code            string              `json:"code"`
	QuizID          string              `json:"quiz_id"`
	Mode            Mode                `json:"mode"`
	EndedAt         time.Time           `json:"ended_at"`
	Scores          []ScoreEntry        `json:"scores"`
	CategoryRanking []CategoryRankEntry `json:"category_ranking,omitempty"`
	Answers         []AnswerRecord      `json:"answers"`
}
