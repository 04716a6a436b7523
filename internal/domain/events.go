package domain

// Event is one message of the bidirectional session protocol: an event name
// plus a payload.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client-to-server event names.
const (
	EventJoinPlayer   = "join_player"
	EventStartQuiz    = "start_quiz"
	EventEndQuestion  = "end_question"
	EventNextQuestion = "next_question"
	EventSubmitAnswer = "submit_answer"
	EventEndQuiz      = "end_quiz"
)

// Server-to-client event names. EventEndQuestion and EventNextQuestion are
// echoed back to all connections on the corresponding transitions.
const (
	EventJoined             = "joined"
	EventResumed            = "resumed"
	EventUpdateParticipants = "update_participants"
	EventQuizStarted        = "quiz_started"
	EventQuizEnded          = "quiz_ended"
	EventSessionClosed      = "session_closed"
	EventAnswerResult       = "answer_result"
	EventError              = "error"
)
