package domain

import "errors"

var (
	// ErrUnauthorized is returned when a connection attempts a control
	// operation its role does not permit.
	ErrUnauthorized = errors.New("not authorized for this operation")
	// ErrSessionClosed is returned for any mutating operation on an ended session.
	ErrSessionClosed = errors.New("session has ended")
	// ErrQuestionClosed is returned for answers arriving after the window closed.
	ErrQuestionClosed = errors.New("question is closed")
	// ErrQuestionOpen is returned when advancing past a question that was never closed.
	ErrQuestionOpen = errors.New("current question is still open")
	// ErrDuplicateAnswer indicates an answer already exists for (participant, question).
	ErrDuplicateAnswer = errors.New("answer already recorded")
	// ErrInvalidCredential indicates a failed resume attempt.
	ErrInvalidCredential = errors.New("invalid access credential")
	// ErrNicknameTaken indicates a fresh-join nickname collision with a connected participant.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrSessionNotFound is returned when no session matches the given code or id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a participant id is unknown to the session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoQuestions indicates a quiz with no questions cannot be started.
	ErrNoQuestions = errors.New("quiz has no questions")
)
