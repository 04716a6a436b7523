package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quizlive-service/internal/app"
	"quizlive-service/internal/domain"
	"quizlive-service/internal/infra/memory"
)

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "Capital of Norway?",
				Type: domain.QuestionShortAnswer,
				CorrectText: "Oslo",
			},
		},
	}
}

type recordingArchiver struct {
	mu      sync.Mutex
	results []domain.SessionResult
}

func (a *recordingArchiver) ArchiveResult(_ context.Context, result domain.SessionResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	return nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}

func newTestService(archivers ...app.ResultArchiver) *app.Service {
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
	}), 5*time.Minute)
	return app.NewService(store, quizzes, app.ServiceOptions{}, archivers...)
}

func TestCreateSessionAssignsJoinCode(t *testing.T) {
	service := newTestService()

	session, participant, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer session.Stop()
	if participant != nil {
		t.Fatalf("live session must not create a participant")
	}
	if len(session.Code()) != 6 {
		t.Fatalf("expected 6-char join code, got %q", session.Code())
	}
	if session.Status() != domain.StatusPending {
		t.Fatalf("expected pending, got %s", session.Status())
	}

	found, err := service.SessionByCode(session.Code())
	if err != nil || found.ID() != session.ID() {
		t.Fatalf("session not resolvable by code: %v", err)
	}
}

func TestCreateSessionUnknownQuiz(t *testing.T) {
	service := newTestService()
	if _, _, err := service.CreateSession(context.Background(), "nope", domain.ModeLive, ""); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz-not-found, got %v", err)
	}
}

func TestCreateSelfStudySessionReturnsCredential(t *testing.T) {
	service := newTestService()

	session, participant, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeSelfStudy, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer session.Stop()
	if participant == nil || participant.AccessCode == "" || participant.ParticipantID == "" {
		t.Fatalf("expected participant credential, got %+v", participant)
	}
	if participant.SessionCode != session.Code() {
		t.Fatalf("credential carries wrong session code")
	}
}

func TestJoinAndResumeThroughService(t *testing.T) {
	service := newTestService()
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer session.Stop()

	reply, err := service.Join(context.Background(), session.Code(), "ana", "https://avatars/1.png", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if reply.Resumed {
		t.Fatalf("fresh join flagged as resume")
	}
	if reply.Credential.AccessCode == "" {
		t.Fatalf("expected access code")
	}

	resumed, err := service.Join(context.Background(), session.Code(), "", "", reply.Credential.AccessCode)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed.Resumed || resumed.Credential.ParticipantID != reply.Credential.ParticipantID {
		t.Fatalf("resume did not restore the participant: %+v", resumed)
	}
	if resumed.Nickname != "ana" {
		t.Fatalf("resume lost the nickname: %q", resumed.Nickname)
	}

	if _, err := service.Join(context.Background(), session.Code(), "", "", "ffffffffffffffffffffffffffffffff"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected invalid-credential, got %v", err)
	}
	if _, err := service.Join(context.Background(), "ZZZZZZ", "bob", "", ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session-not-found, got %v", err)
	}
}

func TestEndSessionArchivesAndFreesJoinCode(t *testing.T) {
	archiver := &recordingArchiver{}
	service := newTestService(archiver)
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer session.Stop()
	code := session.Code()

	if err := service.EndSession(context.Background(), session.ID()); err != nil {
		t.Fatalf("end: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for archiver.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("result never archived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// join code freed for reuse, session still reachable by id for reporting
	if _, err := service.SessionByCode(code); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected freed join code, got %v", err)
	}
	scores, err := service.Scores(session.ID())
	if err != nil {
		t.Fatalf("scores after end: %v", err)
	}
	if scores == nil {
		t.Fatalf("expected empty scoreboard, got nil slice")
	}
}

func TestEndedSessionStopsWorkerAndKeepsResultReadable(t *testing.T) {
	archiver := &recordingArchiver{}
	service := newTestService(archiver)
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reply, err := service.Join(context.Background(), session.Code(), "ana", "", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := service.EndSession(context.Background(), session.ID()); err != nil {
		t.Fatalf("end: %v", err)
	}

	// The archive hook stops the worker; the live roster disappears from the
	// snapshot once teardown completes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := session.Snapshot()
		if snap.Status == domain.StatusEnded && len(snap.Players) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never stopped after archive: %+v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := session.Join("late", ""); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
	if _, err := service.Join(context.Background(), session.Code(), "", "", reply.Credential.AccessCode); !errors.Is(err, domain.ErrSessionNotFound) && !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected resume rejection, got %v", err)
	}

	// reporting reads survive teardown
	scores, err := service.Scores(session.ID())
	if err != nil {
		t.Fatalf("scores after teardown: %v", err)
	}
	if len(scores) != 1 || scores[0].Nickname != "ana" {
		t.Fatalf("expected archived scoreboard, got %+v", scores)
	}
	if _, err := service.CategoryRanking(session.ID()); err != nil {
		t.Fatalf("ranking after teardown: %v", err)
	}
	if result, ok := session.Result(); !ok || result.SessionID != session.ID() {
		t.Fatalf("final result unavailable after teardown")
	}

	// ending again stays a no-op
	if err := service.EndSession(context.Background(), session.ID()); err != nil {
		t.Fatalf("repeat end: %v", err)
	}
	if archiver.count() != 1 {
		t.Fatalf("expected one archived result, got %d", archiver.count())
	}
}

func TestScoresAndRankingUnknownSession(t *testing.T) {
	service := newTestService()
	if _, err := service.Scores("nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := service.CategoryRanking("nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
