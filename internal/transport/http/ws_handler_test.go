package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizlive-service/internal/app"
	"quizlive-service/internal/domain"
	"quizlive-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func newTestStack(t *testing.T) (*app.Service, *httptest.Server) {
	t.Helper()
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": wsSampleQuiz(),
	}), time.Minute)
	service := app.NewService(store, quizzes, app.ServiceOptions{})

	wsHandler := NewWSHandler(service, nil)
	apiHandler := NewAPIHandler(service, wsHandler, "", nil)
	server := httptest.NewServer(apiHandler.Routes())
	t.Cleanup(server.Close)
	return service, server
}

func wsSampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "WS quiz",
		Questions: []domain.Question{
			{
				ID:           "q1",
				Text:         "What is 2 + 2?",
				Type:         domain.QuestionMultipleChoice,
				TimeLimitSec: 30,
				Answers: []domain.AnswerOption{
					{ID: "a1", Text: "3"},
					{ID: "a2", Text: "4", Correct: true},
				},
			},
		},
	}
}

func dialWS(t *testing.T, server *httptest.Server, code string, role string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?session=" + code + "&role=" + role
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", role, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(domain.Event{Event: event, Data: data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// waitFor reads until the named event arrives, skipping interleaved
// broadcasts like roster updates.
func waitFor(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read waiting for %s: %v", event, err)
		}
		if msg.Event == event {
			return msg.Data
		}
	}
	t.Fatalf("never received %s", event)
	return nil
}

func TestWebSocketLiveFlow(t *testing.T) {
	service, server := newTestStack(t)

	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	host := dialWS(t, server, session.Code(), "host")
	player := dialWS(t, server, session.Code(), "player")

	sendEvent(t, player, domain.EventJoinPlayer, map[string]any{
		"nickname":   "ana",
		"avatar_url": "https://avatars/1.png",
	})
	joined := waitFor(t, player, domain.EventJoined)
	cred, ok := joined["credential"].(map[string]any)
	if !ok || cred["access_code"] == "" {
		t.Fatalf("expected credential in joined payload, got %+v", joined)
	}

	sendEvent(t, host, domain.EventStartQuiz, nil)
	waitFor(t, player, domain.EventQuizStarted)
	next := waitFor(t, player, domain.EventNextQuestion)
	if idx, _ := next["index"].(float64); idx != 0 {
		t.Fatalf("expected question 0, got %v", next)
	}

	sendEvent(t, player, domain.EventSubmitAnswer, map[string]any{
		"question_id":      "q1",
		"answer_id":        "a2",
		"response_time_ms": 1200,
	})
	result := waitFor(t, player, domain.EventAnswerResult)
	if correct, _ := result["correct"].(bool); !correct {
		t.Fatalf("expected correct answer, got %+v", result)
	}

	// a retry replays the recorded outcome instead of double-scoring
	sendEvent(t, player, domain.EventSubmitAnswer, map[string]any{
		"question_id":      "q1",
		"answer_id":        "a2",
		"response_time_ms": 1300,
	})
	retry := waitFor(t, player, domain.EventAnswerResult)
	if dup, _ := retry["duplicate"].(bool); !dup {
		t.Fatalf("expected duplicate flag, got %+v", retry)
	}

	sendEvent(t, host, domain.EventEndQuestion, nil)
	waitFor(t, player, domain.EventEndQuestion)

	sendEvent(t, host, domain.EventNextQuestion, map[string]any{"index": 1})
	ended := waitFor(t, player, domain.EventQuizEnded)
	scores, ok := ended["scores"].([]any)
	if !ok || len(scores) != 1 {
		t.Fatalf("expected final scores, got %+v", ended)
	}
}

func TestWebSocketResumeRestoresParticipant(t *testing.T) {
	service, server := newTestStack(t)
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	player := dialWS(t, server, session.Code(), "player")
	sendEvent(t, player, domain.EventJoinPlayer, map[string]any{"nickname": "ana"})
	joined := waitFor(t, player, domain.EventJoined)
	cred := joined["credential"].(map[string]any)
	accessCode, _ := cred["access_code"].(string)
	participantID, _ := cred["participant_id"].(string)
	player.Close()

	back := dialWS(t, server, session.Code(), "player")
	sendEvent(t, back, domain.EventJoinPlayer, map[string]any{"access_code": accessCode})
	resumed := waitFor(t, back, domain.EventResumed)
	resumedCred := resumed["credential"].(map[string]any)
	if got, _ := resumedCred["participant_id"].(string); got != participantID {
		t.Fatalf("resume returned a different participant: %v vs %v", got, participantID)
	}
	if _, ok := resumed["snapshot"].(map[string]any); !ok {
		t.Fatalf("expected state snapshot on resume, got %+v", resumed)
	}
}

func TestWebSocketInvalidCredentialFallsBackToFreshJoin(t *testing.T) {
	service, server := newTestStack(t)
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	player := dialWS(t, server, session.Code(), "player")
	sendEvent(t, player, domain.EventJoinPlayer, map[string]any{"access_code": "ffffffffffffffffffffffffffffffff"})
	errData := waitFor(t, player, domain.EventError)
	if code, _ := errData["code"].(string); code != "invalid_credential" {
		t.Fatalf("expected invalid_credential, got %+v", errData)
	}

	sendEvent(t, player, domain.EventJoinPlayer, map[string]any{"nickname": "ana"})
	waitFor(t, player, domain.EventJoined)
}

func TestWebSocketPlayerCannotControlSession(t *testing.T) {
	service, server := newTestStack(t)
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	player := dialWS(t, server, session.Code(), "player")
	sendEvent(t, player, domain.EventJoinPlayer, map[string]any{"nickname": "ana"})
	waitFor(t, player, domain.EventJoined)

	sendEvent(t, player, domain.EventStartQuiz, nil)
	errData := waitFor(t, player, domain.EventError)
	if code, _ := errData["code"].(string); code != "unauthorized" {
		t.Fatalf("expected unauthorized, got %+v", errData)
	}
}

func TestWebSocketNicknameConflict(t *testing.T) {
	service, server := newTestStack(t)
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	first := dialWS(t, server, session.Code(), "player")
	sendEvent(t, first, domain.EventJoinPlayer, map[string]any{"nickname": "Ana"})
	waitFor(t, first, domain.EventJoined)

	second := dialWS(t, server, session.Code(), "player")
	sendEvent(t, second, domain.EventJoinPlayer, map[string]any{"nickname": "ana"})
	errData := waitFor(t, second, domain.EventError)
	if code, _ := errData["code"].(string); code != "nickname_taken" {
		t.Fatalf("expected nickname_taken, got %+v", errData)
	}
}

func TestWebSocketAcceptsLowercaseSessionCode(t *testing.T) {
	service, server := newTestStack(t)
	session, _, err := service.CreateSession(context.Background(), "quiz-1", domain.ModeLive, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	player := dialWS(t, server, strings.ToLower(session.Code()), "player")
	sendEvent(t, player, domain.EventJoinPlayer, map[string]any{"nickname": "ana"})
	waitFor(t, player, domain.EventJoined)
}

func TestWebSocketUnknownSession(t *testing.T) {
	_, server := newTestStack(t)
	u := "ws" + server.URL[len("http"):] + "/ws?session=ZZZZZZ&role=player"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial failure for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %+v", resp)
	}
}
