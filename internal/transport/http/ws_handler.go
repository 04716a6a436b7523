package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"quizlive-service/internal/app"
	"quizlive-service/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// WSHandler upgrades HTTP requests to websockets and translates protocol
// events to session operations. It holds no session state of its own; the
// session worker is the single authority.
type WSHandler struct {
	service  *app.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPlayerPayload struct {
	Nickname   string `json:"nickname"`
	AvatarURL  string `json:"avatar_url"`
	AccessCode string `json:"access_code"`
}

type submitAnswerPayload struct {
	QuestionID    string  `json:"question_id"`
	AnswerID      *string `json:"answer_id"`
	ResponseMS    int     `json:"response_time_ms"`
	ShortAnswer   string  `json:"short_answer"`
	ParticipantID string  `json:"participant_id"`
}

type joinedPayload struct {
	Credential domain.Credential `json:"credential"`
	Snapshot   app.Snapshot      `json:"snapshot"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS handles /ws?session={code}&role=host|player.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("session")
	role := app.Role(r.URL.Query().Get("role"))
	if code == "" || (role != app.RoleHost && role != app.RolePlayer) {
		http.Error(w, "missing session code or role", http.StatusBadRequest)
		return
	}

	session, err := h.service.SessionByCode(code)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer sock.Close()

	conn := app.NewConn(role, "")
	attached := false

	if role == app.RoleHost {
		if err := session.Attach(conn); err != nil {
			_ = sock.WriteJSON(domain.Event{Event: domain.EventError, Data: errPayload(err)})
			return
		}
		attached = true
	}

	writerDone := make(chan struct{})
	go h.writePump(sock, conn.Out, writerDone)
	// Detach must precede closing Out: the session broadcasts into Out until
	// the connection is unregistered.
	defer func() {
		if attached {
			session.Detach(conn.ID)
		}
		close(conn.Out)
		<-writerDone
	}()

	sock.SetReadLimit(4096)
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundEvent
		if err := sock.ReadJSON(&inbound); err != nil {
			return
		}
		_ = sock.SetReadDeadline(time.Now().Add(pongWait))
		if !h.handleEvent(session, conn, &attached, inbound) {
			return
		}
	}
}

// handleEvent dispatches one inbound event. Recoverable errors are reported
// to this connection only; a malformed message is dropped with an error
// event and never disturbs the session.
func (h *WSHandler) handleEvent(session *app.Session, conn *app.Conn, attached *bool, inbound inboundEvent) bool {
	switch inbound.Event {
	case domain.EventJoinPlayer:
		if conn.Role != app.RolePlayer {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(domain.ErrUnauthorized)})
			return true
		}
		var payload joinPlayerPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errorPayload{Code: "bad_payload", Message: "invalid join_player payload"}})
			return true
		}
		h.joinPlayer(session, conn, attached, payload)

	case domain.EventStartQuiz:
		if err := session.Start(conn.ID); err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
		}

	case domain.EventEndQuestion:
		if err := session.CloseQuestion(conn.ID); err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
		}

	case domain.EventNextQuestion:
		// The requested index is advisory; the session is the ordering
		// authority and broadcasts the index it actually opened.
		if _, _, err := session.Advance(conn.ID); err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
		}

	case domain.EventSubmitAnswer:
		var payload submitAnswerPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errorPayload{Code: "bad_payload", Message: "invalid submit_answer payload"}})
			return true
		}
		participantID := conn.ParticipantID
		if participantID == "" {
			participantID = payload.ParticipantID
		}
		result, err := session.Submit(participantID, payload.QuestionID, payload.AnswerID, payload.ShortAnswer, payload.ResponseMS)
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			// Network retries must not double-score; replay the prior outcome.
			err = nil
		}
		if err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
			return true
		}
		h.send(conn, domain.Event{Event: domain.EventAnswerResult, Data: result})

	case domain.EventEndQuiz:
		if err := session.End(conn.ID); err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
		}

	default:
		h.send(conn, domain.Event{Event: domain.EventError, Data: errorPayload{Code: "unsupported", Message: "unsupported event"}})
	}
	return true
}

func (h *WSHandler) joinPlayer(session *app.Session, conn *app.Conn, attached *bool, payload joinPlayerPayload) {
	if *attached {
		h.send(conn, domain.Event{Event: domain.EventError, Data: errorPayload{Code: "already_joined", Message: "connection already joined"}})
		return
	}
	if payload.AccessCode != "" {
		cred, _, err := session.ResumeByAccessCode(payload.AccessCode)
		if err != nil {
			// Client falls back to a fresh join_player without the code.
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
			return
		}
		conn.ParticipantID = cred.ParticipantID
		if err := session.Attach(conn); err != nil {
			h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
			return
		}
		*attached = true
		h.send(conn, domain.Event{Event: domain.EventResumed, Data: joinedPayload{Credential: cred, Snapshot: session.Snapshot()}})
		return
	}

	cred, err := session.Join(payload.Nickname, payload.AvatarURL)
	if err != nil {
		h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
		return
	}
	conn.ParticipantID = cred.ParticipantID
	if err := session.Attach(conn); err != nil {
		h.send(conn, domain.Event{Event: domain.EventError, Data: errPayload(err)})
		return
	}
	*attached = true
	h.send(conn, domain.Event{Event: domain.EventJoined, Data: joinedPayload{Credential: cred, Snapshot: session.Snapshot()}})
}

// send queues an event for this connection without blocking the read loop.
func (h *WSHandler) send(conn *app.Conn, ev domain.Event) {
	select {
	case conn.Out <- ev:
	default:
		h.logger.Warn("dropping event for slow connection", "event", ev.Event)
	}
}

// writePump is the sole writer on the socket; it drains the outbound queue
// and keeps the connection alive with pings.
func (h *WSHandler) writePump(sock *websocket.Conn, out <-chan domain.Event, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				_ = sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteJSON(ev); err != nil {
				h.drain(out)
				return
			}
		case <-ticker.C:
			if err := sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.drain(out)
				return
			}
		}
	}
}

// drain consumes the outbound queue until the handler closes it, so the
// session side never sees a stuck channel.
func (h *WSHandler) drain(out <-chan domain.Event) {
	for range out {
	}
}

func errPayload(err error) errorPayload {
	return errorPayload{Code: errorCode(err), Message: err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, domain.ErrQuestionClosed):
		return "question_closed"
	case errors.Is(err, domain.ErrQuestionOpen):
		return "question_open"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return "duplicate_answer"
	case errors.Is(err, domain.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, domain.ErrNicknameTaken):
		return "nickname_taken"
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNoQuestions):
		return "no_questions"
	default:
		return "internal"
	}
}
