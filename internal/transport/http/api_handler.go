package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"quizlive-service/internal/app"
	"quizlive-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

// APIHandler serves the side-channel REST surface: session lifecycle plus
// the idempotent reads clients perform around the persistent connection.
type APIHandler struct {
	service  *app.Service
	ws       *WSHandler
	hostKey  string
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAPIHandler(service *app.Service, ws *WSHandler, hostKey string, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		service:  service,
		ws:       ws,
		hostKey:  hostKey,
		validate: validator.New(),
		logger:   logger,
	}
}

// Routes builds the router for the whole HTTP surface, websocket included.
func (h *APIHandler) Routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Get("/ws", h.ws.ServeWS)

	mux.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Post("/{code}/join", h.joinSession)
		r.Get("/{id}/quiz", h.getQuiz)
		r.Get("/{id}/scores", h.getScores)
		r.Get("/{id}/ranking", h.getRanking)
		r.Post("/{id}/end", h.endSession)
	})
	return mux
}

type createSessionResponse struct {
	SessionID   string             `json:"session_id"`
	Code        string             `json:"code"`
	QuizID      string             `json:"quiz_id"`
	Mode        domain.Mode        `json:"mode"`
	Name        string             `json:"name"`
	Participant *domain.Credential `json:"participant,omitempty"`
}

type joinRequest struct {
	Nickname   string `json:"nickname" validate:"required,min=1,max=32"`
	AvatarURL  string `json:"avatar_url" validate:"omitempty,max=512"`
	AccessCode string `json:"access_code" validate:"omitempty,len=32,hexadecimal"`
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeHost(w, r) {
		return
	}
	quizID := r.URL.Query().Get("quiz_id")
	if quizID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "quiz_id is required")
		return
	}
	mode := domain.ModeLive
	switch r.URL.Query().Get("mode") {
	case "", "live":
	case "self", string(domain.ModeSelfStudy):
		mode = domain.ModeSelfStudy
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unknown mode")
		return
	}

	session, participant, err := h.service.CreateSession(r.Context(), quizID, mode, "")
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:   session.ID(),
		Code:        session.Code(),
		QuizID:      quizID,
		Mode:        mode,
		Name:        session.Quiz().Title,
		Participant: participant,
	})
}

func (h *APIHandler) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	// Resume attempts only carry the stored credential; the nickname check
	// applies to fresh joins.
	if req.AccessCode == "" {
		if err := h.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}

	reply, err := h.service.Join(r.Context(), strings.ToUpper(chi.URLParam(r, "code")), req.Nickname, req.AvatarURL, req.AccessCode)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *APIHandler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.QuizForSession(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *APIHandler) getScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.service.Scores(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *APIHandler) getRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.service.CategoryRanking(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func (h *APIHandler) endSession(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeHost(w, r) {
		return
	}
	if err := h.service.EndSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// authorizeHost checks the opaque host key supplied by the identity
// collaborator. An empty configured key disables the check (demo mode).
func (h *APIHandler) authorizeHost(w http.ResponseWriter, r *http.Request) bool {
	if h.hostKey == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if strings.TrimPrefix(header, "Bearer ") != h.hostKey {
		writeError(w, http.StatusForbidden, "unauthorized", "host key required")
		return false
	}
	return true
}

func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNicknameTaken):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredential):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNoQuestions), errors.Is(err, domain.ErrQuestionClosed),
		errors.Is(err, domain.ErrQuestionOpen):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err)
	}
	writeError(w, status, errorCode(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorPayload{Code: code, Message: message})
}
