package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quizlive-service/internal/domain"
	"github.com/google/uuid"
)

// SessionRepository abstracts how live sessions are tracked (in-memory,
// Redis-marked, etc). Ended sessions stay retrievable for reporting;
// MarkEnded only releases external liveness state.
type SessionRepository interface {
	Put(session *Session)
	GetByCode(code string) (*Session, bool)
	GetByID(id string) (*Session, bool)
	MarkEnded(session *Session)
}

// QuizRepository loads immutable quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultArchiver persists the final outcome of an ended session for the
// reporting collaborators.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, result domain.SessionResult) error
}

// ServiceOptions tune session creation defaults.
type ServiceOptions struct {
	JoinCodeLength int
	BasePoints     int
	HostGrace      time.Duration
	Logger         *slog.Logger
}

// Service contains the coordinator use cases shared by the WS transport and
// the REST side channel.
type Service struct {
	sessions  SessionRepository
	quizzes   QuizRepository
	archivers []ResultArchiver
	opts      ServiceOptions
	logger    *slog.Logger
}

func NewService(sessions SessionRepository, quizzes QuizRepository, opts ServiceOptions, archivers ...ResultArchiver) *Service {
	if opts.JoinCodeLength <= 0 {
		opts.JoinCodeLength = 6
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		sessions:  sessions,
		quizzes:   quizzes,
		archivers: archivers,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// JoinReply is returned to a joining or resuming client.
type JoinReply struct {
	SessionID  string            `json:"session_id"`
	Credential domain.Credential `json:"credential"`
	Nickname   string            `json:"nickname"`
	AvatarURL  string            `json:"avatar_url,omitempty"`
	Resumed    bool              `json:"resumed"`
	Snapshot   Snapshot          `json:"snapshot"`
}

// CreateSession loads the quiz and spins up a session worker. Self-study
// sessions also create their single participant so the client receives its
// credential in the same call.
func (s *Service) CreateSession(ctx context.Context, quizID string, mode domain.Mode, selfNickname string) (*Session, *domain.Credential, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}

	code, err := s.uniqueJoinCode()
	if err != nil {
		return nil, nil, err
	}

	var session *Session
	session = NewSession(uuid.NewString(), code, mode, quiz, SessionOptions{
		BasePoints: s.opts.BasePoints,
		HostGrace:  s.opts.HostGrace,
		Logger:     s.logger,
		OnEnd: func(result domain.SessionResult) {
			s.archive(session, result)
		},
	})
	s.sessions.Put(session)

	var cred *domain.Credential
	if mode == domain.ModeSelfStudy {
		nickname := selfNickname
		if nickname == "" {
			nickname = "student"
		}
		c, err := session.Join(nickname, "")
		if err != nil {
			return nil, nil, err
		}
		cred = &c
	}
	s.logger.Info("session created", "session", session.ID(), "code", code, "quiz", quizID, "mode", mode)
	return session, cred, nil
}

func (s *Service) uniqueJoinCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := NewJoinCode(s.opts.JoinCodeLength)
		if err != nil {
			return "", err
		}
		if existing, ok := s.sessions.GetByCode(code); ok && existing.Status() != domain.StatusEnded {
			continue
		}
		return code, nil
	}
	return "", errors.New("could not allocate a unique join code")
}

// Join handles both fresh joins and credential resumes against a session
// code. A presented credential that fails validation falls through to the
// caller as ErrInvalidCredential so the client can retry as a fresh join.
func (s *Service) Join(ctx context.Context, code, nickname, avatarURL, accessCode string) (JoinReply, error) {
	session, err := s.SessionByCode(code)
	if err != nil {
		return JoinReply{}, err
	}

	if accessCode != "" {
		cred, snap, err := session.ResumeByAccessCode(accessCode)
		if err != nil {
			return JoinReply{}, err
		}
		return JoinReply{
			SessionID:  session.ID(),
			Credential: cred,
			Nickname:   nicknameFor(snap.Players, cred.ParticipantID, nickname),
			AvatarURL:  avatarURL,
			Resumed:    true,
			Snapshot:   snap,
		}, nil
	}

	cred, err := session.Join(nickname, avatarURL)
	if err != nil {
		return JoinReply{}, err
	}
	return JoinReply{
		SessionID:  session.ID(),
		Credential: cred,
		Nickname:   nickname,
		AvatarURL:  avatarURL,
		Snapshot:   session.Snapshot(),
	}, nil
}

func nicknameFor(players []domain.Participant, participantID, fallback string) string {
	for _, p := range players {
		if p.ID == participantID {
			return p.Nickname
		}
	}
	return fallback
}

// SessionByCode resolves a session for the WS transport. Join codes are
// stored uppercase; clients may type them in any case.
func (s *Service) SessionByCode(code string) (*Session, error) {
	session, ok := s.sessions.GetByCode(strings.ToUpper(code))
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SessionByID resolves a session for the REST side channel.
func (s *Service) SessionByID(id string) (*Session, error) {
	session, ok := s.sessions.GetByID(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// QuizForSession returns the immutable quiz definition a session runs on.
func (s *Service) QuizForSession(id string) (domain.Quiz, error) {
	session, err := s.SessionByID(id)
	if err != nil {
		return domain.Quiz{}, err
	}
	return session.Quiz(), nil
}

// Scores returns the raw ranking on demand.
func (s *Service) Scores(id string) ([]domain.ScoreEntry, error) {
	session, err := s.SessionByID(id)
	if err != nil {
		return nil, err
	}
	return session.Scores(), nil
}

// CategoryRanking returns the weighted ranking on demand.
func (s *Service) CategoryRanking(id string) ([]domain.CategoryRankEntry, error) {
	session, err := s.SessionByID(id)
	if err != nil {
		return nil, err
	}
	return session.CategoryRanking(), nil
}

// EndSession terminates a session from the side channel. Idempotent.
func (s *Service) EndSession(ctx context.Context, id string) error {
	session, err := s.SessionByID(id)
	if err != nil {
		return err
	}
	if err := session.End(""); err != nil {
		if _, ended := session.Result(); ended {
			// already ended and torn down
			return nil
		}
		return err
	}
	return nil
}

// archive persists the final result through every configured archiver.
// Failures are logged and swallowed: reporting is best-effort and must not
// disturb the terminal transition. The worker is stopped afterwards so an
// ended session keeps only its archived result.
func (s *Service) archive(session *Session, result domain.SessionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, archiver := range s.archivers {
		if err := archiver.ArchiveResult(ctx, result); err != nil {
			s.logger.Error("archive session result", "session", result.SessionID, "err", err)
		}
	}
	s.sessions.MarkEnded(session)
	session.Stop()
}
