package app

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"quizlive-service/internal/domain"
	"github.com/google/uuid"
)

// Role identifies what a connection is allowed to do within a session.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

type phase int

const (
	phasePending phase = iota
	phaseQuestionActive
	phaseQuestionClosed
	phaseEnded
)

// Conn is one live transport connection registered with a session. The
// transport drains Out; the session never blocks on it.
type Conn struct {
	ID            string
	Role          Role
	ParticipantID string
	Out           chan domain.Event
}

// NewConn allocates a connection handle with a buffered outbound queue.
func NewConn(role Role, participantID string) *Conn {
	return &Conn{
		ID:            uuid.NewString(),
		Role:          role,
		ParticipantID: participantID,
		Out:           make(chan domain.Event, 16),
	}
}

// SubmitResult reports the outcome of an answer submission. Duplicate means
// the ledger already held a record and nothing was changed.
type SubmitResult struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"total_score"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

// Snapshot is the state replayed to a resuming client so it catches up with
// live peers.
type Snapshot struct {
	SessionID     string               `json:"session_id"`
	Code          string               `json:"code"`
	Status        domain.Status        `json:"status"`
	QuestionIndex int                  `json:"question_index"`
	QuestionOpen  bool                 `json:"question_open"`
	RemainingMS   int                  `json:"remaining_ms"`
	Scores        []domain.ScoreEntry  `json:"scores"`
	Players       []domain.Participant `json:"players"`
}

// SessionOptions tune a single session. Zero values fall back to defaults.
type SessionOptions struct {
	BasePoints int
	HostGrace  time.Duration
	Clock      func() time.Time
	Logger     *slog.Logger
	// OnEnd receives the final result exactly once, after the session
	// reaches its terminal state. Called on its own goroutine.
	OnEnd func(domain.SessionResult)
}

type answerKey struct {
	participantID string
	questionID    string
}

// Session owns the authoritative state of one quiz run. All mutations are
// funneled through a single worker goroutine draining the command queue, so
// races between host controls, timer expiry and participant submissions
// resolve to a total order.
type Session struct {
	id        string
	code      string
	mode      domain.Mode
	quiz      domain.Quiz
	opts      SessionOptions
	createdAt time.Time

	commands chan func()
	stopped  chan struct{}
	stopOnce sync.Once

	// final holds the archived outcome once the session ends; it outlives the
	// worker so reporting reads survive Stop.
	final atomic.Pointer[domain.SessionResult]

	// Everything below is owned by the worker goroutine.
	phase        phase
	index        int
	endedAt      time.Time
	participants map[string]*domain.Participant
	records      map[answerKey]*domain.AnswerRecord
	recordOrder  []answerKey
	conns        map[string]*Conn
	hostConnID   string
	timer        *questionTimer
	hostGrace    *time.Timer
}

// NewSession creates a session in pending state and starts its worker.
func NewSession(id, code string, mode domain.Mode, quiz domain.Quiz, opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BasePoints <= 0 {
		opts.BasePoints = defaultBasePoints
	}
	if opts.HostGrace <= 0 {
		opts.HostGrace = 30 * time.Second
	}
	s := &Session{
		id:           id,
		code:         code,
		mode:         mode,
		quiz:         quiz,
		opts:         opts,
		createdAt:    opts.Clock(),
		commands:     make(chan func(), 64),
		stopped:      make(chan struct{}),
		participants: make(map[string]*domain.Participant),
		records:      make(map[answerKey]*domain.AnswerRecord),
		conns:        make(map[string]*Conn),
		timer:        newQuestionTimer(),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.commands:
			fn()
		case <-s.stopped:
			return
		}
	}
}

// Stop terminates the worker goroutine and releases the session's live
// state. The service calls it after archiving the final result; pending
// callers receive ErrSessionClosed, reporting reads fall back to the
// archived result.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.timer.Cancel()
		close(s.stopped)
	})
}

// do runs fn on the worker goroutine and waits for its result.
func (s *Session) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.commands <- func() { errc <- fn() }:
	case <-s.stopped:
		return domain.ErrSessionClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.stopped:
		return domain.ErrSessionClosed
	}
}

// post enqueues fn without waiting; used by timers whose effect must still be
// serialized with everything else.
func (s *Session) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.stopped:
	}
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Code() string        { return s.code }
func (s *Session) Mode() domain.Mode   { return s.mode }
func (s *Session) Quiz() domain.Quiz   { return s.quiz }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Status reports the coarse lifecycle state.
func (s *Session) Status() domain.Status {
	var st domain.Status
	_ = s.do(func() error {
		st = s.statusLocked()
		return nil
	})
	if st == "" {
		st = domain.StatusEnded
	}
	return st
}

func (s *Session) statusLocked() domain.Status {
	switch s.phase {
	case phasePending:
		return domain.StatusPending
	case phaseEnded:
		return domain.StatusEnded
	default:
		return domain.StatusActive
	}
}

// Join registers a new participant, or hands the existing credential back
// when the nickname belongs to a disconnected participant (a reload that
// lost its stored credential). Connected holders block the nickname,
// compared case-insensitively.
func (s *Session) Join(nickname, avatarURL string) (domain.Credential, error) {
	var cred domain.Credential
	err := s.do(func() error {
		if s.phase == phaseEnded {
			return domain.ErrSessionClosed
		}
		trimmed := strings.TrimSpace(nickname)
		lower := strings.ToLower(trimmed)
		for _, p := range s.participants {
			if strings.ToLower(p.Nickname) != lower {
				continue
			}
			if p.Connected {
				return domain.ErrNicknameTaken
			}
			if avatarURL != "" {
				p.AvatarURL = avatarURL
			}
			cred = domain.Credential{ParticipantID: p.ID, AccessCode: p.AccessCode, SessionCode: s.code}
			return nil
		}
		access, err := NewAccessCode()
		if err != nil {
			return err
		}
		p := &domain.Participant{
			ID:         uuid.NewString(),
			Nickname:   trimmed,
			AvatarURL:  avatarURL,
			AccessCode: access,
			JoinedAt:   s.opts.Clock(),
		}
		s.participants[p.ID] = p
		cred = domain.Credential{ParticipantID: p.ID, AccessCode: access, SessionCode: s.code}
		s.broadcastRoster()
		return nil
	})
	return cred, err
}

// Resume validates an access credential and returns the state snapshot the
// client needs to catch up. It mutates nothing; the follow-up Attach marks
// the participant connected.
func (s *Session) Resume(participantID, accessCode string) (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		p, ok := s.participants[participantID]
		if !ok || accessCode == "" || !credentialEqual(p.AccessCode, accessCode) {
			return domain.ErrInvalidCredential
		}
		snap = s.snapshotLocked()
		return nil
	})
	return snap, err
}

// ResumeByAccessCode resolves a resume attempt when the client only kept
// its bearer secret, as the reference client does. Same guarantees as
// Resume.
func (s *Session) ResumeByAccessCode(accessCode string) (domain.Credential, Snapshot, error) {
	var cred domain.Credential
	var snap Snapshot
	err := s.do(func() error {
		if accessCode == "" {
			return domain.ErrInvalidCredential
		}
		for _, p := range s.participants {
			if credentialEqual(p.AccessCode, accessCode) {
				cred = domain.Credential{ParticipantID: p.ID, AccessCode: p.AccessCode, SessionCode: s.code}
				snap = s.snapshotLocked()
				return nil
			}
		}
		return domain.ErrInvalidCredential
	})
	return cred, snap, err
}

// Attach registers a live connection. Player connections must reference a
// joined participant; live mode accepts a single host connection at a time.
func (s *Session) Attach(c *Conn) error {
	return s.do(func() error {
		if s.phase == phaseEnded {
			return domain.ErrSessionClosed
		}
		switch c.Role {
		case RoleHost:
			if s.mode != domain.ModeLive {
				return domain.ErrUnauthorized
			}
			if s.hostConnID != "" {
				return domain.ErrUnauthorized
			}
			s.hostConnID = c.ID
			if s.hostGrace != nil {
				s.hostGrace.Stop()
				s.hostGrace = nil
			}
		case RolePlayer:
			p, ok := s.participants[c.ParticipantID]
			if !ok {
				return domain.ErrParticipantNotFound
			}
			p.Connected = true
		default:
			return domain.ErrUnauthorized
		}
		s.conns[c.ID] = c
		s.broadcastRoster()
		return nil
	})
}

// Detach unregisters a connection. Participants are marked disconnected but
// never removed; a departing host in live mode arms the grace timer that
// force-closes the session unless the host resumes.
func (s *Session) Detach(connID string) {
	_ = s.do(func() error {
		c, ok := s.conns[connID]
		if !ok {
			return nil
		}
		delete(s.conns, connID)
		if c.ID == s.hostConnID {
			s.hostConnID = ""
			if s.mode == domain.ModeLive && s.phase != phaseEnded {
				s.armHostGrace()
			}
			return nil
		}
		if p, ok := s.participants[c.ParticipantID]; ok {
			still := false
			for _, other := range s.conns {
				if other.ParticipantID == c.ParticipantID {
					still = true
					break
				}
			}
			if !still {
				p.Connected = false
				s.broadcastRoster()
			}
		}
		return nil
	})
}

func (s *Session) armHostGrace() {
	if s.hostGrace != nil {
		s.hostGrace.Stop()
	}
	s.hostGrace = time.AfterFunc(s.opts.HostGrace, func() {
		s.post(func() {
			if s.hostConnID == "" && s.phase != phaseEnded {
				s.opts.Logger.Info("host did not resume, closing session", "session", s.id)
				s.endLocked(true)
			}
		})
	})
}

// Start transitions pending -> question_active(0).
func (s *Session) Start(connID string) error {
	return s.do(func() error {
		if err := s.authorizeControl(connID); err != nil {
			return err
		}
		if s.phase == phaseEnded {
			return domain.ErrSessionClosed
		}
		if s.phase != phasePending {
			return domain.ErrQuestionOpen
		}
		if len(s.quiz.Questions) == 0 {
			return domain.ErrNoQuestions
		}
		s.broadcast(domain.Event{Event: domain.EventQuizStarted})
		s.openQuestionLocked(0)
		return nil
	})
}

// CloseQuestion locks the answer window of the open question. Idempotent:
// the host and the timer authority may race to close it and the second call
// is a no-op.
func (s *Session) CloseQuestion(connID string) error {
	return s.do(func() error {
		if connID != "" {
			if err := s.authorizeControl(connID); err != nil {
				return err
			}
		}
		return s.closeQuestionLocked()
	})
}

// Advance moves question_closed(i) -> question_active(i+1), or to ended when
// the quiz is exhausted. It reports the new index and whether the session
// ended.
func (s *Session) Advance(connID string) (int, bool, error) {
	var next int
	var ended bool
	err := s.do(func() error {
		if err := s.authorizeControl(connID); err != nil {
			return err
		}
		switch s.phase {
		case phaseEnded:
			return domain.ErrSessionClosed
		case phaseQuestionActive, phasePending:
			return domain.ErrQuestionOpen
		}
		if s.index+1 >= len(s.quiz.Questions) {
			ended = true
			s.endLocked(false)
			return nil
		}
		next = s.index + 1
		s.openQuestionLocked(next)
		return nil
	})
	return next, ended, err
}

// End terminates the session from any non-terminal state. Idempotent.
func (s *Session) End(connID string) error {
	return s.do(func() error {
		if connID != "" {
			if err := s.authorizeControl(connID); err != nil {
				return err
			}
		}
		s.endLocked(false)
		return nil
	})
}

// authorizeControl enforces who may drive transitions: the host connection
// in live mode, the single participant's connection in self-study.
func (s *Session) authorizeControl(connID string) error {
	c, ok := s.conns[connID]
	if !ok {
		return domain.ErrUnauthorized
	}
	if s.mode == domain.ModeLive && c.Role != RoleHost {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Session) openQuestionLocked(index int) {
	s.phase = phaseQuestionActive
	s.index = index
	q := s.quiz.Questions[index]
	if s.mode == domain.ModeLive && q.TimeLimitSec > 0 {
		s.timer.Arm(index, time.Duration(q.TimeLimitSec)*time.Second, s.opts.Clock(), func(expired int) {
			s.post(func() {
				if s.phase == phaseQuestionActive && s.index == expired {
					_ = s.closeQuestionLocked()
				}
			})
		})
	} else {
		s.timer.Cancel()
	}
	s.broadcast(domain.Event{Event: domain.EventNextQuestion, Data: indexPayload{Index: index}})
}

func (s *Session) closeQuestionLocked() error {
	switch s.phase {
	case phaseEnded:
		return domain.ErrSessionClosed
	case phaseQuestionClosed:
		return nil
	case phasePending:
		return domain.ErrQuestionClosed
	}
	s.phase = phaseQuestionClosed
	s.timer.Cancel()
	s.broadcast(domain.Event{Event: domain.EventEndQuestion, Data: indexPayload{Index: s.index}})
	return nil
}

func (s *Session) endLocked(forced bool) {
	if s.phase == phaseEnded {
		return
	}
	s.phase = phaseEnded
	s.endedAt = s.opts.Clock()
	s.timer.Cancel()
	if s.hostGrace != nil {
		s.hostGrace.Stop()
		s.hostGrace = nil
	}
	result := s.buildResultLocked()
	s.final.Store(&result)
	if forced {
		s.broadcast(domain.Event{Event: domain.EventSessionClosed})
	} else {
		s.broadcast(domain.Event{Event: domain.EventQuizEnded, Data: scoresPayload{Scores: result.Scores}})
	}
	if s.opts.OnEnd != nil {
		go s.opts.OnEnd(result)
	}
}

// Submit records an answer for the open question. Duplicate submissions
// return the prior outcome with ErrDuplicateAnswer so callers can treat the
// retry as an idempotent no-op.
func (s *Session) Submit(participantID, questionID string, answerID *string, shortAnswer string, responseMS int) (SubmitResult, error) {
	var res SubmitResult
	err := s.do(func() error {
		if s.phase == phaseEnded {
			return domain.ErrSessionClosed
		}
		p, ok := s.participants[participantID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		if s.phase != phaseQuestionActive {
			return domain.ErrQuestionClosed
		}
		q := s.quiz.Questions[s.index]
		if q.ID != questionID {
			if questionByID(s.quiz, questionID) == nil {
				return domain.ErrQuestionNotFound
			}
			return domain.ErrQuestionClosed
		}
		key := answerKey{participantID: participantID, questionID: questionID}
		if prior, exists := s.records[key]; exists {
			res = SubmitResult{
				QuestionID: questionID,
				Correct:    prior.Correct,
				Awarded:    prior.Awarded,
				TotalScore: p.Score,
				Duplicate:  true,
			}
			return domain.ErrDuplicateAnswer
		}
		correct := evaluateAnswer(q, answerID, shortAnswer)
		awarded := 0
		if correct {
			awarded = awardPoints(q, s.opts.BasePoints, responseMS)
		}
		rec := &domain.AnswerRecord{
			ParticipantID: participantID,
			QuestionID:    questionID,
			AnswerID:      answerID,
			ShortAnswer:   shortAnswer,
			ResponseMS:    responseMS,
			Correct:       correct,
			Awarded:       awarded,
			SubmittedAt:   s.opts.Clock(),
		}
		s.records[key] = rec
		s.recordOrder = append(s.recordOrder, key)
		p.Score += awarded
		res = SubmitResult{QuestionID: questionID, Correct: correct, Awarded: awarded, TotalScore: p.Score}
		return nil
	})
	return res, err
}

// Scores returns the raw ranking: score descending, earliest join breaking ties.
func (s *Session) Scores() []domain.ScoreEntry {
	var entries []domain.ScoreEntry
	if err := s.do(func() error {
		entries = computeScores(s.participants)
		return nil
	}); err != nil {
		if final := s.final.Load(); final != nil {
			entries = final.Scores
		}
	}
	return entries
}

// CategoryRanking returns the weighted-sum ranking; empty when the quiz
// declares no categories.
func (s *Session) CategoryRanking() []domain.CategoryRankEntry {
	var entries []domain.CategoryRankEntry
	if err := s.do(func() error {
		entries = computeCategoryRanking(s.quiz, s.participants, s.records)
		return nil
	}); err != nil {
		if final := s.final.Load(); final != nil {
			entries = final.CategoryRanking
		}
	}
	return entries
}

// Snapshot returns the current replayable state.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	if err := s.do(func() error {
		snap = s.snapshotLocked()
		return nil
	}); err != nil {
		if final := s.final.Load(); final != nil {
			snap = Snapshot{
				SessionID: s.id,
				Code:      s.code,
				Status:    domain.StatusEnded,
				Scores:    final.Scores,
			}
		}
	}
	return snap
}

// Result returns the final outcome once the session has ended.
func (s *Session) Result() (domain.SessionResult, bool) {
	if final := s.final.Load(); final != nil {
		return *final, true
	}
	return domain.SessionResult{}, false
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:     s.id,
		Code:          s.code,
		Status:        s.statusLocked(),
		QuestionIndex: s.index,
		QuestionOpen:  s.phase == phaseQuestionActive,
		RemainingMS:   int(s.timer.Remaining(s.opts.Clock()) / time.Millisecond),
		Scores:        computeScores(s.participants),
		Players:       s.rosterLocked(),
	}
}

func (s *Session) buildResultLocked() domain.SessionResult {
	answers := make([]domain.AnswerRecord, 0, len(s.recordOrder))
	for _, key := range s.recordOrder {
		answers = append(answers, *s.records[key])
	}
	return domain.SessionResult{
		SessionID:       s.id,
		Code:            s.code,
		QuizID:          s.quiz.ID,
		Mode:            s.mode,
		EndedAt:         s.endedAt,
		Scores:          computeScores(s.participants),
		CategoryRanking: computeCategoryRanking(s.quiz, s.participants, s.records),
		Answers:         answers,
	}
}

func (s *Session) rosterLocked() []domain.Participant {
	players := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		cp := *p
		cp.AccessCode = ""
		players = append(players, cp)
	}
	sortRoster(players)
	return players
}

func (s *Session) broadcastRoster() {
	s.broadcast(domain.Event{Event: domain.EventUpdateParticipants, Data: rosterPayload{Players: s.rosterLocked()}})
}

// broadcast fans out to every registered connection without blocking; a peer
// with a full outbound queue loses the frame and is presumed stalled.
func (s *Session) broadcast(ev domain.Event) {
	for _, c := range s.conns {
		select {
		case c.Out <- ev:
		default:
			s.opts.Logger.Warn("dropping event for slow connection", "session", s.id, "event", ev.Event)
		}
	}
}

func questionByID(quiz domain.Quiz, id string) *domain.Question {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == id {
			return &quiz.Questions[i]
		}
	}
	return nil
}

type indexPayload struct {
	Index int `json:"index"`
}

type rosterPayload struct {
	Players []domain.Participant `json:"players"`
}

type scoresPayload struct {
	Scores []domain.ScoreEntry `json:"scores"`
}
