package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
)

// SessionStore persists full session snapshots per owner (in-memory, Redis, etc).
// Get returns domain.ErrNoSession when nothing is stored for the owner.
type SessionStore interface {
	Get(ctx context.Context, owner string) ([]byte, error)
	Set(ctx context.Context, owner string, blob []byte) error
	Remove(ctx context.Context, owner string) error
}

// QuestionSupplier fetches multiple-choice questions for a new session.
type QuestionSupplier interface {
	FetchQuestions(ctx context.Context, count int, difficulty domain.Difficulty) ([]domain.QuestionItem, error)
}

// StatsRecorder receives one finalized record per completed attempt.
type StatsRecorder interface {
	Record(ctx context.Context, owner string, rec domain.ResultRecord) error
	History(ctx context.Context, owner string, limit int) ([]domain.ResultRecord, error)
}

// SessionService owns the quiz session state machine for every owner: start,
// answer and navigation mutations, the countdown, finish, and resume. All
// operations for one owner are serialized under a single mutex; each mutation
// mirrors the full session snapshot to the store before returning.
type SessionService struct {
	store    SessionStore
	supplier QuestionSupplier
	stats    StatsRecorder
	log      zerolog.Logger
	tick     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*ownerState
	watchers map[string]map[chan SessionEvent]struct{}
	starts   singleflight.Group
}

// ownerState pairs the in-memory session with its countdown and the one-shot
// stats emission latch for that attempt.
type ownerState struct {
	session domain.Session
	timer   *countdown
	emitted bool
}

// SessionEvent notifies transports of autonomous session changes: timer
// ticks and the transition into FINISHED. TimerExpired distinguishes a
// countdown-driven finish from one triggered by a caller's request, so
// transports that already answer the request directly can skip the event.
type SessionEvent struct {
	SessionID            int64                `json:"sessionId"`
	Status               domain.SessionStatus `json:"status"`
	TimeRemainingSeconds int                  `json:"timeRemainingSeconds"`
	TimerExpired         bool                 `json:"timerExpired"`
}

func NewSessionService(store SessionStore, supplier QuestionSupplier, stats StatsRecorder, log zerolog.Logger) *SessionService {
	return newSessionService(store, supplier, stats, log, time.Second, time.Now)
}

// NewSessionServiceWithClock is test-only for deterministic tick intervals
// and timestamps.
func NewSessionServiceWithClock(store SessionStore, supplier QuestionSupplier, stats StatsRecorder, log zerolog.Logger, tick time.Duration, now func() time.Time) *SessionService {
	return newSessionService(store, supplier, stats, log, tick, now)
}

func newSessionService(store SessionStore, supplier QuestionSupplier, stats StatsRecorder, log zerolog.Logger, tick time.Duration, now func() time.Time) *SessionService {
	return &SessionService{
		store:    store,
		supplier: supplier,
		stats:    stats,
		log:      log,
		tick:     tick,
		now:      now,
		sessions: make(map[string]*ownerState),
		watchers: make(map[string]map[chan SessionEvent]struct{}),
	}
}

// Start validates the config, fetches questions, and installs a fresh ACTIVE
// session for the owner. On any supplier problem no session is created or
// mutated, so the caller can simply retry. Concurrent Start calls for the
// same owner are collapsed into one supplier request.
func (s *SessionService) Start(ctx context.Context, owner string, config domain.SessionConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	_, err, _ := s.starts.Do(owner, func() (interface{}, error) {
		questions, err := s.supplier.FetchQuestions(ctx, config.QuestionCount, config.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSupplierFailure, err)
		}
		if len(questions) != config.QuestionCount {
			return nil, fmt.Errorf("%w: got %d of %d questions", domain.ErrSupplierFailure, len(questions), config.QuestionCount)
		}

		limit := config.QuestionCount * 60 // one minute per question

		s.mu.Lock()
		defer s.mu.Unlock()
		s.installLocked(ctx, owner, domain.Session{
			ID:                   s.now().UnixMilli(),
			Owner:                owner,
			Config:               config,
			Questions:            questions,
			Answers:              make([]string, len(questions)),
			MarkedForReview:      []int{},
			CurrentIndex:         0,
			TimeLimitSeconds:     limit,
			TimeRemainingSeconds: limit,
			Status:               domain.SessionStatusActive,
			StartedAt:            s.now(),
		})
		return nil, nil
	})
	return err
}

// SubmitAnswer writes the answer into the current question's slot,
// overwriting any earlier choice for that index.
func (s *SessionService) SubmitAnswer(ctx context.Context, owner, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.activeLocked(owner)
	if err != nil {
		return err
	}
	st.session.Answers[st.session.CurrentIndex] = answer
	s.persistLocked(ctx, st)
	return nil
}

// GoToQuestion moves the cursor to index. Out-of-range indexes are silently
// ignored; this tolerates double-clicks at the boundaries.
func (s *SessionService) GoToQuestion(ctx context.Context, owner string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.activeLocked(owner)
	if err != nil {
		return err
	}
	return s.setCursorLocked(ctx, st, index)
}

// GoToNext moves the cursor forward by one, clamped at the last question.
func (s *SessionService) GoToNext(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.activeLocked(owner)
	if err != nil {
		return err
	}
	return s.setCursorLocked(ctx, st, st.session.CurrentIndex+1)
}

// GoToPrevious moves the cursor back by one, clamped at the first question.
func (s *SessionService) GoToPrevious(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.activeLocked(owner)
	if err != nil {
		return err
	}
	return s.setCursorLocked(ctx, st, st.session.CurrentIndex-1)
}

func (s *SessionService) setCursorLocked(ctx context.Context, st *ownerState, index int) error {
	if index < 0 || index >= len(st.session.Questions) {
		return nil
	}
	if index == st.session.CurrentIndex {
		// No cursor movement, nothing to persist.
		return nil
	}
	st.session.CurrentIndex = index
	s.persistLocked(ctx, st)
	return nil
}

// ToggleMarkForReview flips membership of index in the marked set. Toggling
// twice restores the original state. Any in-range index is valid, not just
// the current one; out-of-range indexes are ignored.
func (s *SessionService) ToggleMarkForReview(ctx context.Context, owner string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.activeLocked(owner)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(st.session.Questions) {
		return nil
	}
	marked := st.session.MarkedForReview
	for i, m := range marked {
		if m == index {
			st.session.MarkedForReview = append(marked[:i], marked[i+1:]...)
			s.persistLocked(ctx, st)
			return nil
		}
	}
	st.session.MarkedForReview = append(marked, index)
	s.persistLocked(ctx, st)
	return nil
}

// Finish is the single authoritative ACTIVE -> FINISHED transition. Manual
// confirmation and timer expiry both land here, so downstream effects are
// identical regardless of trigger. Finishing an already finished session is
// a no-op, which makes the manual-click-vs-timer-tick race harmless.
func (s *SessionService) Finish(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(ctx, owner, false)
}

func (s *SessionService) finishLocked(ctx context.Context, owner string, timerExpired bool) error {
	st, ok := s.sessions[owner]
	if !ok {
		return domain.ErrNoSession
	}
	if st.session.Status == domain.SessionStatusFinished {
		return nil
	}
	if st.session.Status != domain.SessionStatusActive {
		return domain.ErrSessionNotActive
	}
	if st.timer != nil {
		st.timer.stop()
		st.timer = nil
	}
	st.session.Status = domain.SessionStatusFinished
	s.persistLocked(ctx, st)
	s.emitResultLocked(ctx, st)
	s.broadcastLocked(owner, SessionEvent{
		SessionID:            st.session.ID,
		Status:               st.session.Status,
		TimeRemainingSeconds: st.session.TimeRemainingSeconds,
		TimerExpired:         timerExpired,
	})
	s.log.Info().Str("owner", owner).Int64("session", st.session.ID).Msg("quiz finished")
	return nil
}

// emitResultLocked hands the finalized record to the stats collaborator at
// most once per attempt. The latch is keyed to the attempt, not to time, so
// repeated finish/display paths cannot duplicate the record.
func (s *SessionService) emitResultLocked(ctx context.Context, st *ownerState) {
	if st.emitted {
		return
	}
	st.emitted = true
	res := domain.Score(st.session)
	rec := domain.ResultRecord{
		ID:               uuid.NewString(),
		Difficulty:       res.Difficulty,
		TotalQuestions:   res.TotalQuestions,
		CorrectAnswers:   res.CorrectAnswers,
		WrongAnswers:     res.WrongAnswers,
		Unanswered:       res.Unanswered,
		Percentage:       res.Percentage,
		TimeSpentSeconds: res.TimeSpentSeconds,
		CreatedAt:        s.now(),
	}
	if err := s.stats.Record(ctx, st.session.Owner, rec); err != nil {
		s.log.Warn().Err(err).Str("owner", st.session.Owner).Msg("record quiz result")
	}
}

// Clear tears down any session for the owner and deletes the stored
// snapshot. Always safe to call, including with nothing active.
func (s *SessionService) Clear(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[owner]; ok {
		if st.timer != nil {
			st.timer.stop()
		}
		delete(s.sessions, owner)
	}
	if err := s.store.Remove(ctx, owner); err != nil {
		s.log.Warn().Err(err).Str("owner", owner).Msg("remove stored session")
	}
	return nil
}

// Snapshot returns a deep copy of the owner's current in-memory session.
func (s *SessionService) Snapshot(owner string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[owner]
	if !ok {
		return domain.Session{}, domain.ErrNoSession
	}
	return st.session.Clone(), nil
}

// Result scores the owner's finished session. Repeatable: the same finished
// session always scores identically.
func (s *SessionService) Result(owner string) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[owner]
	if !ok {
		return domain.Result{}, domain.ErrNoSession
	}
	if st.session.Status != domain.SessionStatusFinished {
		return domain.Result{}, domain.ErrSessionNotFinished
	}
	return domain.Score(st.session), nil
}

// History returns the owner's most recent finished-attempt records.
func (s *SessionService) History(ctx context.Context, owner string, limit int) ([]domain.ResultRecord, error) {
	return s.stats.History(ctx, owner, limit)
}

// Subscribe returns a channel receiving timer and finish events for the
// owner. The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(owner string) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 8)

	s.mu.Lock()
	if s.watchers[owner] == nil {
		s.watchers[owner] = make(map[chan SessionEvent]struct{})
	}
	s.watchers[owner][ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if set, ok := s.watchers[owner]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(s.watchers, owner)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *SessionService) broadcastLocked(owner string, ev SessionEvent) {
	for ch := range s.watchers[owner] {
		select {
		case ch <- ev:
		default:
			// Drop the stale event so a slow client never blocks the timer.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Close stops every countdown. Used on server shutdown.
func (s *SessionService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.sessions {
		if st.timer != nil {
			st.timer.stop()
			st.timer = nil
		}
	}
}

// installLocked replaces the owner's session wholesale: any previous
// countdown is cancelled on the same step, the snapshot is persisted, and a
// new countdown starts if the session is ACTIVE. An already expired session
// finishes immediately instead of waiting for a tick.
func (s *SessionService) installLocked(ctx context.Context, owner string, session domain.Session) {
	if st, ok := s.sessions[owner]; ok && st.timer != nil {
		st.timer.stop()
	}
	st := &ownerState{session: session}
	s.sessions[owner] = st
	s.persistLocked(ctx, st)
	if session.Status != domain.SessionStatusActive {
		return
	}
	if session.TimeRemainingSeconds == 0 {
		// Installed by a caller's request; the request path reports the
		// result, so the finish event is not timer-attributed.
		_ = s.finishLocked(ctx, owner, false)
		return
	}
	st.timer = s.startCountdown(owner, session.ID)
}

func (s *SessionService) activeLocked(owner string) (*ownerState, error) {
	st, ok := s.sessions[owner]
	if !ok {
		return nil, domain.ErrNoSession
	}
	if st.session.Status != domain.SessionStatusActive {
		return nil, domain.ErrSessionNotActive
	}
	return st, nil
}

// persistLocked mirrors the current snapshot to the store. Write failures
// are logged, never fatal: the in-memory session stays authoritative and the
// next mutation retries the full snapshot anyway.
func (s *SessionService) persistLocked(ctx context.Context, st *ownerState) {
	blob, err := domain.EncodeSession(st.session)
	if err != nil {
		s.log.Error().Err(err).Str("owner", st.session.Owner).Msg("encode session snapshot")
		return
	}
	if err := s.store.Set(ctx, st.session.Owner, blob); err != nil {
		s.log.Warn().Err(err).Str("owner", st.session.Owner).Msg("persist session snapshot")
	}
}
