package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Difficulty selects the question pool requested from the supplier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// SessionStatus enumerates quiz session states.
type SessionStatus string

const (
	SessionStatusIdle     SessionStatus = "IDLE"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusFinished SessionStatus = "FINISHED"
)

// QuestionCounts lists the session sizes a user can pick.
var QuestionCounts = []int{5, 10, 15, 20}

// SessionConfig is what a user picks before starting a quiz.
type SessionConfig struct {
	Difficulty    Difficulty `json:"difficulty"`
	QuestionCount int        `json:"questionCount"`
}

// Validate reports whether the config is complete and within the allowed sets.
func (c SessionConfig) Validate() error {
	switch c.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: difficulty %q", ErrInvalidConfig, c.Difficulty)
	}
	for _, n := range QuestionCounts {
		if c.QuestionCount == n {
			return nil
		}
	}
	return fmt.Errorf("%w: question count %d", ErrInvalidConfig, c.QuestionCount)
}

// QuestionItem is one multiple-choice question as presented to the user.
// DisplayedAnswers is the incorrect answers plus the correct one in an order
// fixed once at ingestion; it must never be re-shuffled afterwards or the
// selected-answer highlight would detach from option identity.
type QuestionItem struct {
	ID               int      `json:"id"`
	Prompt           string   `json:"prompt"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
	DisplayedAnswers []string `json:"displayedAnswers"`
}

// Session represents one quiz attempt by a single owner.
//
// Answers has one slot per question index; the empty string means unanswered.
// The struct is also the persisted snapshot: every mutation writes the whole
// thing to the session store, so a crash loses at most the in-flight
// operation.
type Session struct {
	ID                   int64          `json:"id"`
	Owner                string         `json:"owner"`
	Config               SessionConfig  `json:"config"`
	Questions            []QuestionItem `json:"questions"`
	Answers              []string       `json:"answers"`
	MarkedForReview      []int          `json:"markedForReview"`
	CurrentIndex         int            `json:"currentIndex"`
	TimeLimitSeconds     int            `json:"timeLimitSeconds"`
	TimeRemainingSeconds int            `json:"timeRemainingSeconds"`
	Status               SessionStatus  `json:"status"`
	StartedAt            time.Time      `json:"startedAt"`
}

// IsMarked reports whether index is in the marked-for-review set.
func (s Session) IsMarked(index int) bool {
	for _, i := range s.MarkedForReview {
		if i == index {
			return true
		}
	}
	return false
}

// AnsweredCount counts non-empty answer slots.
func (s Session) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if a != "" {
			n++
		}
	}
	return n
}

// Clone returns a deep copy, safe to hand to transports.
func (s Session) Clone() Session {
	out := s
	out.Questions = make([]QuestionItem, len(s.Questions))
	for i, q := range s.Questions {
		q.IncorrectAnswers = append([]string(nil), q.IncorrectAnswers...)
		q.DisplayedAnswers = append([]string(nil), q.DisplayedAnswers...)
		out.Questions[i] = q
	}
	out.Answers = append([]string(nil), s.Answers...)
	out.MarkedForReview = append([]int(nil), s.MarkedForReview...)
	return out
}

// EncodeSession serializes the full session snapshot for the persistent store.
func EncodeSession(s Session) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSession parses a stored snapshot. Any parse failure or invariant
// violation is reported as ErrCorruptedSession so callers can treat the blob
// as absent instead of propagating it.
func DecodeSession(blob []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(blob, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorruptedSession, err)
	}
	if err := s.checkInvariants(); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (s Session) checkInvariants() error {
	switch s.Status {
	case SessionStatusIdle, SessionStatusActive, SessionStatusFinished:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrCorruptedSession, s.Status)
	}
	if len(s.Answers) > len(s.Questions) {
		return fmt.Errorf("%w: %d answers for %d questions", ErrCorruptedSession, len(s.Answers), len(s.Questions))
	}
	if len(s.Questions) > 0 && (s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions)) {
		return fmt.Errorf("%w: cursor %d out of range", ErrCorruptedSession, s.CurrentIndex)
	}
	if s.TimeRemainingSeconds < 0 {
		return fmt.Errorf("%w: negative time remaining", ErrCorruptedSession)
	}
	for _, i := range s.MarkedForReview {
		if i < 0 || i >= len(s.Questions) {
			return fmt.Errorf("%w: marked index %d out of range", ErrCorruptedSession, i)
		}
	}
	return nil
}
