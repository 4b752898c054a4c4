package domain_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"trivia-quiz-service/internal/domain"
)

func TestConfigValidation(t *testing.T) {
	valid := domain.SessionConfig{Difficulty: domain.DifficultyEasy, QuestionCount: 10}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	invalid := []domain.SessionConfig{
		{},
		{Difficulty: domain.DifficultyEasy},
		{QuestionCount: 10},
		{Difficulty: "extreme", QuestionCount: 10},
		{Difficulty: domain.DifficultyHard, QuestionCount: 7},
	}
	for _, c := range invalid {
		if err := c.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Fatalf("config %+v: expected ErrInvalidConfig, got %v", c, err)
		}
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := domain.Session{
		ID:    1717233600000,
		Owner: "alice",
		Config: domain.SessionConfig{
			Difficulty:    domain.DifficultyEasy,
			QuestionCount: 5,
		},
		Questions: []domain.QuestionItem{
			{
				ID:               1,
				Prompt:           "What is 2 + 2?",
				CorrectAnswer:    "4",
				IncorrectAnswers: []string{"3", "5", "22"},
				DisplayedAnswers: []string{"5", "4", "22", "3"},
			},
		},
		Answers:              []string{"4"},
		MarkedForReview:      []int{0},
		CurrentIndex:         0,
		TimeLimitSeconds:     300,
		TimeRemainingSeconds: 120,
		Status:               domain.SessionStatusActive,
		StartedAt:            time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	blob, err := domain.EncodeSession(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := domain.DecodeSession(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(s, decoded) {
		t.Fatalf("round trip mismatch:\n%+v\nvs\n%+v", s, decoded)
	}
}

func TestDecodeRejectsCorruptedBlobs(t *testing.T) {
	question := domain.QuestionItem{ID: 1, Prompt: "p", CorrectAnswer: "a", DisplayedAnswers: []string{"a", "b"}}
	base := domain.Session{
		Status:    domain.SessionStatusActive,
		Questions: []domain.QuestionItem{question},
		Answers:   []string{""},
	}

	badCursor := base
	badCursor.CurrentIndex = 5
	badStatus := base
	badStatus.Status = "PAUSED"
	badAnswers := base
	badAnswers.Answers = []string{"a", "b", "c"}
	badTime := base
	badTime.TimeRemainingSeconds = -1
	badMark := base
	badMark.MarkedForReview = []int{9}

	for name, s := range map[string]domain.Session{
		"cursor":  badCursor,
		"status":  badStatus,
		"answers": badAnswers,
		"time":    badTime,
		"mark":    badMark,
	} {
		blob, err := domain.EncodeSession(s)
		if err != nil {
			t.Fatalf("%s: encode: %v", name, err)
		}
		if _, err := domain.DecodeSession(blob); !errors.Is(err, domain.ErrCorruptedSession) {
			t.Fatalf("%s: expected ErrCorruptedSession, got %v", name, err)
		}
	}

	if _, err := domain.DecodeSession([]byte("{not json")); !errors.Is(err, domain.ErrCorruptedSession) {
		t.Fatalf("expected ErrCorruptedSession for malformed json, got %v", err)
	}
}

func TestToggleHelpers(t *testing.T) {
	s := domain.Session{
		Questions:       make([]domain.QuestionItem, 3),
		Answers:         []string{"a", "", "c"},
		MarkedForReview: []int{2},
	}
	if s.AnsweredCount() != 2 {
		t.Fatalf("expected 2 answered, got %d", s.AnsweredCount())
	}
	if !s.IsMarked(2) || s.IsMarked(1) {
		t.Fatalf("unexpected mark membership")
	}
}
