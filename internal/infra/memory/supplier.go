package memory

import (
	"context"
	"fmt"

	"trivia-quiz-service/internal/domain"
)

// StaticSupplier serves questions from a canned set (useful for tests and
// demos without network access). It cycles through the set when asked for
// more questions than it holds, re-numbering the copies.
type StaticSupplier struct {
	questions []domain.QuestionItem
}

func NewStaticSupplier(questions []domain.QuestionItem) *StaticSupplier {
	return &StaticSupplier{questions: questions}
}

func (s *StaticSupplier) FetchQuestions(_ context.Context, count int, _ domain.Difficulty) ([]domain.QuestionItem, error) {
	if len(s.questions) == 0 {
		return nil, fmt.Errorf("static supplier has no questions")
	}
	items := make([]domain.QuestionItem, 0, count)
	for i := 0; i < count; i++ {
		q := s.questions[i%len(s.questions)]
		q.ID = i + 1
		q.IncorrectAnswers = append([]string(nil), q.IncorrectAnswers...)
		q.DisplayedAnswers = append([]string(nil), q.DisplayedAnswers...)
		items = append(items, q)
	}
	return items, nil
}
