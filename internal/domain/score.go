package domain

import (
	"math"
	"time"
)

// Outcome classifies a single answer slot of a finished session.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeWrong      Outcome = "wrong"
	OutcomeUnanswered Outcome = "unanswered"
)

// Result is the derived outcome of a finished session.
type Result struct {
	Difficulty       Difficulty `json:"difficulty"`
	TotalQuestions   int        `json:"totalQuestions"`
	CorrectAnswers   int        `json:"correctAnswers"`
	WrongAnswers     int        `json:"wrongAnswers"`
	Unanswered       int        `json:"unanswered"`
	Percentage       int        `json:"percentage"`
	TimeSpentSeconds int        `json:"timeSpentSeconds"`
}

// Grade bands the percentage the way the result view presents it.
func (r Result) Grade() string {
	switch {
	case r.Percentage >= 80:
		return "excellent"
	case r.Percentage >= 60:
		return "good"
	default:
		return "practice"
	}
}

// ResultRecord is the statistics row emitted once per completed attempt.
type ResultRecord struct {
	ID               string     `json:"id"`
	Difficulty       Difficulty `json:"difficulty"`
	TotalQuestions   int        `json:"totalQuestions"`
	CorrectAnswers   int        `json:"correctAnswers"`
	WrongAnswers     int        `json:"wrongAnswers"`
	Unanswered       int        `json:"unanswered"`
	Percentage       int        `json:"percentage"`
	TimeSpentSeconds int        `json:"timeSpentSeconds"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Score computes the result of a session. It is pure: scoring the same
// session twice yields identical results. An empty slot is unanswered,
// an exact string match with the question's correct answer is correct
// (prompts and answers share one decoding step at ingestion), anything
// else is wrong.
func Score(s Session) Result {
	r := Result{
		Difficulty:       s.Config.Difficulty,
		TotalQuestions:   len(s.Questions),
		TimeSpentSeconds: s.TimeLimitSeconds - s.TimeRemainingSeconds,
	}
	for i, q := range s.Questions {
		answer := ""
		if i < len(s.Answers) {
			answer = s.Answers[i]
		}
		switch ClassifyAnswer(q, answer) {
		case OutcomeCorrect:
			r.CorrectAnswers++
		case OutcomeWrong:
			r.WrongAnswers++
		default:
			r.Unanswered++
		}
	}
	if r.TotalQuestions > 0 {
		r.Percentage = int(math.Round(float64(r.CorrectAnswers) / float64(r.TotalQuestions) * 100))
	}
	return r
}

// ClassifyAnswer maps one answer slot to its outcome.
func ClassifyAnswer(q QuestionItem, answer string) Outcome {
	switch {
	case answer == "":
		return OutcomeUnanswered
	case answer == q.CorrectAnswer:
		return OutcomeCorrect
	default:
		return OutcomeWrong
	}
}

// AveragePercentage is the rounded mean over a history of records.
func AveragePercentage(records []ResultRecord) int {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, rec := range records {
		sum += rec.Percentage
	}
	return int(math.Round(float64(sum) / float64(len(records))))
}
