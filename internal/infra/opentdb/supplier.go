package opentdb

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// Supplier fetches multiple-choice questions from the Open Trivia Database
// (or any server speaking its api.php protocol).
//
// Prompts and answers arrive HTML-entity encoded; both are decoded here, at
// ingestion, so stored questions and submitted answers always compare under
// the same rule. The displayed-answer order is shuffled exactly once per
// question and then fixed for the session's lifetime.
type Supplier struct {
	baseURL string
	client  *http.Client

	mu  sync.Mutex // rnd is not safe for concurrent use
	rnd *rand.Rand
}

func NewSupplier(baseURL string, timeout time.Duration) *Supplier {
	return newSupplier(baseURL, timeout, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSupplierWithRand is test-only for deterministic shuffles.
func NewSupplierWithRand(baseURL string, timeout time.Duration, rnd *rand.Rand) *Supplier {
	return newSupplier(baseURL, timeout, rnd)
}

func newSupplier(baseURL string, timeout time.Duration, rnd *rand.Rand) *Supplier {
	return &Supplier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		rnd:     rnd,
	}
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []apiQuestion `json:"results"`
}

type apiQuestion struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

func (s *Supplier) FetchQuestions(ctx context.Context, count int, difficulty domain.Difficulty) ([]domain.QuestionItem, error) {
	endpoint := fmt.Sprintf("%s/api.php?amount=%d&difficulty=%s&type=multiple",
		s.baseURL, count, url.QueryEscape(string(difficulty)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build trivia request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch questions: unexpected status %d", resp.StatusCode)
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode trivia response: %w", err)
	}
	if payload.ResponseCode != 0 {
		return nil, fmt.Errorf("trivia api response code %d", payload.ResponseCode)
	}
	if len(payload.Results) == 0 {
		return nil, fmt.Errorf("trivia api returned no questions")
	}

	items := make([]domain.QuestionItem, 0, len(payload.Results))
	for i, q := range payload.Results {
		item := domain.QuestionItem{
			ID:            i + 1,
			Prompt:        html.UnescapeString(q.Question),
			CorrectAnswer: html.UnescapeString(q.CorrectAnswer),
		}
		for _, a := range q.IncorrectAnswers {
			item.IncorrectAnswers = append(item.IncorrectAnswers, html.UnescapeString(a))
		}
		item.DisplayedAnswers = s.shuffleAnswers(item)
		items = append(items, item)
	}
	return items, nil
}

func (s *Supplier) shuffleAnswers(q domain.QuestionItem) []string {
	all := append(append(make([]string, 0, len(q.IncorrectAnswers)+1), q.IncorrectAnswers...), q.CorrectAnswer)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all
}
