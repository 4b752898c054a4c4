package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
)

type wsFixture struct {
	service *app.SessionService
	store   *memory.SessionStore
	server  *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	return newWSFixtureWithTick(t, time.Hour)
}

func newWSFixtureWithTick(t *testing.T, tick time.Duration) *wsFixture {
	t.Helper()
	store := memory.NewSessionStore()
	supplier := memory.NewStaticSupplier(testQuestions())
	stats := memory.NewStatsRecorder()
	service := app.NewSessionServiceWithClock(store, supplier, stats, zerolog.Nop(), tick, time.Now)

	handler := NewWSHandler(service, zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		service.Close()
	})
	return &wsFixture{service: service, store: store, server: server}
}

func testQuestions() []domain.QuestionItem {
	return []domain.QuestionItem{
		{
			Prompt:           "What is the capital of France?",
			CorrectAnswer:    "Paris",
			IncorrectAnswers: []string{"London", "Berlin", "Madrid"},
			DisplayedAnswers: []string{"London", "Paris", "Madrid", "Berlin"},
		},
		{
			Prompt:           "Which planet is known as the Red Planet?",
			CorrectAnswer:    "Mars",
			IncorrectAnswers: []string{"Venus", "Jupiter", "Mercury"},
			DisplayedAnswers: []string{"Mars", "Jupiter", "Venus", "Mercury"},
		},
	}
}

func (f *wsFixture) dial(t *testing.T, owner string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?owner=" + owner
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func sendFrame(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(frame{Type: msgType, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readFrame returns the next non-tick frame; timer ticks are interleaved with
// request responses and tests never depend on them.
func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Type == "tick" {
			continue
		}
		return f
	}
}

func expectFrame(t *testing.T, conn *websocket.Conn, want string) frame {
	t.Helper()
	f := readFrame(t, conn)
	if f.Type != want {
		t.Fatalf("expected %q frame, got %q: %s", want, f.Type, f.Payload)
	}
	return f
}

func TestServeWSRequiresOwner(t *testing.T) {
	f := newWSFixture(t)
	resp, err := http.Get(f.server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without owner, got %d", resp.StatusCode)
	}
}

func TestFullSessionFlow(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	sendFrame(t, conn, "start", startPayload{Difficulty: domain.DifficultyEasy, QuestionCount: 5})
	raw := expectFrame(t, conn, "session")

	var session sessionView
	if err := json.Unmarshal(raw.Payload, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if session.Status != domain.SessionStatusActive {
		t.Fatalf("expected ACTIVE session, got %s", session.Status)
	}
	if len(session.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(session.Questions))
	}
	for i, q := range session.Questions {
		if len(q.DisplayedAnswers) == 0 {
			t.Fatalf("question %d has no displayed answers", i)
		}
	}
	// The wire view must never leak the correct answer field.
	if strings.Contains(string(raw.Payload), "correctAnswer") {
		t.Fatalf("session frame leaks correct answers: %s", raw.Payload)
	}

	sendFrame(t, conn, "answer", answerPayload{Answer: "Paris"})
	raw = expectFrame(t, conn, "session")
	_ = json.Unmarshal(raw.Payload, &session)
	if session.Answers[0] != "Paris" {
		t.Fatalf("answer not recorded: %+v", session.Answers)
	}

	sendFrame(t, conn, "next", struct{}{})
	raw = expectFrame(t, conn, "session")
	_ = json.Unmarshal(raw.Payload, &session)
	if session.CurrentIndex != 1 {
		t.Fatalf("expected cursor 1, got %d", session.CurrentIndex)
	}

	sendFrame(t, conn, "mark", indexPayload{Index: 1})
	raw = expectFrame(t, conn, "session")
	_ = json.Unmarshal(raw.Payload, &session)
	if len(session.MarkedForReview) != 1 || session.MarkedForReview[0] != 1 {
		t.Fatalf("mark not recorded: %+v", session.MarkedForReview)
	}

	sendFrame(t, conn, "finish", struct{}{})
	raw = expectFrame(t, conn, "result")

	var result resultView
	if err := json.Unmarshal(raw.Payload, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.CorrectAnswers != 1 || result.Unanswered != 4 {
		t.Fatalf("unexpected result: %+v", result.Result)
	}
	if result.Percentage != 20 || result.Grade != "practice" {
		t.Fatalf("unexpected grading: %d %s", result.Percentage, result.Grade)
	}
	if len(result.Review) != 5 {
		t.Fatalf("expected full review, got %d items", len(result.Review))
	}
	if result.Review[0].Outcome != domain.OutcomeCorrect || result.Review[0].CorrectAnswer != "Paris" {
		t.Fatalf("unexpected review head: %+v", result.Review[0])
	}

	sendFrame(t, conn, "stats", struct{}{})
	raw = expectFrame(t, conn, "stats")
	var stats statsView
	_ = json.Unmarshal(raw.Payload, &stats)
	if len(stats.Records) != 1 || stats.AveragePercentage != 20 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestErrorFramesCarryCodes(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	sendFrame(t, conn, "answer", answerPayload{Answer: "Paris"})
	raw := expectFrame(t, conn, "error")
	var e errorPayload
	_ = json.Unmarshal(raw.Payload, &e)
	if e.Code != "no_session" {
		t.Fatalf("expected no_session, got %s", e.Code)
	}

	sendFrame(t, conn, "start", startPayload{Difficulty: domain.DifficultyEasy, QuestionCount: 7})
	raw = expectFrame(t, conn, "error")
	_ = json.Unmarshal(raw.Payload, &e)
	if e.Code != "invalid_config" {
		t.Fatalf("expected invalid_config, got %s", e.Code)
	}

	sendFrame(t, conn, "bogus", struct{}{})
	raw = expectFrame(t, conn, "error")
	_ = json.Unmarshal(raw.Payload, &e)
	if e.Code != "bad_type" {
		t.Fatalf("expected bad_type, got %s", e.Code)
	}
}

func TestResumePromptGate(t *testing.T) {
	f := newWSFixture(t)

	// A first connection leaves a dangling active session behind.
	first := f.dial(t, "alice")
	sendFrame(t, first, "start", startPayload{Difficulty: domain.DifficultyMedium, QuestionCount: 5})
	expectFrame(t, first, "session")
	sendFrame(t, first, "answer", answerPayload{Answer: "Paris"})
	expectFrame(t, first, "session")
	first.Close()

	// Surviving a process restart means surviving with only the store.
	stats := memory.NewStatsRecorder()
	restarted := app.NewSessionServiceWithClock(f.store, memory.NewStaticSupplier(testQuestions()), stats, zerolog.Nop(), time.Hour, time.Now)
	handler := NewWSHandler(restarted, zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		restarted.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?owner=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	raw := expectFrame(t, conn, "resumePrompt")
	var prompt resumePromptView
	_ = json.Unmarshal(raw.Payload, &prompt)
	if prompt.TotalQuestions != 5 || prompt.AnsweredCount != 1 {
		t.Fatalf("unexpected prompt: %+v", prompt)
	}

	// Everything but resume is rejected until the prompt is resolved.
	sendFrame(t, conn, "start", startPayload{Difficulty: domain.DifficultyEasy, QuestionCount: 5})
	raw = expectFrame(t, conn, "error")
	var e errorPayload
	_ = json.Unmarshal(raw.Payload, &e)
	if e.Code != "resume_pending" {
		t.Fatalf("expected resume_pending, got %s", e.Code)
	}

	sendFrame(t, conn, "resume", resumePayload{Action: "continue"})
	raw = expectFrame(t, conn, "session")
	var session sessionView
	_ = json.Unmarshal(raw.Payload, &session)
	if session.Answers[0] != "Paris" {
		t.Fatalf("resumed session lost its answers: %+v", session.Answers)
	}
	if session.Difficulty != domain.DifficultyMedium {
		t.Fatalf("resumed session lost its config: %s", session.Difficulty)
	}
}

func TestResumeDiscardClearsStore(t *testing.T) {
	ctx := context.Background()
	f := newWSFixture(t)

	first := f.dial(t, "alice")
	sendFrame(t, first, "start", startPayload{Difficulty: domain.DifficultyEasy, QuestionCount: 5})
	expectFrame(t, first, "session")
	first.Close()

	stats := memory.NewStatsRecorder()
	restarted := app.NewSessionServiceWithClock(f.store, memory.NewStaticSupplier(testQuestions()), stats, zerolog.Nop(), time.Hour, time.Now)
	handler := NewWSHandler(restarted, zerolog.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		restarted.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?owner=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expectFrame(t, conn, "resumePrompt")
	sendFrame(t, conn, "resume", resumePayload{Action: "discard"})
	expectFrame(t, conn, "cleared")

	if _, err := f.store.Get(ctx, "alice"); err == nil {
		t.Fatalf("expected stored session removed after discard")
	}

	// A fresh start works right away on the same connection.
	sendFrame(t, conn, "start", startPayload{Difficulty: domain.DifficultyEasy, QuestionCount: 5})
	expectFrame(t, conn, "session")
}

func TestManualFinishEmitsSingleResultFrame(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	sendFrame(t, conn, "start", startPayload{Difficulty: domain.DifficultyEasy, QuestionCount: 5})
	expectFrame(t, conn, "session")

	// One finish, one result frame. A duplicate pushed by the finish event
	// would arrive before the stats response and fail the next expectation.
	sendFrame(t, conn, "finish", struct{}{})
	expectFrame(t, conn, "result")

	sendFrame(t, conn, "stats", struct{}{})
	expectFrame(t, conn, "stats")
}

func TestTimerExpiryPushesResultFrame(t *testing.T) {
	ctx := context.Background()
	f := newWSFixtureWithTick(t, 2*time.Millisecond)

	// Seed a nearly expired session so the countdown finishes it while the
	// client sits idle.
	questions := testQuestions()
	session := domain.Session{
		ID:                   7,
		Owner:                "alice",
		Config:               domain.SessionConfig{Difficulty: domain.DifficultyEasy, QuestionCount: 5},
		Questions:            questions,
		Answers:              make([]string, len(questions)),
		MarkedForReview:      []int{},
		TimeLimitSeconds:     300,
		TimeRemainingSeconds: 5,
		Status:               domain.SessionStatusActive,
		StartedAt:            time.Now().UTC(),
	}
	blob, err := domain.EncodeSession(session)
	if err != nil {
		t.Fatalf("encode session: %v", err)
	}
	if err := f.store.Set(ctx, "alice", blob); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	conn := f.dial(t, "alice")
	expectFrame(t, conn, "resumePrompt")
	sendFrame(t, conn, "resume", resumePayload{Action: "continue"})
	expectFrame(t, conn, "session")

	// No request in flight from here on; the result must be pushed.
	raw := expectFrame(t, conn, "result")
	var result resultView
	if err := json.Unmarshal(raw.Payload, &result); err != nil {
		t.Fatalf("unmarshal pushed result: %v", err)
	}
	if result.Unanswered != len(questions) {
		t.Fatalf("unexpected pushed result: %+v", result.Result)
	}
}

func TestEventMessageRouting(t *testing.T) {
	f := newWSFixture(t)
	handler := NewWSHandler(f.service, zerolog.Nop())

	finished := app.SessionEvent{Status: domain.SessionStatusFinished, TimeRemainingSeconds: 10}

	// A request-driven finish is not pushed; the request path owns the
	// result frame.
	if _, push := handler.eventMessage("alice", finished); push {
		t.Fatalf("request-driven finish event must be suppressed")
	}

	// A timer finish for a session that vanished in the meantime degrades
	// to a tick instead of a result with an empty review.
	finished.TimerExpired = true
	msg, push := handler.eventMessage("ghost", finished)
	if !push {
		t.Fatalf("timer finish event must be pushed")
	}
	if msg.Type != "tick" {
		t.Fatalf("expected tick fallback without a session, got %q", msg.Type)
	}
}
