package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

// WSHandler exposes the quiz session operations over a websocket. One
// connection serves one owner; the identity rule is accept-any-nonempty.
type WSHandler struct {
	service  *app.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type startPayload struct {
	Difficulty    domain.Difficulty `json:"difficulty"`
	QuestionCount int               `json:"questionCount"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type indexPayload struct {
	Index int `json:"index"`
}

type resumePayload struct {
	Action string `json:"action"` // "continue" or "discard"
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// questionView is a QuestionItem with the correct answer withheld; it is
// what clients see while the session is ACTIVE.
type questionView struct {
	ID               int      `json:"id"`
	Prompt           string   `json:"prompt"`
	DisplayedAnswers []string `json:"displayedAnswers"`
}

type sessionView struct {
	SessionID            int64                `json:"sessionId"`
	Status               domain.SessionStatus `json:"status"`
	Difficulty           domain.Difficulty    `json:"difficulty"`
	Questions            []questionView       `json:"questions"`
	Answers              []string             `json:"answers"`
	MarkedForReview      []int                `json:"markedForReview"`
	CurrentIndex         int                  `json:"currentIndex"`
	TimeLimitSeconds     int                  `json:"timeLimitSeconds"`
	TimeRemainingSeconds int                  `json:"timeRemainingSeconds"`
}

type resumePromptView struct {
	Difficulty           domain.Difficulty `json:"difficulty"`
	TotalQuestions       int               `json:"totalQuestions"`
	CurrentIndex         int               `json:"currentIndex"`
	AnsweredCount        int               `json:"answeredCount"`
	TimeRemainingSeconds int               `json:"timeRemainingSeconds"`
}

type reviewItem struct {
	Prompt        string         `json:"prompt"`
	CorrectAnswer string         `json:"correctAnswer"`
	YourAnswer    string         `json:"yourAnswer"`
	Outcome       domain.Outcome `json:"outcome"`
}

type resultView struct {
	domain.Result
	Grade  string       `json:"grade"`
	Review []reviewItem `json:"review"`
}

type tickView struct {
	TimeRemainingSeconds int `json:"timeRemainingSeconds"`
}

type statsView struct {
	Records           []domain.ResultRecord `json:"records"`
	AveragePercentage int                   `json:"averagePercentage"`
}

// ServeWS upgrades HTTP requests to websockets and drives one owner's quiz
// session. If a dangling active session exists in the store, the client must
// resolve the continue-or-discard prompt before anything else: an active
// session in storage alongside an idle in-memory one is a state the rest of
// the system assumes cannot happen.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "missing owner", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()

	events, cancel := h.service.Subscribe(owner)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				msg, push := h.eventMessage(owner, ev)
				if !push {
					continue
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	pendingResume := false
	if found, ok := h.service.CheckForResumable(ctx, owner); ok {
		pendingResume = true
		send <- outboundMessage[any]{Type: "resumePrompt", Payload: resumePromptView{
			Difficulty:           found.Config.Difficulty,
			TotalQuestions:       len(found.Questions),
			CurrentIndex:         found.CurrentIndex,
			AnsweredCount:        found.AnsweredCount(),
			TimeRemainingSeconds: found.TimeRemainingSeconds,
		}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		if pendingResume && inbound.Type != "resume" {
			send <- errorMessage("resume_pending", "resolve the resume prompt first")
			continue
		}

		switch inbound.Type {
		case "resume":
			var payload resumePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("bad_payload", "invalid resume payload")
				continue
			}
			if !pendingResume {
				send <- errorMessage("no_session", "nothing to resume")
				continue
			}
			switch payload.Action {
			case "continue":
				found, ok := h.service.CheckForResumable(ctx, owner)
				if !ok {
					pendingResume = false
					send <- errorMessage("no_session", "stored session is gone")
					continue
				}
				if err := h.service.Resume(ctx, owner, found); err != nil {
					send <- h.errorFrom(err)
					continue
				}
				pendingResume = false
				h.sendSession(owner, send)
			case "discard":
				_ = h.service.Clear(ctx, owner)
				pendingResume = false
				send <- outboundMessage[any]{Type: "cleared", Payload: struct{}{}}
			default:
				send <- errorMessage("bad_payload", "resume action must be continue or discard")
			}

		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("bad_payload", "invalid start payload")
				continue
			}
			err := h.service.Start(ctx, owner, domain.SessionConfig{
				Difficulty:    payload.Difficulty,
				QuestionCount: payload.QuestionCount,
			})
			if err != nil {
				send <- h.errorFrom(err)
				continue
			}
			h.sendSession(owner, send)

		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("bad_payload", "invalid answer payload")
				continue
			}
			if err := h.service.SubmitAnswer(ctx, owner, payload.Answer); err != nil {
				send <- h.errorFrom(err)
				continue
			}
			h.sendSession(owner, send)

		case "goto":
			var payload indexPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("bad_payload", "invalid goto payload")
				continue
			}
			if err := h.service.GoToQuestion(ctx, owner, payload.Index); err != nil {
				send <- h.errorFrom(err)
				continue
			}
			h.sendSession(owner, send)

		case "next":
			if err := h.service.GoToNext(ctx, owner); err != nil {
				send <- h.errorFrom(err)
				continue
			}
			h.sendSession(owner, send)

		case "prev":
			if err := h.service.GoToPrevious(ctx, owner); err != nil {
				send <- h.errorFrom(err)
				continue
			}
			h.sendSession(owner, send)

		case "mark":
			var payload indexPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("bad_payload", "invalid mark payload")
				continue
			}
			if err := h.service.ToggleMarkForReview(ctx, owner, payload.Index); err != nil {
				send <- h.errorFrom(err)
				continue
			}
			h.sendSession(owner, send)

		case "finish":
			if err := h.service.Finish(ctx, owner); err != nil {
				send <- h.errorFrom(err)
				continue
			}
			h.sendResult(owner, send)

		case "state":
			h.sendSession(owner, send)

		case "stats":
			records, err := h.service.History(ctx, owner, 0)
			if err != nil {
				send <- h.errorFrom(err)
				continue
			}
			send <- outboundMessage[any]{Type: "stats", Payload: statsView{
				Records:           records,
				AveragePercentage: domain.AveragePercentage(records),
			}}

		default:
			send <- errorMessage("bad_type", "unsupported message type")
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// eventMessage turns a service event into the frame pushed to the client:
// plain ticks while running, the full result when the countdown finished the
// session on its own. A finish triggered by a client request is suppressed
// here; the request path answers with the result frame, and pushing it from
// both sides would put two result frames on the wire for one finish.
func (h *WSHandler) eventMessage(owner string, ev app.SessionEvent) (outboundMessage[any], bool) {
	if ev.Status == domain.SessionStatusFinished {
		if !ev.TimerExpired {
			return outboundMessage[any]{}, false
		}
		result, err := h.service.Result(owner)
		if err != nil {
			return tickMessage(ev), true
		}
		session, err := h.service.Snapshot(owner)
		if err != nil {
			// Cleared between the event and the lookup; a result frame
			// with an empty review would be worse than a plain tick.
			return tickMessage(ev), true
		}
		return outboundMessage[any]{Type: "result", Payload: buildResultView(session, result)}, true
	}
	return tickMessage(ev), true
}

func tickMessage(ev app.SessionEvent) outboundMessage[any] {
	return outboundMessage[any]{Type: "tick", Payload: tickView{TimeRemainingSeconds: ev.TimeRemainingSeconds}}
}

func (h *WSHandler) sendSession(owner string, send chan<- outboundMessage[any]) {
	session, err := h.service.Snapshot(owner)
	if err != nil {
		send <- h.errorFrom(err)
		return
	}
	if session.Status == domain.SessionStatusFinished {
		h.sendResult(owner, send)
		return
	}
	view := sessionView{
		SessionID:            session.ID,
		Status:               session.Status,
		Difficulty:           session.Config.Difficulty,
		Questions:            make([]questionView, len(session.Questions)),
		Answers:              session.Answers,
		MarkedForReview:      session.MarkedForReview,
		CurrentIndex:         session.CurrentIndex,
		TimeLimitSeconds:     session.TimeLimitSeconds,
		TimeRemainingSeconds: session.TimeRemainingSeconds,
	}
	for i, q := range session.Questions {
		view.Questions[i] = questionView{ID: q.ID, Prompt: q.Prompt, DisplayedAnswers: q.DisplayedAnswers}
	}
	send <- outboundMessage[any]{Type: "session", Payload: view}
}

func (h *WSHandler) sendResult(owner string, send chan<- outboundMessage[any]) {
	result, err := h.service.Result(owner)
	if err != nil {
		send <- h.errorFrom(err)
		return
	}
	session, err := h.service.Snapshot(owner)
	if err != nil {
		send <- h.errorFrom(err)
		return
	}
	send <- outboundMessage[any]{Type: "result", Payload: buildResultView(session, result)}
}

func buildResultView(session domain.Session, result domain.Result) resultView {
	view := resultView{
		Result: result,
		Grade:  result.Grade(),
		Review: make([]reviewItem, len(session.Questions)),
	}
	for i, q := range session.Questions {
		answer := ""
		if i < len(session.Answers) {
			answer = session.Answers[i]
		}
		view.Review[i] = reviewItem{
			Prompt:        q.Prompt,
			CorrectAnswer: q.CorrectAnswer,
			YourAnswer:    answer,
			Outcome:       domain.ClassifyAnswer(q, answer),
		}
	}
	return view
}

func (h *WSHandler) errorFrom(err error) outboundMessage[any] {
	code := "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		code = "invalid_config"
	case errors.Is(err, domain.ErrSupplierFailure):
		code = "supplier_failure"
	case errors.Is(err, domain.ErrNoSession):
		code = "no_session"
	case errors.Is(err, domain.ErrSessionNotActive):
		code = "not_active"
	case errors.Is(err, domain.ErrSessionNotFinished):
		code = "not_finished"
	}
	return errorMessage(code, err.Error())
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}
