package app

import (
	"context"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// countdown drives the once-per-second ticks for a single session. It is
// owned by SessionService, which cancels it on every transition out of
// ACTIVE: manual finish, timer finish, clear, wholesale resume, and
// shutdown.
type countdown struct {
	quit chan struct{}
	once sync.Once
}

// stop signals the tick goroutine to exit. Idempotent, and safe to call
// from the goroutine itself (finish during a tick).
func (c *countdown) stop() {
	c.once.Do(func() { close(c.quit) })
}

func (s *SessionService) startCountdown(owner string, sessionID int64) *countdown {
	c := &countdown{quit: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-c.quit:
				return
			case <-ticker.C:
				if !s.applyTick(owner, sessionID) {
					return
				}
			}
		}
	}()
	return c
}

// applyTick decrements the remaining time by one second, floored at zero,
// and finishes the session on reaching zero. It reports whether the
// countdown should keep ticking. A tick that finds a different session ID
// or a non-ACTIVE status does nothing: the goroutine it belongs to has
// already been superseded.
func (s *SessionService) applyTick(owner string, sessionID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[owner]
	if !ok || st.session.ID != sessionID || st.session.Status != domain.SessionStatusActive {
		return false
	}

	if st.session.TimeRemainingSeconds > 0 {
		st.session.TimeRemainingSeconds--
	}
	ctx := context.Background()
	s.persistLocked(ctx, st)

	if st.session.TimeRemainingSeconds == 0 {
		// finishLocked is idempotent, so a manual finish landing in the
		// same instant stays a no-op on whichever side loses the race.
		_ = s.finishLocked(ctx, owner, true)
		return false
	}

	s.broadcastLocked(owner, SessionEvent{
		SessionID:            st.session.ID,
		Status:               st.session.Status,
		TimeRemainingSeconds: st.session.TimeRemainingSeconds,
	})
	return true
}
