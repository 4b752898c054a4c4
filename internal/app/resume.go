package app

import (
	"context"
	"errors"

	"trivia-quiz-service/internal/domain"
)

// CheckForResumable looks for a dangling active session left in the store by
// a previous process. Anything unreadable counts as no session: resume fails
// open to a fresh start and never surfaces an error to the caller.
func (s *SessionService) CheckForResumable(ctx context.Context, owner string) (domain.Session, bool) {
	blob, err := s.store.Get(ctx, owner)
	if err != nil {
		if !errors.Is(err, domain.ErrNoSession) {
			s.log.Warn().Err(err).Str("owner", owner).Msg("read stored session")
		}
		return domain.Session{}, false
	}
	session, err := domain.DecodeSession(blob)
	if err != nil {
		s.log.Warn().Err(err).Str("owner", owner).Msg("discarding unreadable stored session")
		return domain.Session{}, false
	}
	if session.Status != domain.SessionStatusActive || len(session.Questions) == 0 {
		return domain.Session{}, false
	}
	return session, true
}

// Resume replaces the owner's in-memory session wholesale with a snapshot
// produced by CheckForResumable and restarts its countdown from the
// persisted remaining time. The snapshot is trusted to satisfy invariants;
// validation is CheckForResumable's job.
func (s *SessionService) Resume(ctx context.Context, owner string, session domain.Session) error {
	session.Owner = owner
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installLocked(ctx, owner, session)
	s.log.Info().Str("owner", owner).Int64("session", session.ID).
		Int("remaining", session.TimeRemainingSeconds).Msg("quiz resumed")
	return nil
}
