package domain

import "errors"

var (
	// ErrInvalidConfig is returned when a session config is missing a field
	// or holds a value outside the allowed sets.
	ErrInvalidConfig = errors.New("invalid quiz configuration")
	// ErrSupplierFailure indicates the question supplier was unreachable or
	// returned unusable data; starting is retryable.
	ErrSupplierFailure = errors.New("question supplier failure")
	// ErrNoSession is returned when an operation needs a session and the
	// owner has none.
	ErrNoSession = errors.New("quiz session not found")
	// ErrSessionNotActive is returned for mutations against a session that
	// is not in the ACTIVE state.
	ErrSessionNotActive = errors.New("quiz session is not active")
	// ErrSessionNotFinished is returned when results are requested before
	// the session reached the FINISHED state.
	ErrSessionNotFinished = errors.New("quiz session is not finished")
	// ErrCorruptedSession marks a stored snapshot that failed to decode or
	// violated session invariants; resume treats it as absence.
	ErrCorruptedSession = errors.New("stored quiz session is corrupted")
)
