package service

import "errors"

// Sentinel kinds for workflow errors. Every operation failure wraps exactly
// one of these; callers branch with errors.Is. All four are terminal for the
// triggering request; nothing is retried by this core.
var (
	// ErrUnauthorized means the actor does not currently hold the required
	// role. Always checked against the live roster, never a cached claim.
	ErrUnauthorized = errors.New("actor lacks required role")

	// ErrValidation means malformed input: empty item list, score above its
	// maximum, empty decision batch, unknown outcome.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound means a referenced evaluation, decision or roster entry
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition means the workflow is not far enough along, e.g.
	// validating a session before every formation is decided.
	ErrPrecondition = errors.New("precondition not met")
)

// Kind maps an error to a short label used for metrics and API error codes.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPrecondition):
		return "precondition"
	default:
		return "internal"
	}
}
