package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidService means the referenced service is unknown or inactive.
	ErrInvalidService = errors.New("invalid or inactive service")

	// ErrNotFound means the token or service does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable is a transient storage failure; callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSequenceExhausted means a scope ran out of representable token
	// numbers. Fatal for that scope; requires operator intervention.
	ErrSequenceExhausted = errors.New("token sequence exhausted")
)

// IllegalTransitionError reports a status change the lifecycle does not
// permit. It always names both states so callers can see exactly what was
// rejected.
type IllegalTransitionError struct {
	From TokenStatus
	To   TokenStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %q to %q", e.From, e.To)
}
