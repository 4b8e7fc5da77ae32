package grant

import (
	"errors"
	"fmt"
)

var (
	// ErrGrantNotFound is returned when no grant has the requested id.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrGrantInactive is returned when revoking a grant that is already revoked or deactivated.
	ErrGrantInactive = errors.New("grant is not active")

	// ErrDuplicateGrant is returned when an active grant exists for the same user, permission and resource.
	ErrDuplicateGrant = errors.New("an active grant already exists for this user, permission and resource")
)

// ValidationError describes malformed grant or revocation input.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying sentinel, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is caused by invalid input.
func IsValidation(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}
