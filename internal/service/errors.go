package service

import (
	"errors"

	"wedding-sync-server/internal/repository"
)

// ValidationError marks a submission the server will never retry:
// unrecognized entity/type pairs and malformed payloads.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsTerminal reports whether an apply error must not be retried.
// Everything else is treated as transient infrastructure failure.
func IsTerminal(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, repository.ErrNotFound)
}
