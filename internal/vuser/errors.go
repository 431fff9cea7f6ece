package vuser

import (
	"errors"
)

var (
	// ErrUnrecoverable stops the user when wrapped by a behavior error
	ErrUnrecoverable = errors.New("unrecoverable user error")

	// ErrInvalidBaseURL is returned when the session base URL is malformed
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrInvalidRequest is returned when a request cannot be built from its path or method
	ErrInvalidRequest = errors.New("invalid request")
)

// IsUnrecoverable reports whether err should stop the user
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrUnrecoverable) || errors.Is(err, ErrInvalidBaseURL)
}

// Unrecoverable wraps err so that it stops the user
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &unrecoverableError{err: err}
}

type unrecoverableError struct {
	err error
}

func (e *unrecoverableError) Error() string {
	return e.err.Error()
}

func (e *unrecoverableError) Unwrap() []error {
	return []error{e.err, ErrUnrecoverable}
}
