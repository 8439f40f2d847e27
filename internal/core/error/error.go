package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// ArchiveErrorMessage describes intake archive failures.
	ArchiveErrorMessage = "intake archive operation failed"
	// ArchiveNotFoundMessage describes a missing intake ticket.
	ArchiveNotFoundMessage = "intake ticket not found"
	// TelephonyErrorMessage describes failures talking to the call session.
	TelephonyErrorMessage = "telephony session unavailable"
)

var (
	// ErrExtractionFailed marks an oracle answer that could not be used.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrSessionUnavailable marks a telephony session that can no longer be reached.
	ErrSessionUnavailable = errors.New("session unavailable")
	// ErrSessionNotFound is returned when a call session is already gone.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCallLimit is returned when no more concurrent calls are accepted.
	ErrCallLimit = errors.New("maximum concurrent calls reached")
)

// Error wraps an underlying error with an HTTP status and safe message.
type Error struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the provided information.
func New(err error, status int, message string) *Error {
	return &Error{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// SessionUnavailable wraps a telephony failure so callers can match ErrSessionUnavailable.
func SessionUnavailable(err error) *Error {
	if err == nil {
		err = ErrSessionUnavailable
	} else if !errors.Is(err, ErrSessionUnavailable) {
		err = fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	return New(err, http.StatusServiceUnavailable, TelephonyErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500 when it has none.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
