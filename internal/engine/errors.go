package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Submit after the engine has been stopped.
var ErrStopped = errors.New("engine stopped")

// RejectedError reports an intent dropped before any optimistic mutation
// or gateway call. Rejections are expected in normal operation and never
// fatal.
type RejectedError struct {
	// Code identifies the rejection category.
	Code RejectCode

	// Intent is the kind of the rejected intent.
	Intent IntentKind

	// ID identifies the addressed post or comment, if any.
	ID string

	// Err is the underlying cause, if any.
	Err error
}

// RejectCode categorizes rejected intents.
type RejectCode string

const (
	// ErrCodeInvalidBody indicates an empty or over-long body.
	ErrCodeInvalidBody RejectCode = "INVALID_BODY"

	// ErrCodeNoCity indicates an intent that needs a loaded city.
	ErrCodeNoCity RejectCode = "NO_CITY"

	// ErrCodeUnknownEntity indicates a post or comment not in view.
	ErrCodeUnknownEntity RejectCode = "UNKNOWN_ENTITY"

	// ErrCodePending indicates an entity still awaiting confirmation.
	ErrCodePending RejectCode = "PENDING"

	// ErrCodeInFlight indicates a conflicting call already in flight.
	ErrCodeInFlight RejectCode = "IN_FLIGHT"

	// ErrCodeInvalidIntent indicates malformed intent arguments.
	ErrCodeInvalidIntent RejectCode = "INVALID_INTENT"
)

// Error implements the error interface.
func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s rejected: %s", e.Intent, e.Code)
	if e.ID != "" {
		msg += fmt.Sprintf(" (id=%s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is a RejectedError.
// Uses errors.As to handle wrapped errors.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// RejectCodeOf returns the rejection code of err, or "" if err is not a
// RejectedError.
func RejectCodeOf(err error) RejectCode {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func reject(kind IntentKind, code RejectCode, id string, err error) *RejectedError {
	return &RejectedError{Code: code, Intent: kind, ID: id, Err: err}
}
