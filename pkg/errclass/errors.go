package errclass

import (
	"errors"
	"fmt"
)

// Status is the stable numeric code surfaced across the C boundary.
// Values never change once published; new classes take new numbers.
type Status int

const (
	StatusOK             Status = 0
	StatusInitialization Status = 1
	StatusSession        Status = 2
	StatusSync           Status = 3
	StatusConfigInvalid  Status = 4
	StatusInternal       Status = 5
)

// BridgeError is a stable, machine-readable error class.
type BridgeError struct {
	Code    string
	Message string
	status  Status
	cause   error
}

func (e *BridgeError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	return ok && e.Code == t.Code
}

// Unwrap exposes the underlying library error, if any.
func (e *BridgeError) Unwrap() error {
	return e.cause
}

// Status returns the numeric status for this class.
func (e *BridgeError) Status() Status {
	return e.status
}

// WithMessage returns a new BridgeError with the same Code but a specific message.
func (e *BridgeError) WithMessage(msg string) *BridgeError {
	return &BridgeError{Code: e.Code, Message: msg, status: e.status, cause: e.cause}
}

// WithMessagef returns a new BridgeError with a formatted message.
func (e *BridgeError) WithMessagef(format string, args ...any) *BridgeError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Wrap returns a new BridgeError of this class carrying err as its cause.
// The message is err's text unless msg is non-empty, in which case it is
// "msg: err".
func (e *BridgeError) Wrap(err error, msg string) *BridgeError {
	if err == nil {
		return e.WithMessage(msg)
	}
	text := err.Error()
	if msg != "" {
		text = msg + ": " + text
	}
	return &BridgeError{Code: e.Code, Message: text, status: e.status, cause: err}
}

// StatusOf maps any error to a Status. nil is StatusOK; errors that carry
// no class are StatusInternal.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var be *BridgeError
	if errors.As(err, &be) {
		return be.status
	}
	return StatusInternal
}

// All stable error classes.
var (
	ErrInitialization = &BridgeError{Code: "E_INITIALIZATION", status: StatusInitialization}
	ErrSession        = &BridgeError{Code: "E_SESSION", status: StatusSession}
	ErrSync           = &BridgeError{Code: "E_SYNC", status: StatusSync}
	ErrConfigInvalid  = &BridgeError{Code: "E_CONFIG_INVALID", status: StatusConfigInvalid}
	ErrInternal       = &BridgeError{Code: "E_INTERNAL", status: StatusInternal}
)

// Classes lists every class in status order.
func Classes() []*BridgeError {
	return []*BridgeError{ErrInitialization, ErrSession, ErrSync, ErrConfigInvalid, ErrInternal}
}
