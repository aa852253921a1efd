package model

import (
	"errors"
	"time"

	"github.com/jvs-project/syncbridge/pkg/errclass"
)

// Outcome is the result of one synchronization call. The zero value is not
// meaningful; build one with Succeeded or Failed.
type Outcome struct {
	CallID   string        `json:"call_id"`
	Step     Step          `json:"step,omitempty"`
	Code     string        `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`

	err *errclass.BridgeError
}

// Succeeded returns a successful outcome.
func Succeeded(callID string, d time.Duration) Outcome {
	return Outcome{CallID: callID, Duration: d}
}

// Failed returns a failure attributed to step. err is classified with
// fallback when it does not already carry a class.
func Failed(callID string, step Step, err error, fallback *errclass.BridgeError, d time.Duration) Outcome {
	var be *errclass.BridgeError
	if !errors.As(err, &be) {
		be = fallback.Wrap(err, "")
	}
	msg := be.Message
	if msg == "" {
		msg = be.Code
	}
	return Outcome{
		CallID:   callID,
		Step:     step,
		Code:     be.Code,
		Message:  string(step) + ": " + msg,
		Duration: d,
		err:      be,
	}
}

// OK reports whether every step succeeded.
func (o Outcome) OK() bool {
	return o.err == nil
}

// Err returns the classified failure, or nil on success.
func (o Outcome) Err() error {
	if o.err == nil {
		return nil
	}
	return o.err
}

// Status returns the stable numeric status for the outcome.
func (o Outcome) Status() errclass.Status {
	if o.err == nil {
		return errclass.StatusOK
	}
	return o.err.Status()
}

// Result is "success" or "failure", used as a metrics label.
func (o Outcome) Result() string {
	if o.OK() {
		return "success"
	}
	return "failure"
}
