package broker

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindTransient   Kind = "transient"
	KindRateLimited Kind = "rate_limited"
	KindValidation  Kind = "validation"
	KindRejected    Kind = "rejected"
)

// Error classifies a failed broker call so the engine can pick a recovery.
type Error struct {
	Kind   Kind
	Status int
	Op     string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("broker %s: %s", e.Op, e.Kind)
	if e.Status > 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Op: op, Err: err}
}

func kindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func IsTransient(err error) bool   { return kindOf(err) == KindTransient }
func IsRateLimited(err error) bool { return kindOf(err) == KindRateLimited }
func IsValidation(err error) bool  { return kindOf(err) == KindValidation }

// classify maps an HTTP status onto the taxonomy.
func classify(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 502 || status == 503 || status == 504:
		return KindTransient
	default:
		return KindRejected
	}
}
