package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the fact subsystem.
type Kind string

// Failure kinds understood by callers. Every error leaving the Service
// carries exactly one of them.
const (
	KindNotFound        Kind = "not_found"
	KindInvalidArgument Kind = "invalid_argument"
	KindForbidden       Kind = "forbidden"
	KindUnavailable     Kind = "unavailable"
)

// Error is the typed failure returned by stores and the Service.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "replace_fact".
	Op string
	// Code is the state code involved, when there is one.
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work
// with errors.Is regardless of message or operation.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Code == "" && t.Msg == ""
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
)

// NotFound builds a not-found failure for the given state code.
func NotFound(op, code, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Code: code, Msg: msg}
}

// InvalidArgument builds an invalid-argument failure.
func InvalidArgument(op, code, msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Op: op, Code: code, Msg: msg}
}

// Forbidden builds a policy rejection for the given state code.
func Forbidden(op, code, msg string) *Error {
	return &Error{Kind: KindForbidden, Op: op, Code: code, Msg: msg}
}

// Unavailable wraps a backing store failure.
func Unavailable(op, code string, err error) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Code: code, Msg: "fact store unavailable", Err: err}
}

// KindOf reports the kind of err. Errors that carry no kind are reported as
// unavailable since they can only originate from the backing store.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnavailable
}
