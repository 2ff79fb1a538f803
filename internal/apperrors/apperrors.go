// Package apperrors is the error taxonomy shared by the core engines.
// The HTTP layer maps each kind to a status code; the engines themselves
// never retry and never swallow a failed precondition.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidArgument
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a storage error. The engines return it on first
// failure and never retry.
func Unavailable(msg string, err error) error {
	return &Error{Kind: KindUnavailable, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for errors outside the
// taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
