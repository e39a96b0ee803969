// Package apperr defines the error kinds surfaced by the access-control core.
package apperr

import (
	"errors"
)

// Kind classifies a rejection.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Default messages.
const (
	MsgUnauthenticated = "Unauthenticated."
	MsgUnauthorized    = "Unauthorized."
	MsgMustSelectOrg   = "Organization managers must select at least one organization."
)

// Error is a classified error with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and message, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalid         = &Error{Kind: KindInvalid}
	ErrMustSelectOrg   = &Error{Kind: KindForbidden, Message: MsgMustSelectOrg}
)

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: MsgUnauthenticated}
}

// Forbidden returns a forbidden error; an empty reason uses the generic message.
func Forbidden(reason string) *Error {
	if reason == "" {
		reason = MsgUnauthorized
	}
	return &Error{Kind: KindForbidden, Message: reason}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Invalid(message string) *Error {
	return &Error{Kind: KindInvalid, Message: message}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the message of the first *Error in the chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
