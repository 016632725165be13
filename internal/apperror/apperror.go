// Package apperror defines the typed failures returned by the core services.
// HTTP status codes are assigned only at the transport boundary.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpload:
		return "upload"
	default:
		return "internal"
	}
}

// Error is a failure carrying a client-safe message. Sentinel values are
// compared by identity through errors.Is; Wrap attaches an underlying cause
// without changing that identity.
type Error struct {
	Kind    Kind
	Message string
	cause   error
	base    *Error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.base != nil && e.base == t)
}

// Wrap returns a copy of e that reports cause as its underlying error.
func (e *Error) Wrap(cause error) *Error {
	base := e
	if e.base != nil {
		base = e.base
	}
	return &Error{Kind: e.Kind, Message: e.Message, cause: cause, base: base}
}

// WithMessage returns a copy of e with a different client message that still
// matches e through errors.Is.
func (e *Error) WithMessage(message string) *Error {
	cp := e.Wrap(e.cause)
	cp.Message = message
	return cp
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}
