package domain

import (
	"errors"
	"fmt"
)

// Kind classifies client-facing failures. The HTTP layer maps each kind to
// a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a failure safe to show to the caller verbatim.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string { return e.Detail }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of the detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Detail == "" && t.Kind == e.Kind
}

// Kind-only sentinels for errors.Is.
var (
	ErrBadRequest   = &Error{Kind: KindBadRequest}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrConflict     = &Error{Kind: KindConflict}
)

func BadRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Detail: fmt.Sprintf(format, args...)}
}

func NotFound(detail string) error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

func Unauthorized(detail string) error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

func Forbidden(detail string) error {
	return &Error{Kind: KindForbidden, Detail: detail}
}

func Conflict(detail string) error {
	return &Error{Kind: KindConflict, Detail: detail}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
