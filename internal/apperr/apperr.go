// Package apperr defines the closed set of error kinds recognized by the
// request pipeline. Controllers return *Error values; anything else reaching
// the pipeline boundary is treated as an internal error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a recognized error.
type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthenticated
	Forbidden
	MethodNotAllowed
)

// Status returns the HTTP status associated with the kind.
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Error is a recognized application error with an HTTP-mappable kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err. Unrecognized errors map to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is a recognized *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
