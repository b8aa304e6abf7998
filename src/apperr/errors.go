// Package apperr defines the error kinds shared by the services, the stores and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Sentinels, one per kind. Every *Error matches the sentinel of its kind with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("unauthorized")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrUpstream   = errors.New("upstream provider failed")
	ErrInternal   = errors.New("internal error")
)

// Error is an application error carrying a kind, a user-facing message and optional details.
type Error struct {
	Err     error
	Details map[string]any
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match any *Error of KindNotFound.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

// WithDetails returns a copy of e with the given details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func sentinel(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuth:
		return ErrAuth
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindUpstream:
		return ErrUpstream
	default:
		return ErrInternal
	}
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func Auth(format string, args ...any) *Error       { return newf(KindAuth, format, args...) }
func Forbidden(format string, args ...any) *Error  { return newf(KindForbidden, format, args...) }
func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error   { return newf(KindConflict, format, args...) }

// Upstream wraps a failure of the bank-data provider.
func Upstream(err error, format string, args ...any) *Error {
	e := newf(KindUpstream, format, args...)
	e.Err = err
	return e
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	e := newf(KindInternal, format, args...)
	e.Err = err
	return e
}

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for _, k := range []Kind{KindValidation, KindAuth, KindForbidden, KindNotFound, KindConflict, KindUpstream} {
		if errors.Is(err, sentinel(k)) {
			return k
		}
	}
	return KindInternal
}

// HTTPStatus maps err to a response status. Forbidden is reported as 404 so
// callers cannot tell a foreign account from a missing one.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden, KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that is safe to put in a response body.
func PublicMessage(err error) string {
	kind := KindOf(err)
	switch kind {
	case KindInternal:
		return "internal server error"
	case KindForbidden:
		return "not found"
	case KindUpstream:
		return "bank data provider error"
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return sentinel(kind).Error()
}

// PublicDetails returns details attached to a user-facing error, if any.
func PublicDetails(err error) map[string]any {
	switch KindOf(err) {
	case KindInternal, KindForbidden, KindUpstream:
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}
