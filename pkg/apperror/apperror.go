// Package apperror defines the error kind taxonomy shared by every
// tenant-scoped component: provider client, webhook ingester, flow
// interpreter, broadcast dispatcher, and the internal REST API.
package apperror

import "net/http"

// Kind classifies an error for both logging and HTTP status mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindAuth         Kind = "auth"
	KindNotFound     Kind = "not-found"
	KindConflict     Kind = "conflict"
	KindTenantClosed Kind = "tenant-closed"
	KindProvider     Kind = "provider"
	KindTransient    Kind = "transient"
	KindInternal     Kind = "internal"
)

// GenericError is the interface ui/rest/middleware.Recovery expects: any
// error carrying its own HTTP status and stable code.
type GenericError interface {
	error
	ErrCode() string
	StatusCode() int
}

// Error is the concrete error type produced by every core component.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) ErrCode() string {
	switch e.Kind {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindAuth:
		return "AUTH_ERROR"
	case KindNotFound:
		return "NOT_FOUND_ERROR"
	case KindConflict:
		return "CONFLICT_ERROR"
	case KindTenantClosed:
		return "TENANT_CLOSED_ERROR"
	case KindProvider:
		return "PROVIDER_ERROR"
	case KindTransient:
		return "TRANSIENT_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusBadRequest
	case KindTenantClosed:
		return http.StatusForbidden
	case KindProvider:
		return http.StatusInternalServerError
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func Auth(message string) *Error         { return New(KindAuth, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func TenantClosed(message string) *Error { return New(KindTenantClosed, message) }

func Provider(message string, cause error) *Error {
	return Wrap(KindProvider, message, cause)
}

func Transient(message string, cause error) *Error {
	return Wrap(KindTransient, message, cause)
}

func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// does not carry one.
func KindOf(err error) Kind {
	var ae *Error
	if as(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
