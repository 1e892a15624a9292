package broker

import (
	"fmt"
	"net/http"
)

// Kind classifies a request-scoped failure. Every kind aborts only the
// current operation; none is fatal to the process.
type Kind int

const (
	// KindValidation covers malformed or missing input.
	KindValidation Kind = iota
	// KindAuth covers bad credentials and duplicate usernames.
	KindAuth
	// KindBusinessRule covers insufficient funds and insufficient shares.
	KindBusinessRule
	// KindNotFound covers a user vanishing mid-request, which indicates a
	// consistency bug rather than ordinary user error.
	KindNotFound
	// KindExternalService covers quote lookup failures. They are surfaced
	// to the caller as an invalid symbol.
	KindExternalService
)

// Error is an operation failure carrying the reason surfaced to the caller.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Status maps the error kind to an HTTP-like severity code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func validationErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func authErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuth, Reason: fmt.Sprintf(format, args...)}
}

func businessErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBusinessRule, Reason: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

func externalErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExternalService, Reason: fmt.Sprintf(format, args...)}
}
