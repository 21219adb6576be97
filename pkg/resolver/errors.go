package resolver

import (
	"errors"
	"net/http"
)

// ErrorCode categorizes resolution failures.
type ErrorCode int

const (
	// CodeAddressing: zero, several or malformed identifying parameters
	CodeAddressing ErrorCode = iota + 1

	// CodeNotFound: well-formed id, no matching entity
	CodeNotFound

	// CodeLookup: the repository failed while looking up the entity
	CodeLookup
)

func (c ErrorCode) String() string {
	switch c {
	case CodeAddressing:
		return "addressing"
	case CodeNotFound:
		return "not found"
	case CodeLookup:
		return "lookup"
	default:
		return "unknown"
	}
}

// Error is a resolution failure. Every code is reported to clients as
// 404 so responses do not reveal which part of an address was wrong.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

var (
	ErrAddressing = &Error{Code: CodeAddressing, Message: "invalid address"}
	ErrNotFound   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrLookup     = &Error{Code: CodeLookup, Message: "lookup failed"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// StatusCode is the HTTP status for the failure.
func (e *Error) StatusCode() int {
	return http.StatusNotFound
}

func addressingError(msg string) error {
	return &Error{Code: CodeAddressing, Message: msg}
}

func notFoundError(msg string) error {
	return &Error{Code: CodeNotFound, Message: msg}
}
