package repository

import (
	"errors"
	"fmt"
)

// Error is a domain error returned by repository implementations.
//
// Business conditions (missing entity, bad argument) are reported with a
// Code so callers can branch with errors.Is against the sentinel values
// below. Infrastructure failures (disk, database) are returned as plain
// wrapped errors.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Entity names the kind of record involved, e.g. "asset version"
	Entity string

	// ID is the identifier that was looked up, when applicable
	ID int64
}

// ErrorCode represents the category of a repository error.
type ErrorCode int

const (
	// CodeNotFound indicates the requested record does not exist
	CodeNotFound ErrorCode = iota + 1

	// CodeInvalidArgument indicates a malformed id or missing field
	CodeInvalidArgument

	// CodeAlreadyExists indicates a uniqueness constraint was violated
	CodeAlreadyExists
)

var (
	// ErrNotFound matches any *Error with CodeNotFound via errors.Is.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "not found"}

	// ErrInvalidArgument matches any *Error with CodeInvalidArgument.
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}

	// ErrAlreadyExists matches any *Error with CodeAlreadyExists.
	ErrAlreadyExists = &Error{Code: CodeAlreadyExists, Message: "already exists"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Entity != "" && e.ID != 0 {
		return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return e.Entity + ": " + e.Message
	}
	return e.Message
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NotFound builds a CodeNotFound error for the given entity and id.
func NotFound(entity string, id int64) error {
	return &Error{Code: CodeNotFound, Message: "not found", Entity: entity, ID: id}
}

// InvalidArgument builds a CodeInvalidArgument error.
func InvalidArgument(entity, message string) error {
	return &Error{Code: CodeInvalidArgument, Message: message, Entity: entity}
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Entity names used in error values.
const (
	EntitySystemObject        = "system object"
	EntitySystemObjectVersion = "system object version"
	EntityAsset               = "asset"
	EntityAssetVersion        = "asset version"
	EntityWorkflow            = "workflow"
	EntityWorkflowSet         = "workflow set"
	EntityWorkflowReport      = "workflow report"
	EntityJobRun              = "job run"
)
