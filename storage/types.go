package storage

import (
	"errors"
	"fmt"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err is a storage error of type t.
func IsType(err error, t ErrorType) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == t
}

// IsNotFound reports whether err is a storage not-found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// NotFound builds a not-found error for backends.
func NotFound(what, id string) error {
	return &Error{Type: ErrNotFound, Message: fmt.Sprintf("%s %q not found", what, id)}
}

// InvalidInput builds an invalid-input error for backends.
func InvalidInput(message string, err error) error {
	return &Error{Type: ErrInvalidInput, Message: message, Err: err}
}

// AlreadyExists builds an already-exists error for backends.
func AlreadyExists(what, id string) error {
	return &Error{Type: ErrAlreadyExists, Message: fmt.Sprintf("%s %q already exists", what, id)}
}
