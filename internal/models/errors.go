package models

import "errors"

// Error kinds shared by services and mapped to HTTP status codes by handlers.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid state")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error pairs an error kind with a message for API clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// NewError returns an error of the given kind that reads as message.
func NewError(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}
