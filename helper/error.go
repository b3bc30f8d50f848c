package helper

import "fmt"

// Error wraps an underlying error with the operation it happened in
type Error struct {
	Op  string
	Err error
}

// NewError creates a wrapped error for the given operation
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Err
}
