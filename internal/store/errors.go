package store

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrRetired         = errors.New("paragraph retired")
	ErrInvalidScore    = errors.New("invalid score")
	ErrWriteFailure    = errors.New("store write failure")
)

// WriteError reports a persistence failure. The enclosing transaction has been
// rolled back, so previously stored state is intact.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrWriteFailure and the underlying driver error.
func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailure, e.Err}
}

func writeErr(op string, err error) error {
	return &WriteError{Op: op, Err: err}
}
