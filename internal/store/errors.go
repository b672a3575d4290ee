package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a cache miss. It is normal control flow for callers,
	// not a failure: probe, compute, put.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned by Put when the hash already maps to a different
	// result payload. The stored entry stays authoritative.
	ErrConflict = errors.New("conflicting result for content hash")

	// ErrDuplicateSession is returned when a session id is appended twice.
	ErrDuplicateSession = errors.New("session id already recorded")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a failure of the underlying persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
