package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrReadAfterWrite is returned when a transaction body reads after it has written.
	ErrReadAfterWrite = errors.New("repositories: transaction reads must precede writes")
	// ErrInvalidDocument marks stored documents that do not match their schema.
	ErrInvalidDocument = errors.New("repositories: invalid document")
)

// StoreErrorCode enumerates failure reasons for store operations.
type StoreErrorCode string

const (
	StoreErrorNotFound    StoreErrorCode = "not_found"
	StoreErrorConflict    StoreErrorCode = "conflict"
	StoreErrorUnavailable StoreErrorCode = "unavailable"
)

// StoreError is a RepositoryError raised by stores that are not backed by a remote database.
type StoreError struct {
	Op   string
	Path string
	Code StoreErrorCode
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// NewStoreError constructs a typed store error.
func NewStoreError(op, path string, code StoreErrorCode, err error) *StoreError {
	return &StoreError{Op: op, Path: path, Code: code, Err: err}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Code == StoreErrorNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Code == StoreErrorConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }

// IsNotFound reports whether err is a RepositoryError classified as not found.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
