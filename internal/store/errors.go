package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no document or row exists for the given identity.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUser is returned when a username is already taken.
	ErrDuplicateUser = errors.New("username already exists")
	// ErrAuthFailed covers unknown usernames and wrong passwords alike.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNotArray is returned when an append targets a value that is not an array.
	ErrNotArray = errors.New("value is not an array")
)

// StorageError wraps a failure of the underlying engine.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MigrationError reports the schema step that failed.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
