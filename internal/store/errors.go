package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ValidationError indicates bad input that was never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// StoreUnavailableError means the project database could not be opened or read.
type StoreUnavailableError struct {
	Path string
	Err  error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Path, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IncompatibleSchemaError means the database was written by a newer binary.
type IncompatibleSchemaError struct {
	Path  string
	Found int
	Want  int
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("%s: schema version %d is newer than this binary's %d", e.Path, e.Found, e.Want)
}

// LockContentionError means the write lock wasn't acquired within the wait budget.
type LockContentionError struct {
	Path string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("could not acquire write lock on %s", e.Path)
}

// asLockContention converts SQLite busy/locked errors, surfaced only after
// the connection's busy-timeout wait has elapsed, into LockContentionError
// so callers can distinguish a retryable lock conflict from a broken store.
func asLockContention(path string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return &LockContentionError{Path: path}
	}
	return err
}
