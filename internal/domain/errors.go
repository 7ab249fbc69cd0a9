package domain

import (
	"errors"
	"fmt"
)

// ErrAuthExpired reports that the remote API rejected the cached token.
var ErrAuthExpired = errors.New("auth token expired")

// ErrEmptyActiveSet is returned when the remote active-id listing came back empty.
// Reconciling against an empty set would trash every local record.
var ErrEmptyActiveSet = errors.New("remote active id set is empty")

// APIError is an upstream non-2xx response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (code %d): %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Code == 401 {
		return ErrAuthExpired
	}
	return nil
}

// TransportError is a network failure or timeout talking to the remote API.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TranslationError is a remote record that could not be mapped.
type TranslationError struct {
	UUID string
	Err  error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate listing %s: %v", e.UUID, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// PersistenceError is a Content Store failure for one record.
type PersistenceError struct {
	UUID     string
	RecordID int64
	Op       string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist listing %s (record %d): %s: %v", e.UUID, e.RecordID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError is fatal for a run: retrying cannot help.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

// ResumableError wraps a unit failure with the cursor the retry must start from.
type ResumableError struct {
	Cursor Cursor
	Err    error
}

func (e *ResumableError) Error() string {
	return fmt.Sprintf("%s page %d: %v", e.Cursor.Mode, e.Cursor.Page, e.Err)
}

func (e *ResumableError) Unwrap() error { return e.Err }

// IsFatal reports whether a unit should be dropped instead of retried.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
