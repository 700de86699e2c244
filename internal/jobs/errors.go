package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized is returned when the requester does not own the job.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidRequest is returned for caller input that can never succeed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedMessage marks queue payloads that are dropped without retry.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrObjectNotFound is returned by object stores for a missing key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrPrimaryStore classifies failures that must be retried: relational,
	// status, cache, object store and queue errors.
	ErrPrimaryStore = errors.New("primary store failure")
	// ErrSecondaryStore classifies search index failures, which are logged and swallowed.
	ErrSecondaryStore = errors.New("secondary store failure")
)

// StoreError annotates a backend failure with the store and operation that
// produced it. errors.Is matches both the cause and the store class.
type StoreError struct {
	Store     string
	Op        string
	Secondary bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

// Unwrap exposes the cause and the class sentinel.
func (e *StoreError) Unwrap() []error {
	class := ErrPrimaryStore
	if e.Secondary {
		class = ErrSecondaryStore
	}
	return []error{e.Err, class}
}

// PrimaryError wraps err as a retryable store failure. A nil err stays nil.
func PrimaryError(store, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: store, Op: op, Err: err}
}

// SecondaryError wraps err as a search index failure. A nil err stays nil.
func SecondaryError(store, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: store, Op: op, Secondary: true, Err: err}
}

// Malformed wraps a decoding or validation problem so the stage harness drops the message.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}
