package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the browser could not be reached after bounded retries.
	ErrUnavailable = errors.New("browser session unavailable")

	// ErrTimeout means a delivery did not complete within the response timeout.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrDeliveryFailed means the prompt could not be delivered on a live page.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")

	// ErrNoConversation is returned by operations that need a current conversation.
	ErrNoConversation = errors.New("no current conversation")

	// ErrBinaryFile means SendFile was given a file that is not text.
	ErrBinaryFile = errors.New("cannot send binary file as text")
)

// Error tags a failure with one of the session error kinds.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PersistError reports that a conversation could not be written after an exchange.
// The exchange itself may have succeeded.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist conversation to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
