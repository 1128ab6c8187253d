package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrLaunchTimeout means a spawned daemon never became reachable.
	ErrLaunchTimeout = errors.New("browser daemon did not become reachable")

	// ErrSpawnFailed means the daemon process could not be started.
	ErrSpawnFailed = errors.New("browser daemon could not be started")

	// ErrUnreachable means attaching to the control endpoint failed.
	ErrUnreachable = errors.New("browser endpoint unreachable")

	// ErrHandleClosed is returned by operations on a closed Handle.
	ErrHandleClosed = errors.New("connection handle is closed")
)

// LaunchError is returned by Daemon.Ensure. Kind is ErrLaunchTimeout or ErrSpawnFailed.
type LaunchError struct {
	Kind     error
	Endpoint string
	Err      error
}

func (e *LaunchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("launch %s: %v", e.Endpoint, e.Kind)
	}
	return fmt.Sprintf("launch %s: %v: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *LaunchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConnectError is returned by a Connector when attaching fails.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v: %v", e.Endpoint, ErrUnreachable, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrUnreachable, e.Err}
}
