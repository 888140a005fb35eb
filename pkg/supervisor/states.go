package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of the supervised worker process.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State      State
	RetryCount int
	LastError  string
	StartedAt  time.Time
}

// ErrHealthCheckExhausted is reported when the worker never became ready
// within the configured number of startup probes.
var ErrHealthCheckExhausted = errors.New("worker failed to become ready in time")

// ErrShuttingDown is returned by Start while a stop is in progress.
var ErrShuttingDown = errors.New("supervisor is shutting down")

// StartError wraps an outright launch failure. The application cannot
// proceed without the worker, so callers treat this as fatal.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start worker process: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// CrashError reports a worker that exited while it was supposed to be
// running. A running worker that exits is not a slow start, it is a failure.
type CrashError struct {
	Reason string
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("worker process exited unexpectedly: %s", e.Reason)
}
