package broker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a report references an id with no live
	// command, either because it never existed or because it already reached
	// a terminal state.
	ErrNotFound = errors.New("command not found")

	// ErrMalformed is returned for submissions missing a required field.
	ErrMalformed = errors.New("malformed request")

	// ErrDuplicateID is returned when a submission reuses an id that is still
	// pending. It matches ErrMalformed under errors.Is.
	ErrDuplicateID = fmt.Errorf("%w: duplicate command id", ErrMalformed)
)

// TimeoutError is delivered to a submitter whose command outlived its deadline.
type TimeoutError struct {
	ID      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Command %s timed out after %dms", e.ID, e.Timeout.Milliseconds())
}

// TimeoutMs is the configured timeout in milliseconds.
func (e *TimeoutError) TimeoutMs() int64 {
	return e.Timeout.Milliseconds()
}

// WorkerError carries the error string a worker reported for a command.
// Error returns that string unchanged.
type WorkerError struct {
	ID      string
	Message string
}

func (e *WorkerError) Error() string {
	return e.Message
}
