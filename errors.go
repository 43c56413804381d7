package coro

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameDestroyed is returned/panicked when a Handle is resumed or
	// destroyed past its final or destroyed state.
	ErrFrameDestroyed = errors.New("coro: frame already destroyed or not resumable")

	// ErrAwaitTwice is returned when a one-shot task is awaited more than
	// once; task<T> is lazy and single-continuation, not a broadcast future.
	ErrAwaitTwice = errors.New("coro: task awaited more than once")

	// ErrExecutorClosed is returned when work is posted to an Executor that
	// has already begun or completed shutdown.
	ErrExecutorClosed = errors.New("coro: executor is closed")

	// ErrGoexit settles a FromCallback task whose function exited via
	// runtime.Goexit rather than a normal return or a recovered panic.
	ErrGoexit = errors.New("coro: callback goroutine exited via runtime.Goexit")
)

// CancelledError is observed by a task (or any Awaiter checking a
// [CancelToken]) once its associated [CancelSource] has fired.
type CancelledError struct {
	// Reason is the value passed to CancelSource.Cancel, if any.
	Reason any
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Reason == nil {
		return "coro: operation cancelled"
	}
	return fmt.Sprintf("coro: operation cancelled: %v", e.Reason)
}

// Unwrap supports errors.Is/errors.As against the cancellation reason, when
// the reason itself is an error.
func (e *CancelledError) Unwrap() error {
	if err, ok := e.Reason.(error); ok {
		return err
	}
	return nil
}

// PanicError wraps a panic value recovered from a coroutine frame's
// goroutine, so that a task's Await returns an ordinary error instead of
// propagating the panic across goroutine boundaries (where it would simply
// crash the process).
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("coro: coroutine panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is itself an
// error, enabling errors.Is/errors.As through the cause chain.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WrapError wraps cause with a message, preserving errors.Is compatibility
// with cause.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
