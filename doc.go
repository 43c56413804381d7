// Package coro implements a cooperative, stackless coroutine runtime for Go:
// an awaitable/suspension protocol with symmetric transfer, a lazy one-shot
// [Task] future type, a multi-threaded [Executor] with deadline scheduling,
// and cancellation tokens safe under concurrent cancel/register races.
//
// # Architecture
//
// A [Task] is built around a [Frame] (§ frame.go), the heap-allocated
// activation record that owns a goroutine parked on a handoff channel. The
// frame suspends by pushing an *awaiterEntry onto its stack and blocking;
// resuming the frame pops that entry, calls AwaitResume, and runs the body
// until the next suspension or completion. Symmetric transfer is expressed
// directly in the type system: [Handle.Resume] returns the next [Handle] to
// run rather than simply unblocking.
//
// An [Executor] drives frames to completion from a fixed worker pool. Ready
// handles queue in a chunked FIFO ([readyQueue]); delayed work waits in a
// min-heap keyed by deadline. [CancelSource]/[CancelToken] let callers abort
// a pending wait without tearing down the executor.
//
// # Thread Safety
//
// [Executor.Post], [Executor.Dispatch], and [Executor.PostAfter] are safe to
// call from any goroutine. A [Task]'s [Task.Await] must not be called
// concurrently with itself; the task protocol is one-shot, not broadcast.
// [CancelToken] registration and firing are safe under concurrent access.
//
// # Usage
//
//	exec, err := coro.NewExecutor(coro.WithWorkers(4))
//	if err != nil {
//	    // handle err
//	}
//	defer exec.Close()
//
//	t := coro.Go(exec, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
//
//	v, err := t.Await(context.Background())
//
// # Error Types
//
// The package provides a small set of sentinel and wrapped errors:
//   - [ErrAwaitTwice]: a one-shot task was awaited more than once.
//   - [ErrFrameDestroyed]: a Handle was resumed or destroyed after teardown.
//   - [ErrExecutorClosed]: work was posted after [Executor.Close].
//   - [CancelledError]: a task observed a cancelled [CancelToken].
//   - [PanicError]: wraps a panic recovered from a frame's goroutine.
//
// All error types support [errors.Unwrap] and [errors.Is]/[errors.As].
package coro
