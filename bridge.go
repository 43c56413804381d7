package coro

import "context"

// FromCallback bridges an arbitrary goroutine-based async operation into a
// lazy [Task]: fn runs on its own goroutine (not one of exec's workers),
// and its result is routed back through exec so the continuation it wakes
// always runs under the executor's own panic/queue discipline rather than
// on fn's goroutine directly.
//
// A context.Done check before fn starts (once fn runs, the task waits for
// it to return; fn receives ctx to stop early), runtime.Goexit detection via
// a completed flag, panic recovery into [PanicError], and routing
// resolution back through the owning executor with a direct-resolution
// fallback if that executor has already closed, mean the task never hangs
// even during shutdown.
func FromCallback[T any](exec *Executor, ctx context.Context, fn func(ctx context.Context) (T, error), opts ...TaskOption) *Task[T] {
	t := NewTask[T](func(y *FrameYielder) (T, error) {
		v, err := y.Await(&callbackAwaiter[T]{exec: exec, ctx: ctx, fn: fn})
		var zero T
		if err != nil {
			return zero, err
		}
		if v == nil {
			return zero, nil
		}
		return v.(T), nil
	}, opts...)
	t.frame.WithContext(context.WithValue(context.Background(), workerKey{e: exec}, true))
	return t
}

type callbackAwaiter[T any] struct {
	exec   *Executor
	ctx    context.Context
	fn     func(ctx context.Context) (T, error)
	result T
	err    error
}

func (a *callbackAwaiter[T]) AwaitReady() bool { return false }

func (a *callbackAwaiter[T]) AwaitSuspend(continuation Handle) SuspendDecision {
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		completed := false

		settle := func(result T, err error) {
			completed = true
			resolve := func() {
				a.result, a.err = result, err
				a.exec.resumeChain(continuation)
			}
			if postErr := a.exec.Post(resolve); postErr != nil {
				// Executor already closed: resolve directly on this
				// goroutine rather than leave the task hanging forever.
				resolve()
			}
		}

		select {
		case <-ctx.Done():
			var zero T
			settle(zero, ctx.Err())
			return
		default:
		}

		defer func() {
			if r := recover(); r != nil {
				var zero T
				settle(zero, PanicError{Value: r})
				return
			}
			if !completed {
				var zero T
				settle(zero, ErrGoexit)
			}
		}()

		result, err := a.fn(ctx)
		settle(result, err)
	}()

	return Suspend()
}

func (a *callbackAwaiter[T]) AwaitResume() (any, error) {
	return a.result, a.err
}
