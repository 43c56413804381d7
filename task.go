package coro

import (
	"context"
	"sync"
	"sync/atomic"
)

// taskPromise is a task[T]'s promise: the slot its frame's onFinal hook
// settles, and the continuation Handle (if any) an awaiting coroutine has
// registered to be resumed, via symmetric transfer, once that happens.
//
// Settling is mutex-guarded and happens exactly once, same as a classic
// Pending/Resolved/Rejected promise state machine, but generalized from
// eager multi-subscriber semantics to lazy, exactly-one-continuation
// task<T> semantics: settling here never fans out to N channels, it
// records or transfers to a single continuation, and the frame never runs
// until something drives it.
type taskPromise[T any] struct {
	mu           sync.Mutex
	settled      bool
	result       T
	err          error
	continuation Handle
	done         chan struct{}
}

// Task is a lazy, one-shot coroutine future. Constructing one runs no user
// code; the body only begins executing on the first Await, or the first
// time it is awaited from within another coroutine via CoAwait.
type Task[T any] struct {
	frame   *Frame
	promise *taskPromise[T]
	awaited atomic.Bool
}

// TaskOption configures a Task at construction time, via the same
// functional-options shape as ExecutorOption.
type TaskOption interface {
	applyTask(*taskOptions)
}

type taskOptions struct {
	name         string
	skipRegistry bool
}

type taskOptionFunc struct {
	fn func(*taskOptions)
}

func (o *taskOptionFunc) applyTask(opts *taskOptions) { o.fn(opts) }

// WithTaskName attaches a diagnostic label to a task, reported alongside a
// leak warning (see logLeakedTask); an unnamed task's warning carries no
// identifier.
func WithTaskName(name string) TaskOption {
	return &taskOptionFunc{func(opts *taskOptions) { opts.name = name }}
}

// WithoutLeakTracking excludes a task from the process-wide task registry
// ScavengeTasks/RejectLeakedTasks walk, for call sites that construct many
// short-lived tasks under their own lifecycle discipline and don't need
// abandoned-task diagnostics.
func WithoutLeakTracking() TaskOption {
	return &taskOptionFunc{func(opts *taskOptions) { opts.skipRegistry = true }}
}

func resolveTaskOptions(opts []TaskOption) *taskOptions {
	cfg := &taskOptions{}
	for _, o := range opts {
		if o != nil {
			o.applyTask(cfg)
		}
	}
	return cfg
}

// NewTask wraps body as a lazy task. body receives a *FrameYielder so it
// can itself await other tasks or Executor operations.
func NewTask[T any](body func(y *FrameYielder) (T, error), opts ...TaskOption) *Task[T] {
	cfg := resolveTaskOptions(opts)
	p := &taskPromise[T]{done: make(chan struct{})}
	t := &Task[T]{promise: p}

	erased := func(y *FrameYielder) (any, error) {
		return body(y)
	}
	f := newFrame(p, erased)

	var regID uint64
	f.onFinal = func(result any, err error, panicVal any) Handle {
		p.mu.Lock()
		switch {
		case panicVal != nil:
			p.err = PanicError{Value: panicVal}
		case err != nil:
			p.err = err
		default:
			if v, ok := result.(T); ok {
				p.result = v
			}
		}
		p.settled = true
		cont := p.continuation
		p.continuation = Handle{}
		p.mu.Unlock()
		close(p.done)
		taskRegistry.untrack(regID)
		return cont
	}

	// A task registered here is only ever rejected by RejectLeakedTasks
	// while still framePreInitial: once it starts, its body is a live
	// goroutine this closure has no safe way to interrupt. It holds the
	// frame's state rather than the frame, so the registry's weak pointer
	// is the only reference the registry keeps to f.
	state := f.state
	reject := func(err error) {
		if !state.TryTransition(framePreInitial, frameDestroyed) {
			return
		}
		p.mu.Lock()
		if p.settled {
			p.mu.Unlock()
			return
		}
		p.err = err
		p.settled = true
		p.mu.Unlock()
		close(p.done)
	}
	if !cfg.skipRegistry {
		regID = taskRegistry.track(f, cfg.name, reject)
	}

	t.frame = f
	return t
}

// Go bridges a plain function, run on exec's worker pool, into a Task. It
// is the idiomatic entry point for code that doesn't itself participate in
// the awaitable protocol but wants to be composed with code that does.
func Go[T any](exec *Executor, fn func(ctx context.Context) (T, error), opts ...TaskOption) *Task[T] {
	t := NewTask[T](func(y *FrameYielder) (T, error) {
		v, err := y.Await(exec.Submit(y.Context(), func(ctx context.Context) (any, error) {
			return fn(ctx)
		}))
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

// Await drives the task to completion and returns its result. It is a
// one-shot operation: a second call (or a concurrent CoAwait) returns
// ErrAwaitTwice. Cancelling ctx stops waiting for the result but does not
// cancel the underlying coroutine; pass a CancelToken into the task's own
// body (e.g. via Executor.PostAfter) for that.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if !t.awaited.CompareAndSwap(false, true) {
		return zero, ErrAwaitTwice
	}

	p := t.promise
	p.mu.Lock()
	alreadySettled := p.settled
	p.mu.Unlock()

	// A task rejected by RejectLeakedTasks before its first Await never
	// gets a live frame to drive; resuming it here would panic with
	// ErrFrameDestroyed instead of returning the rejection error.
	if !alreadySettled {
		h := Handle{frame: t.frame}
		next := h.Resume()
		for !next.IsNoop() {
			next = next.Resume()
		}
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return zero, p.err
	}
	return p.result, nil
}

// CoAwait lets a Task be awaited from within another coroutine's body via
// FrameYielder.Await, participating in symmetric transfer: once the task
// settles, the awaiting coroutine's Handle is returned from the task
// frame's resume() call, so the driving trampoline (an Executor worker, or
// another Task.Await) continues directly into it.
func (t *Task[T]) CoAwait() Awaiter {
	return &taskAwaiter[T]{task: t}
}

type taskAwaiter[T any] struct {
	task *Task[T]
}

func (a *taskAwaiter[T]) AwaitReady() bool {
	p := a.task.promise
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

func (a *taskAwaiter[T]) AwaitSuspend(continuation Handle) SuspendDecision {
	p := a.task.promise
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return ResumeNow()
	}
	p.continuation = continuation
	p.mu.Unlock()

	if !a.task.awaited.CompareAndSwap(false, true) {
		panic(ErrAwaitTwice)
	}

	// Name the task's frame as what runs next rather than resuming it
	// inline: resuming here, on the awaiting coroutine's own goroutine,
	// would make that goroutine the task's driver for as long as the task
	// keeps suspending internally, instead of handing it back to whatever
	// trampoline (an Executor worker, or another Task.Await) is meant to
	// drive ready work. Symmetric transfer lets that trampoline pick the
	// task back up, however many suspensions it takes to settle.
	return TransferTo(Handle{frame: a.task.frame})
}

func (a *taskAwaiter[T]) AwaitResume() (any, error) {
	p := a.task.promise
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}
