package coro

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// awaiterEntry is the activation record for one live suspension point. A
// full co_await expansion tracks three sub-objects here (expression,
// awaitable, awaiter) with distinct lifetimes, each possibly a reference to
// the previous; this runtime only needs to retain the resolved Awaiter to
// drive AwaitResume on the way back in, so expr is kept purely for
// diagnostics.
type awaiterEntry struct {
	expr    any
	awaiter Awaiter
}

type bodyEventKind int

const (
	bodySuspended bodyEventKind = iota
	bodyFinished
	bodyPanicked
)

type bodyEvent struct {
	kind   bodyEventKind
	next   Handle
	result any
	err    error
	panic  any
}

// Frame is the heap-allocated activation record for one coroutine: a
// goroutine parked on a handoff channel between suspension points, a LIFO
// stack of awaiter entries, and the opaque promise the coroutine's caller
// uses to observe its outcome.
//
// Grounded on tcard-coro's goroutine+channel coroutine emulation: the body
// runs on its own goroutine and blocks on an unbuffered channel at each
// suspension point, so that from the driving Handle's perspective resuming
// looks like a synchronous call that happens to return control back once
// the body reaches its next suspension or completes.
type Frame struct { //nolint:govet
	state *fastState

	promise any

	mu    sync.Mutex
	stack []*awaiterEntry

	toBody   chan struct{}
	fromBody chan bodyEvent

	body func(y *FrameYielder) (any, error)

	// onFinal is invoked once, from the body's own goroutine, the instant
	// the body returns. Its result becomes resume()'s return value, giving
	// a task's promise the chance to perform symmetric transfer into
	// whatever coroutine is awaiting the task.
	onFinal func(result any, err error, panicVal any) Handle

	// ctx is an optional affinity/context value threaded through to
	// FrameYielder.Context, used by Executor.Dispatch's on-executor fast
	// path (see workerKey in executor.go).
	ctx context.Context

	leaked *bool
}

// WithContext attaches ctx to the frame, retrievable by the body via
// FrameYielder.Context. Intended to be called once, before the frame is
// first resumed.
func (f *Frame) WithContext(ctx context.Context) *Frame {
	f.ctx = ctx
	return f
}

// Context returns the context attached via Frame.WithContext, or
// context.Background() if none was attached.
func (y *FrameYielder) Context() context.Context {
	if y.f.ctx == nil {
		return context.Background()
	}
	return y.f.ctx
}

// newFrame allocates a Frame around body, which should call y.Await at each
// point the coroutine suspends. promise is the frame's opaque promise value,
// retrievable via Handle.Promise.
func newFrame(promise any, body func(y *FrameYielder) (any, error)) *Frame {
	f := &Frame{
		state:    newFastState(framePreInitial),
		promise:  promise,
		toBody:   make(chan struct{}),
		fromBody: make(chan bodyEvent),
	}
	f.body = body
	leaked := new(bool)
	f.leaked = leaked
	runtime.SetFinalizer(f, func(f *Frame) {
		switch f.state.Load() {
		case frameFinal, frameDestroyed, framePreInitial:
			// framePreInitial: never started, nothing to leak.
		default:
			*leaked = true
			logLeakedFrame()
		}
	})
	return f
}

// FrameYielder is the handle a coroutine body uses to await expressions; it
// is passed into the body function supplied to newFrame.
type FrameYielder struct {
	f *Frame
}

// Await resolves expr via the awaitable protocol and suspends the frame's
// goroutine if the resulting Awaiter is not already ready.
func (y *FrameYielder) Await(expr any) (any, error) {
	f := y.f
	a := resolveAwaiter(f.promise, expr)

	if a.AwaitReady() {
		return a.AwaitResume()
	}

	entry := &awaiterEntry{expr: expr, awaiter: a}
	f.pushEntry(entry)

	// Mark the frame suspended before AwaitSuspend runs, so a resumer that
	// AwaitSuspend hands the Handle to (another goroutine, a worker) can
	// resume it as soon as it is told to.
	f.state.Store(frameSuspended)
	decision := a.AwaitSuspend(Handle{frame: f})
	switch decision.Kind {
	case SuspendCancel:
		f.state.Store(frameRunning)
		f.popEntry()
		return a.AwaitResume()
	case SuspendAlways, SuspendTransfer:
		next := noopHandle
		if decision.Kind == SuspendTransfer {
			next = decision.Next
		}
		f.fromBody <- bodyEvent{kind: bodySuspended, next: next}
		<-f.toBody
		f.popEntry()
		return a.AwaitResume()
	default:
		panic(fmt.Sprintf("coro: unknown SuspendDecisionKind %v", decision.Kind))
	}
}

func (f *Frame) pushEntry(e *awaiterEntry) {
	f.mu.Lock()
	f.stack = append(f.stack, e)
	f.mu.Unlock()
}

// popEntry pops and returns the top awaiter entry, enforcing LIFO teardown
// order.
func (f *Frame) popEntry() *awaiterEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.stack)
	if n == 0 {
		return nil
	}
	e := f.stack[n-1]
	f.stack[n-1] = nil
	f.stack = f.stack[:n-1]
	return e
}

func (f *Frame) runBody() {
	y := &FrameYielder{f: f}
	var ev bodyEvent
	func() {
		defer func() {
			if r := recover(); r != nil {
				ev = bodyEvent{kind: bodyPanicked, panic: r}
			}
		}()
		result, err := f.body(y)
		ev = bodyEvent{kind: bodyFinished, result: result, err: err}
	}()
	f.state.Store(frameFinal)
	f.fromBody <- ev
}

// resume runs the frame from its current suspension point until it next
// suspends or completes. It must not be called concurrently on the same
// Frame: exactly one owner drives a given frame at a time.
func (f *Frame) resume() Handle {
	switch {
	case f.state.TryTransition(framePreInitial, frameRunning):
		go f.runBody()
	case f.state.TryTransition(frameSuspended, frameRunning):
		f.toBody <- struct{}{}
	default:
		panic(ErrFrameDestroyed)
	}

	ev := <-f.fromBody
	switch ev.kind {
	case bodySuspended:
		return ev.next
	case bodyFinished:
		if f.onFinal != nil {
			return f.onFinal(ev.result, ev.err, nil)
		}
		return noopHandle
	case bodyPanicked:
		if f.onFinal != nil {
			return f.onFinal(nil, nil, ev.panic)
		}
		panic(PanicError{Value: ev.panic})
	default:
		panic("coro: unreachable bodyEvent kind")
	}
}

// destroy releases the frame. Any awaiter entries still on the stack are
// dropped in LIFO order; this runtime has no per-entry destructor to
// run, since Go's GC reclaims the entries once dereferenced.
func (f *Frame) destroy() {
	if !f.state.TryTransition(frameFinal, frameDestroyed) &&
		!f.state.TryTransition(frameSuspended, frameDestroyed) &&
		!f.state.TryTransition(framePreInitial, frameDestroyed) {
		panic(ErrFrameDestroyed)
	}
	f.mu.Lock()
	for i := len(f.stack) - 1; i >= 0; i-- {
		f.stack[i] = nil
	}
	f.stack = nil
	f.mu.Unlock()
	runtime.SetFinalizer(f, nil)
}
