package coro

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// workerKey is a context.Context value key used to mark "this context
// belongs to worker goroutine N of Executor E". Go has no portable
// goroutine-ID API, so affinity is tracked by threading a context value
// through the worker loop instead of probing the running goroutine.
type workerKey struct{ e *Executor }

// Executor is a fixed-size worker pool driving coroutine frames to
// completion: a FIFO ready queue of resumable Handles, a min-heap of
// deadline-scheduled wakeups, and a work-count gate that lets Close wait
// for genuinely outstanding work without waiting on idle workers forever.
//
// N worker goroutines each run the same mutex+condition-variable
// acquire-work loop, matching genuinely parallel preemptive threads rather
// than a single reactor goroutine multiplexed over OS-level readiness
// events.
type Executor struct { //nolint:govet
	mu      sync.Mutex
	cond    *sync.Cond
	ready   readyQueue
	timers  timerHeap
	nextSeq uint64

	activeWork int64 // count of outstanding MakeWork guards + in-flight Post calls + pending timers
	closed     bool
	closeCh    chan struct{}

	workersWanted int
	workersDone   sync.WaitGroup

	overloadLimiter interface {
		Allow(category any) (time.Time, bool)
	}

	clock Clock
}

// NewExecutor constructs an Executor and immediately starts its worker
// goroutines (CreateThreads(workers)).
func NewExecutor(opts ...ExecutorOption) (*Executor, error) {
	cfg, err := resolveExecutorOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.logHandler != nil {
		SetLogger(cfg.logHandler)
	}
	e := &Executor{
		closeCh:       make(chan struct{}),
		workersWanted: cfg.workers,
		clock:         cfg.clock,
	}
	e.cond = sync.NewCond(&e.mu)
	if cfg.overloadLimiter != nil {
		e.overloadLimiter = cfg.overloadLimiter
	}
	e.CreateThreads(cfg.workers)
	return e, nil
}

// CreateThreads starts n additional worker goroutines.
func (e *Executor) CreateThreads(n int) {
	for i := 0; i < n; i++ {
		e.workersDone.Add(1)
		go e.workerLoop()
	}
}

// Post enqueues fn to run on a worker goroutine, returning ErrExecutorClosed
// if the executor has been closed. Post never blocks the caller on fn's
// execution; use MakeWork to keep Close from returning until such detached
// work finishes.
func (e *Executor) Post(fn func()) error {
	if e.overloadLimiter != nil {
		if _, ok := e.overloadLimiter.Allow("post"); !ok {
			logOverload(0, defaultOverloadWindow.String())
		}
	}
	// fn is wrapped as a trivial one-shot Frame whose sole suspension point
	// is never reached, so the same ready queue and worker trampoline serve
	// both plain callbacks and coroutine Handles uniformly.
	f := newFrame(nil, func(y *FrameYielder) (any, error) {
		fn()
		return nil, nil
	})
	h := Handle{frame: f}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.ready.Push(h)
	e.activeWork++
	e.cond.Signal()
	e.mu.Unlock()
	return nil
}

// Dispatch behaves like Post, except if the calling goroutine is itself one
// of this Executor's workers, fn runs synchronously in place (the
// on-executor fast path), avoiding a queue round-trip.
func (e *Executor) Dispatch(ctx context.Context, fn func()) error {
	if e.onExecutor(ctx) {
		fn()
		return nil
	}
	return e.Post(fn)
}

func (e *Executor) onExecutor(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v := ctx.Value(workerKey{e: e})
	ok, _ := v.(bool)
	return ok
}

// MakeWork returns a function that must be called exactly once, when the
// caller's out-of-band work (e.g. a goroutine spawned outside Post) has
// finished, so Close can wait for genuine outstanding work instead of
// racing it.
func (e *Executor) MakeWork() func() {
	e.mu.Lock()
	e.activeWork++
	e.mu.Unlock()
	var done bool
	return func() {
		if done {
			return
		}
		done = true
		e.mu.Lock()
		e.activeWork--
		e.cond.Broadcast()
		e.mu.Unlock()
	}
}

// PostAfter returns an Awaiter that suspends the awaiting coroutine until
// delay elapses or token cancels first, whichever comes first.
func (e *Executor) PostAfter(delay time.Duration, token CancelToken) Awaiter {
	return &sleepAwaiter{exec: e, delay: delay, token: token}
}

type sleepAwaiter struct {
	exec    *Executor
	delay   time.Duration
	token   CancelToken
	timeout bool
}

func (a *sleepAwaiter) AwaitReady() bool {
	return a.token.CanBeCancelled() && a.token.IsCancelled()
}

func (a *sleepAwaiter) AwaitSuspend(continuation Handle) SuspendDecision {
	a.exec.scheduleTimer(a.exec.clock.Now().Add(a.delay), continuation, a.token)
	return Suspend()
}

func (a *sleepAwaiter) AwaitResume() (any, error) {
	if a.token.CanBeCancelled() {
		if err := a.token.ThrowIfCancelled(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (e *Executor) scheduleTimer(deadline time.Time, h Handle, token CancelToken) {
	entry := &timerEntry{deadline: deadline, handle: h, token: token}
	e.mu.Lock()
	entry.seq = e.nextSeq
	e.nextSeq++
	heap.Push(&e.timers, entry)
	e.activeWork++
	e.cond.Broadcast()
	e.mu.Unlock()

	if token.CanBeCancelled() {
		token.Register(func(any) {
			e.mu.Lock()
			if entry.index >= 0 && entry.index < len(e.timers) && e.timers[entry.index] == entry {
				heap.Remove(&e.timers, entry.index)
				entry.index = -1
				e.ready.Push(h)
				e.cond.Signal()
			}
			e.mu.Unlock()
		})
	}
}

// Submit runs fn on a worker and returns an Awaiter resolving to its
// result, the primitive Go uses to bridge a plain function into a task.
func (e *Executor) Submit(ctx context.Context, fn func(ctx context.Context) (any, error)) Awaiter {
	return &postAwaiter{exec: e, fn: fn, ctx: ctx}
}

type postAwaiter struct {
	exec   *Executor
	fn     func(ctx context.Context) (any, error)
	ctx    context.Context
	result any
	err    error
}

func (a *postAwaiter) AwaitReady() bool { return false }

func (a *postAwaiter) AwaitSuspend(continuation Handle) SuspendDecision {
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, workerKey{e: a.exec}, true)
	err := a.exec.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				a.err = PanicError{Value: r}
			}
			a.exec.resumeChain(continuation)
		}()
		a.result, a.err = a.fn(ctx)
	})
	if err != nil {
		a.err = err
		return ResumeNow()
	}
	return Suspend()
}

func (a *postAwaiter) AwaitResume() (any, error) { return a.result, a.err }

// resumeChain drives h, and any further handle it transfers to, to the
// point where each returns the no-op handle: the Executor's trampoline,
// giving symmetric transfer its promised O(1) stack growth regardless of
// how long the chain of completions is.
func (e *Executor) resumeChain(h Handle) {
	for !h.IsNoop() {
		h = h.Resume()
	}
}

// workerLoop is run by each worker goroutine: acquire the mutex, pop ready
// work or a due timer, release the mutex, run it, repeat. Grounded on
// loop.go's run/tick structure and its safeExecute panic-recovery wrapper.
func (e *Executor) workerLoop() {
	defer e.workersDone.Done()
	for {
		e.mu.Lock()
		for {
			// Once closed, no further work can be posted (Post rejects it),
			// so draining the ready queue is sufficient for a clean exit.
			// Pending timers that have not yet fired are abandoned on
			// shutdown rather than awaited, avoiding an unbounded Close.
			if e.closed && e.ready.Len() == 0 {
				e.mu.Unlock()
				return
			}
			if h, ok := e.ready.Pop(); ok {
				e.mu.Unlock()
				e.runHandle(h)
				e.mu.Lock()
				e.activeWork--
				e.cond.Broadcast()
				e.mu.Unlock()
				goto next
			}
			if !e.closed && len(e.timers) > 0 {
				due := e.timers[0].deadline
				now := e.clock.Now()
				if !due.After(now) {
					entry := heap.Pop(&e.timers).(*timerEntry)
					entry.index = -1
					e.mu.Unlock()
					e.runHandle(entry.handle)
					e.mu.Lock()
					e.activeWork--
					e.cond.Broadcast()
					e.mu.Unlock()
					goto next
				}
				timer := time.AfterFunc(due.Sub(now), func() {
					e.mu.Lock()
					e.cond.Broadcast()
					e.mu.Unlock()
				})
				e.cond.Wait()
				timer.Stop()
				continue
			}
			e.cond.Wait()
		}
	next:
	}
}

func (e *Executor) runHandle(h Handle) {
	defer func() {
		if r := recover(); r != nil {
			logRecoveredPanic("executor.runHandle", r)
		}
	}()
	e.resumeChain(h)
}

// Close requests shutdown: no further Post/Submit calls are accepted, and
// Close blocks until all outstanding work (activeWork reaching zero) has
// drained and every worker goroutine has exited.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	close(e.closeCh)
	e.cond.Broadcast()
	e.workersDone.Wait()

	e.mu.Lock()
	// Timers still pending here were abandoned by workerLoop's shutdown
	// path rather than fired; release the activeWork they reserved so
	// Close doesn't wait forever on a wakeup that will never come.
	if n := len(e.timers); n > 0 {
		e.timers = e.timers[:0]
		e.activeWork -= int64(n)
	}
	for e.activeWork > 0 {
		e.cond.Wait()
	}
	e.mu.Unlock()
	return nil
}
