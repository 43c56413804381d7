package coro

import "time"

// Clock abstracts wall-clock reads behind the same seam spec.md's timer
// heap assumes ("wall time" in its heap-scheduled-item invariant), so a
// test can drive an Executor's deadline math without sleeping real time.
type Clock interface {
	Now() time.Time
}

// realClock is the default Clock, backed by the standard library.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
