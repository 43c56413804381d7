package coro

import (
	"log/slog"
	"sync"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// globalLogger is the package-level structured logger used for frame-leak
// diagnostics, recovered panics, and executor overload warnings. It is nil
// until SetLogger is called, in which case logging is a silent no-op.
var (
	loggerMu     sync.RWMutex
	globalLogger *logiface.Logger[*islog.Event]
)

// SetLogger installs handler as the destination for this package's
// structured diagnostics (frame leaks, recovered panics, executor overload
// warnings). Passing nil disables logging.
//
// Swapping a package-level logger pointer under a mutex keeps every call
// site allocation-free when logging is disabled, at the cost of one
// process-wide destination rather than a per-Executor one.
func SetLogger(handler slog.Handler) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if handler == nil {
		globalLogger = nil
		return
	}
	globalLogger = islog.L.New(islog.L.WithSlogHandler(handler))
}

func getLogger() *logiface.Logger[*islog.Event] {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

func logLeakedFrame() {
	l := getLogger()
	if l == nil {
		return
	}
	l.Warning().Log("coro: coroutine frame garbage collected while still suspended or running (leaked)")
}

func logRecoveredPanic(where string, r any) {
	l := getLogger()
	if l == nil {
		return
	}
	l.Err().Str("where", where).Any("panic", r).Log("coro: recovered panic on worker goroutine")
}

func logOverload(rate int, window string) {
	l := getLogger()
	if l == nil {
		return
	}
	l.Warning().Int("rate", rate).Str("window", window).Log("coro: executor post rate exceeded configured budget")
}

func logLeakedTask(name string, reason error) {
	l := getLogger()
	if l == nil {
		return
	}
	ev := l.Warning()
	if name != "" {
		ev = ev.Str("task", name)
	}
	ev.Any("reason", reason).Log("coro: rejecting task that was constructed but never awaited")
}
