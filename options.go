package coro

import (
	"log/slog"
	"time"

	"github.com/joeycumines/go-catrate"
)

// executorOptions holds configuration resolved from ExecutorOption values.
type executorOptions struct {
	workers         int
	overloadLimiter *catrate.Limiter
	logHandler      slog.Handler
	clock           Clock
}

// ExecutorOption configures a new Executor via the functional-options
// pattern.
type ExecutorOption interface {
	applyExecutor(*executorOptions) error
}

type executorOptionFunc struct {
	fn func(*executorOptions) error
}

func (o *executorOptionFunc) applyExecutor(opts *executorOptions) error { return o.fn(opts) }

// WithWorkers sets the fixed number of worker goroutines the Executor
// creates. Defaults to 1 if not set or set to a non-positive value.
func WithWorkers(n int) ExecutorOption {
	return &executorOptionFunc{func(opts *executorOptions) error {
		opts.workers = n
		return nil
	}}
}

// WithOverloadLimiter wires a sliding-window rate limiter used to warn (via
// the package logger) when Post is called faster than the configured
// budget allows.
func WithOverloadLimiter(l *catrate.Limiter) ExecutorOption {
	return &executorOptionFunc{func(opts *executorOptions) error {
		opts.overloadLimiter = l
		return nil
	}}
}

// WithLogger installs logger as the destination for this Executor's
// diagnostics, equivalent to calling SetLogger(logger.Handler()) globally
// but scoped to documentation intent only (the underlying logger is
// currently process-global; see logging.go).
func WithLogger(logger *slog.Logger) ExecutorOption {
	return &executorOptionFunc{func(opts *executorOptions) error {
		if logger != nil {
			opts.logHandler = logger.Handler()
		}
		return nil
	}}
}

// WithClock overrides the Clock an Executor uses for timer deadlines
// (PostAfter) and due-timer checks, in place of the real wall clock.
// Intended for tests that need deterministic control over elapsed time
// without sleeping.
func WithClock(clock Clock) ExecutorOption {
	return &executorOptionFunc{func(opts *executorOptions) error {
		opts.clock = clock
		return nil
	}}
}

// resolveExecutorOptions applies opts over defaults, skipping nils.
func resolveExecutorOptions(opts []ExecutorOption) (*executorOptions, error) {
	cfg := &executorOptions{workers: 1, clock: realClock{}}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.applyExecutor(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	if cfg.clock == nil {
		cfg.clock = realClock{}
	}
	return cfg, nil
}

// defaultOverloadWindow is used by NewDefaultOverloadLimiter.
const defaultOverloadWindow = time.Second

// NewDefaultOverloadLimiter returns a sliding-window limiter permitting n
// Post calls per second, suitable for passing to WithOverloadLimiter.
func NewDefaultOverloadLimiter(n int) *catrate.Limiter {
	return catrate.NewLimiter(map[time.Duration]int{defaultOverloadWindow: n})
}
