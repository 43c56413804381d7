package coro

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskIsLazyUntilAwaited(t *testing.T) {
	started := false
	task := NewTask(func(y *FrameYielder) (int, error) {
		started = true
		return 42, nil
	})
	require.False(t, started, "constructing a task must not run its body")

	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, 42, v)
}

func TestTaskAwaitTwicePanicsOrErrors(t *testing.T) {
	task := NewTask(func(y *FrameYielder) (int, error) { return 1, nil })
	_, err := task.Await(context.Background())
	require.NoError(t, err)

	_, err = task.Await(context.Background())
	require.ErrorIs(t, err, ErrAwaitTwice)
}

func TestTaskReturnsReferenceTypeResult(t *testing.T) {
	type payload struct{ name string }
	want := &payload{name: "widget"}
	task := NewTask(func(y *FrameYielder) (*payload, error) { return want, nil })
	got, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Same(t, want, got)
}

func TestTaskPropagatesBodyError(t *testing.T) {
	sentinel := errors.New("body failed")
	task := NewTask(func(y *FrameYielder) (int, error) { return 0, sentinel })
	_, err := task.Await(context.Background())
	require.ErrorIs(t, err, sentinel)
}

func TestTaskPanicBecomesPanicError(t *testing.T) {
	task := NewTask(func(y *FrameYielder) (int, error) {
		panic("kaboom")
	})
	_, err := task.Await(context.Background())
	var pe PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "kaboom", pe.Value)
}

func TestTaskAwaitRespectsCallerContextCancellation(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)
	defer exec.Close()

	// The task suspends waiting on a long timer; Await's own ctx times out
	// first, so Await must return without waiting for the timer, even
	// though the task itself keeps running underneath.
	task := NewTask(func(y *FrameYielder) (any, error) {
		var tok CancelToken
		return y.Await(exec.PostAfter(time.Hour, tok))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = task.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTaskCoAwaitFromAnotherCoroutine(t *testing.T) {
	inner := NewTask(func(y *FrameYielder) (int, error) { return 10, nil })
	outer := NewTask(func(y *FrameYielder) (int, error) {
		v, err := y.Await(inner)
		if err != nil {
			return 0, err
		}
		return v.(int) + 1, nil
	})
	v, err := outer.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 11, v)
}

func TestGoBridgesPlainFunctionIntoTask(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(2))
	require.NoError(t, err)
	defer exec.Close()

	task := Go(exec, func(ctx context.Context) (string, error) {
		return "value", nil
	})
	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "value", v)
}

func TestFromCallbackBridgesRawGoroutine(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(2))
	require.NoError(t, err)
	defer exec.Close()

	task := FromCallback(exec, context.Background(), func(ctx context.Context) (int, error) {
		return 99, nil
	})
	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 99, v)
}

func TestFromCallbackRespectsContextCancellation(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)
	defer exec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := FromCallback(exec, ctx, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	_, err = task.Await(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestFromCallbackRecoversPanic(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)
	defer exec.Close()

	task := FromCallback(exec, context.Background(), func(ctx context.Context) (int, error) {
		panic("callback exploded")
	})
	_, err = task.Await(context.Background())
	var pe PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "callback exploded", pe.Value)
}
