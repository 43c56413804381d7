package coro

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutorPostRunsOnWorker(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(2))
	require.NoError(t, err)
	defer exec.Close()

	done := make(chan struct{})
	require.NoError(t, exec.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted work never ran")
	}
}

func TestExecutorPostAfterCloseReturnsErrExecutorClosed(t *testing.T) {
	exec, err := NewExecutor()
	require.NoError(t, err)
	require.NoError(t, exec.Close())
	require.ErrorIs(t, exec.Post(func() {}), ErrExecutorClosed)
}

func TestExecutorCloseWaitsForReadyWorkToDrain(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)

	var ran atomic.Bool
	require.NoError(t, exec.Post(func() {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
	}))
	require.NoError(t, exec.Close())
	require.True(t, ran.Load())
}

func TestExecutorMakeWorkDelaysClose(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)

	release := exec.MakeWork()
	closed := make(chan struct{})
	go func() {
		exec.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before outstanding MakeWork guard was released")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	// calling the guard a second time must be a harmless no-op
	release()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close never returned after MakeWork guard was released")
	}
}

func TestExecutorPostAfterFiresOnDeadline(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)
	defer exec.Close()

	start := time.Now()
	task := NewTask(func(y *FrameYielder) (any, error) {
		var tok CancelToken
		return y.Await(exec.PostAfter(100*time.Millisecond, tok))
	})
	_, err = task.Await(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestExecutorPostAfterCancelledBeforeDeadline(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)
	defer exec.Close()

	src := NewCancelSource()
	task := NewTask(func(y *FrameYielder) (any, error) {
		return y.Await(exec.PostAfter(time.Hour, src.Token()))
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		src.Cancel("abort")
	}()

	_, err = task.Await(context.Background())
	require.ErrorAs(t, err, new(*CancelledError))
}

func TestExecutorDispatchFastPathAvoidsQueueRoundTrip(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)
	defer exec.Close()

	var sawOnExecutor bool
	result := Go(exec, func(ctx context.Context) (int, error) {
		_ = exec.Dispatch(ctx, func() { sawOnExecutor = true })
		return 1, nil
	})

	v, err := result.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.True(t, sawOnExecutor)
}

func TestExecutorSubmitBridgesPlainFunction(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(2))
	require.NoError(t, err)
	defer exec.Close()

	task := NewTask(func(y *FrameYielder) (any, error) {
		return y.Await(exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
			return "done", nil
		}))
	})
	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "done", v)
}

func TestExecutorHandlesHighVolumeFanOut(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(4))
	require.NoError(t, err)
	defer exec.Close()

	const n = 2000
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		require.NoError(t, exec.Post(func() {
			count.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	require.Equal(t, int64(n), count.Load())
}
