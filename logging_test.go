package coro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetLoggerNilDisablesLogging(t *testing.T) {
	SetLogger(nil)
	require.Nil(t, getLogger())
	require.NotPanics(t, func() { logRecoveredPanic("test", "boom") })
}

func TestExecutorSurvivesPanickingTask(t *testing.T) {
	exec, err := NewExecutor(WithWorkers(1))
	require.NoError(t, err)
	defer exec.Close()

	require.NoError(t, exec.Post(func() { panic("posted panic") }))

	done := make(chan struct{})
	require.NoError(t, exec.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker goroutine did not survive a panicking posted task")
	}
}
