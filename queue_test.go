package coro

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadyQueueFIFOOrder(t *testing.T) {
	var q readyQueue
	var handles []Handle
	for i := 0; i < 5; i++ {
		h := Handle{frame: newFrame(i, func(y *FrameYielder) (any, error) { return nil, nil })}
		handles = append(handles, h)
		q.Push(h)
	}
	require.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		h, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, handles[i], h)
	}
	_, ok := q.Pop()
	require.False(t, ok)
	require.Equal(t, 0, q.Len())
}

func TestReadyQueueSpansMultipleChunks(t *testing.T) {
	var q readyQueue
	const n = chunkSize*2 + 7
	for i := 0; i < n; i++ {
		q.Push(Handle{frame: newFrame(i, func(y *FrameYielder) (any, error) { return nil, nil })})
	}
	require.Equal(t, n, q.Len())
	count := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		count++
	}
	require.Equal(t, n, count)
}

func TestTimerHeapOrdersByDeadlineThenSequence(t *testing.T) {
	base := time.Now()
	var h timerHeap
	entries := []*timerEntry{
		{deadline: base.Add(3 * time.Second), seq: 0},
		{deadline: base.Add(1 * time.Second), seq: 1},
		{deadline: base.Add(1 * time.Second), seq: 2},
		{deadline: base.Add(2 * time.Second), seq: 3},
	}
	for _, e := range entries {
		heap.Push(&h, e)
	}

	var order []uint64
	for h.Len() > 0 {
		order = append(order, heap.Pop(&h).(*timerEntry).seq)
	}
	require.Equal(t, []uint64{1, 2, 3, 0}, order)
}

func TestTimerHeapRemoveByIndex(t *testing.T) {
	base := time.Now()
	var h timerHeap
	a := &timerEntry{deadline: base.Add(time.Second), seq: 1}
	b := &timerEntry{deadline: base.Add(2 * time.Second), seq: 2}
	c := &timerEntry{deadline: base.Add(3 * time.Second), seq: 3}
	heap.Push(&h, a)
	heap.Push(&h, b)
	heap.Push(&h, c)

	heap.Remove(&h, b.index)
	require.Equal(t, 2, h.Len())

	var remaining []uint64
	for h.Len() > 0 {
		remaining = append(remaining, heap.Pop(&h).(*timerEntry).seq)
	}
	require.Equal(t, []uint64{1, 3}, remaining)
}
