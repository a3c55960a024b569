package webapi

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(task{typ: taskNotification, notification: PurchaseFailed(id)}))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, []string{want}, got.notification.Identifiers)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestTaskQueue_EnqueueAfterClose(t *testing.T) {
	q := newTaskQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(task{typ: taskCall}))
}

func TestLoop_DrainProcessesFollowUpWork(t *testing.T) {
	bus := NewBus()
	loop := NewLoop(bus, WithLoopLogger(quietLogger()))
	var got []Kind

	bus.Subscribe(KindPurchaseSucceeded, func(n Notification) {
		got = append(got, n.Kind)
		loop.Enqueue(UserItemsReceived(nil))
	})
	bus.Subscribe(KindUserItems, func(n Notification) {
		got = append(got, n.Kind)
	})

	loop.Enqueue(PurchaseSucceeded("x"))
	n := loop.Drain()

	assert.Equal(t, 2, n)
	assert.Equal(t, []Kind{KindPurchaseSucceeded, KindUserItems}, got)
	assert.Equal(t, 0, loop.Len())
}

func TestLoop_SubmitRunsInOrder(t *testing.T) {
	loop := NewLoop(NewBus(), WithLoopLogger(quietLogger()))
	var order []int

	for i := 1; i <= 3; i++ {
		i := i
		loop.Submit(func() { order = append(order, i) })
	}
	loop.Drain()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestLoop_PanicInTurnIsContained(t *testing.T) {
	bus := NewBus()
	loop := NewLoop(bus, WithLoopLogger(quietLogger()))
	ran := false

	loop.Submit(func() { panic("boom") })
	loop.Submit(func() { ran = true })

	assert.NotPanics(t, func() { loop.Drain() })
	assert.True(t, ran, "loop continues after a failing turn")
}

func TestLoop_RunStopsOnContextCancel(t *testing.T) {
	loop := NewLoop(NewBus(), WithLoopLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	seen := make(chan struct{}, 1)
	loop.Submit(func() { seen <- struct{}{} })

	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = loop.Run(ctx)
	}()

	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("submitted turn was not run")
	}

	cancel()
	wg.Wait()

	assert.ErrorIs(t, runErr, context.Canceled)
	assert.False(t, loop.Submit(func() {}), "loop rejects work after stopping")
}

func TestLoop_RunReturnsAfterStop(t *testing.T) {
	loop := NewLoop(NewBus(), WithLoopLogger(quietLogger()))
	count := 0
	loop.Submit(func() { count++ })
	loop.Submit(func() { count++ })
	loop.Stop()

	err := loop.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, count, "queued turns are processed before Run returns")
}
