package webapi

import (
	"context"
	"fmt"
	"log/slog"
)

// Loop is the single-writer event loop that drives a Bus.
//
// Enqueue and Submit are safe from any goroutine. Run and Drain process
// work in the calling goroutine and must not be used concurrently with each
// other.
type Loop struct {
	bus    *Bus
	queue  *taskQueue
	logger *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the logger used for loop diagnostics.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a loop that publishes queued notifications on bus.
func NewLoop(bus *Bus, opts ...LoopOption) *Loop {
	l := &Loop{
		bus:    bus,
		queue:  newTaskQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Bus returns the bus this loop publishes to.
func (l *Loop) Bus() *Bus {
	return l.bus
}

// Enqueue schedules n for delivery in a later turn.
// Returns false if the loop has been stopped.
func (l *Loop) Enqueue(n Notification) bool {
	return l.queue.Enqueue(task{typ: taskNotification, notification: n})
}

// Submit schedules fn to run as its own turn. Callers use this to start
// operations from outside the loop goroutine.
// Returns false if the loop has been stopped.
func (l *Loop) Submit(fn func()) bool {
	return l.queue.Enqueue(task{typ: taskCall, call: fn})
}

// Len returns the number of queued turns.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Run processes turns until ctx is cancelled or Stop is called.
//
// A panicking turn is logged and the loop continues with the next one.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop starting")

	for {
		t, ok := l.queue.TryDequeue()
		if ok {
			l.step(t)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel is closed on Stop; an empty queue then means done.
			if l.queue.Len() == 0 && l.stopped() {
				l.logger.Debug("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain processes turns in the calling goroutine until the queue is empty,
// including any work enqueued by the turns themselves. Returns the number
// of turns processed.
func (l *Loop) Drain() int {
	n := 0
	for {
		t, ok := l.queue.TryDequeue()
		if !ok {
			return n
		}
		l.step(t)
		n++
	}
}

// Stop closes the queue. Run returns once the remaining turns are processed.
func (l *Loop) Stop() {
	l.queue.Close()
}

func (l *Loop) stopped() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

// step runs a single turn.
func (l *Loop) step(t task) {
	defer func() {
		if r := recover(); r != nil {
			l.logTurnError(t, fmt.Errorf("panic: %v", r))
		}
	}()

	switch t.typ {
	case taskNotification:
		l.logger.Debug("delivering notification",
			"kind", t.notification.Kind.String(),
			"store_items", len(t.notification.StoreItems),
			"user_items", len(t.notification.UserItems),
			"identifiers", t.notification.Identifiers,
		)
		l.bus.Publish(t.notification)
	case taskCall:
		if t.call != nil {
			t.call()
		}
	default:
		l.logTurnError(t, fmt.Errorf("unknown task type: %d", t.typ))
	}
}

func (l *Loop) logTurnError(t task, err error) {
	if t.typ == taskNotification {
		l.logger.Error("notification turn failed",
			"error", err,
			"kind", t.notification.Kind.String(),
		)
		return
	}
	l.logger.Error("turn failed", "error", err, "task_type", int(t.typ))
}
