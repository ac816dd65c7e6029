package notify

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Options sets the pause between sends and the slack added to a server
// supplied retry-after.
type Options struct {
	BaseDelay   time.Duration
	RetryMargin time.Duration
}

// Queue delivers messages in order through a single worker started by Run.
type Queue struct {
	mu    sync.Mutex
	items *list.List
	delay time.Duration

	wake      chan struct{}
	transport Transport
	opts      Options
	logger    *slog.Logger
}

// NewQueue returns an idle queue. Nothing is sent until Run is called.
func NewQueue(transport Transport, opts Options, logger *slog.Logger) *Queue {
	return &Queue{
		items:     list.New(),
		delay:     opts.BaseDelay,
		wake:      make(chan struct{}, 1),
		transport: transport,
		opts:      opts,
		logger:    logger,
	}
}

// Enqueue appends msg to the tail of the queue. It never blocks.
func (q *Queue) Enqueue(msg string) {
	q.mu.Lock()
	q.items.PushBack(msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Delay returns the current pause between deliveries.
func (q *Queue) Delay() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.delay
}

// Run drains the queue until ctx is cancelled. Only one Run may be active.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("Notification worker started")
	defer q.logger.Info("Notification worker stopped")

	for {
		msg, ok := q.pop(ctx)
		if !ok {
			return
		}

		q.deliver(ctx, msg)

		timer := time.NewTimer(q.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (q *Queue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if front := q.items.Front(); front != nil {
			q.items.Remove(front)
			q.mu.Unlock()
			return front.Value.(string), true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-q.wake:
		}
	}
}

func (q *Queue) deliver(ctx context.Context, msg string) {
	err := q.send(ctx, msg)
	if err == nil {
		q.mu.Lock()
		q.delay = q.opts.BaseDelay
		q.mu.Unlock()
		return
	}

	var rl *RateLimitError
	q.mu.Lock()
	q.items.PushFront(msg)
	if errors.As(err, &rl) {
		q.delay = rl.RetryAfter + q.opts.RetryMargin
	}
	delay := q.delay
	q.mu.Unlock()

	q.logger.Warn("notification delivery failed, requeued", "error", err, "delay", delay)
}

func (q *Queue) send(ctx context.Context, msg string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("notification transport panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return q.transport.Send(ctx, msg)
}
