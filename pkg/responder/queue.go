package responder

import (
	"context"
	"time"
)

// WorkQueue is a bounded FIFO. Offer never blocks, a nil item is the stop
// sentinel for workers.
type WorkQueue struct {
	ch chan *WorkItem
}

func NewWorkQueue(capacity int) *WorkQueue {
	return &WorkQueue{ch: make(chan *WorkItem, max(1, capacity))}
}

// Offer enqueues item and returns false if the queue is full.
func (q *WorkQueue) Offer(item *WorkItem) bool {
	select {
	case q.ch <- item:
		return true
	default:
		return false
	}
}

// Poll waits at most timeout for an item. ok is false on timeout or when ctx
// is done. A received sentinel is returned as (nil, true).
func (q *WorkQueue) Poll(ctx context.Context, timeout time.Duration) (item *WorkItem, ok bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case item = <-q.ch:
		return item, true
	case <-ctx.Done():
		return nil, false
	case <-t.C:
		return nil, false
	}
}

func (q *WorkQueue) Len() int { return len(q.ch) }

func (q *WorkQueue) Cap() int { return cap(q.ch) }
