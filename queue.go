package radioedit

import (
	"context"
	"sync"
)

// Queue hands job ids from submitters to whichever worker is free next.
//
// Enqueue never blocks: ids go into an unbounded slice and a one-slot
// channel wakes a waiting worker. A worker that takes an id while more are
// pending passes the wake-up on.
type Queue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	notify chan struct{}
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends id to the tail of the queue.
func (q *Queue) Enqueue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, id)
	q.signal()
	return nil
}

// signal wakes one waiter. The caller holds q.mu. Once closed, the closed
// channel wakes every waiter on its own.
func (q *Queue) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue blocks until an id is available and returns the oldest one. It
// returns ErrQueueClosed once the queue is closed and drained, or the
// context error if ctx ends first.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			} else {
				q.signal()
			}
			q.mu.Unlock()
			return id, nil
		}
		if q.closed {
			q.mu.Unlock()
			return "", ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Len returns the number of ids waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new ids. Ids already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}
