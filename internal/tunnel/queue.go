package tunnel

import (
	"context"
	"sync"

	"mdtunnel/internal/market"
)

// queue is one FIFO stream of envelopes. maxSize == 0 means unbounded.
//
// Wakeups use capacity-1 signal channels. A woken waiter re-checks state
// under the lock and re-signals when more work (or room) remains, so lost
// signals with multiple waiters resolve on the next hand-off.
type queue struct {
	mu       sync.Mutex
	items    []market.Envelope
	maxSize  int
	notEmpty chan struct{}
	notFull  chan struct{}
}

func newQueue(maxSize int) *queue {
	return &queue{
		maxSize:  maxSize,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
}

// put enqueues unconditionally, growing past maxSize if needed.
func (q *queue) put(env market.Envelope) {
	q.mu.Lock()
	q.items = append(q.items, env)
	q.mu.Unlock()
	signal(q.notEmpty)
}

// putBlocking waits for room when the queue is bounded and full.
func (q *queue) putBlocking(ctx context.Context, env market.Envelope) error {
	for {
		q.mu.Lock()
		if q.maxSize <= 0 || len(q.items) < q.maxSize {
			q.items = append(q.items, env)
			room := q.maxSize <= 0 || len(q.items) < q.maxSize
			q.mu.Unlock()
			signal(q.notEmpty)
			if room {
				signal(q.notFull)
			}
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notFull:
		}
	}
}

// get blocks until an item is available, returning items in arrival order.
func (q *queue) get(ctx context.Context) (market.Envelope, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			env := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				signal(q.notEmpty)
			}
			signal(q.notFull)
			return env, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return market.Envelope{}, ctx.Err()
		case <-q.notEmpty:
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
