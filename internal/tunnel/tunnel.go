// Package tunnel is the in-process fan-out between exchange adapters and
// persistence workers: a registry of per-routing-key FIFO queues, created
// lazily as new exchange/kind streams appear at runtime.
package tunnel

import (
	"context"
	"sync"

	"mdtunnel/internal/market"
)

type Tunnel struct {
	mu      sync.RWMutex
	queues  map[string]*queue
	maxSize int
}

// New builds a tunnel. maxSize bounds each queue for PutBlocking; 0 means
// unbounded. Put ignores the bound either way: producers are never refused,
// the queue is the designed pressure-release valve and backpressure is
// applied at the consumer side instead.
func New(maxSize int) *Tunnel {
	return &Tunnel{
		queues:  make(map[string]*queue),
		maxSize: maxSize,
	}
}

func (t *Tunnel) queue(key string) *queue {
	t.mu.RLock()
	q, ok := t.queues[key]
	t.mu.RUnlock()
	if ok {
		return q
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if q, ok = t.queues[key]; ok {
		return q
	}
	q = newQueue(t.maxSize)
	t.queues[key] = q
	return q
}

// Put enqueues without blocking, creating the key's queue if absent.
func (t *Tunnel) Put(env market.Envelope) {
	t.queue(env.RoutingKey()).put(env)
}

// PutBlocking blocks the producer while a bounded queue is full.
func (t *Tunnel) PutBlocking(ctx context.Context, env market.Envelope) error {
	return t.queue(env.RoutingKey()).putBlocking(ctx, env)
}

// GetBlocking blocks until an item arrives for key, FIFO per key.
func (t *Tunnel) GetBlocking(ctx context.Context, key string) (market.Envelope, error) {
	return t.queue(key).get(ctx)
}

// Keys returns a point-in-time snapshot of the known routing keys. Callers
// poll it for discovery; exact consistency is not needed.
func (t *Tunnel) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.queues))
	for k := range t.queues {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the queued item count for key.
func (t *Tunnel) Len(key string) int {
	t.mu.RLock()
	q, ok := t.queues[key]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	return q.len()
}
