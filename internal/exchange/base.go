package exchange

import (
	"context"
	"sync"
	"time"

	"mdtunnel/internal/market"
	"mdtunnel/internal/orderbook"
	"mdtunnel/internal/session"
	"mdtunnel/internal/tunnel"
)

// Deps is what every adapter needs from the outside world.
type Deps struct {
	Tunnel           *tunnel.Tunnel
	Symbols          []string
	BookLimit        int
	SnapshotInterval time.Duration
	Session          session.Config
}

// Base carries the state common to all adapters: the session, the per-pair
// order books, and the depth snapshot timer. The books map is written from
// the dispatch path and read from the timer, so it has its own lock; each
// book additionally locks itself.
type Base struct {
	name string
	deps Deps
	sess *session.Session

	mu    sync.Mutex
	books map[string]orderbook.Book
}

func NewBase(name string, deps Deps) (*Base, error) {
	sess, err := session.New(name, deps.Session)
	if err != nil {
		return nil, err
	}
	if deps.SnapshotInterval <= 0 {
		deps.SnapshotInterval = 5 * time.Second
	}
	return &Base{
		name:  name,
		deps:  deps,
		sess:  sess,
		books: make(map[string]orderbook.Book),
	}, nil
}

func (b *Base) Name() string              { return b.name }
func (b *Base) Session() *session.Session { return b.sess }
func (b *Base) Symbols() []string         { return b.deps.Symbols }
func (b *Base) BookLimit() int            { return b.deps.BookLimit }

// Publish stamps the ingestion time on a payload and hands it to the
// tunnel. Never blocks. Stamping happens here, not at persistence time:
// records can sit in the tunnel for a while before a batch flushes.
func (b *Base) Publish(kind market.Kind, payload market.Payload) {
	payload.StampCreated(time.Now().UTC())
	b.deps.Tunnel.Put(market.Envelope{Exchange: b.name, Kind: kind, Payload: payload})
}

// Book returns the live book for pair, or nil.
func (b *Base) Book(pair string) orderbook.Book {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.books[pair]
}

// SetBook installs (or replaces) the book for pair.
func (b *Base) SetBook(pair string, book orderbook.Book) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.books[pair] = book
}

// RunLoops starts the depth snapshot timer and drives the session until ctx
// is cancelled.
func (b *Base) RunLoops(ctx context.Context, dispatch session.Dispatch) error {
	go b.depthLoop(ctx)
	return b.sess.Run(ctx, dispatch)
}

// depthLoop publishes a Depth record per live book on a fixed interval.
// Books that are not ready yet produce nil snapshots and are skipped.
func (b *Base) depthLoop(ctx context.Context) {
	ticker := time.NewTicker(b.deps.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			books := make([]orderbook.Book, 0, len(b.books))
			for _, book := range b.books {
				books = append(books, book)
			}
			b.mu.Unlock()
			for _, book := range books {
				if snap := book.Snapshot(); snap != nil {
					b.Publish(market.KindDepth, snap)
				}
			}
		}
	}
}
