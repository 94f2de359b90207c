// Package orderbook reconstructs per-pair price level books from the mix of
// full-snapshot and incremental-delta protocols the exchanges speak. Each
// variant shares the same shape: two maps keyed by price (or rate), one
// mutex, and a sorted depth-limited Snapshot.
package orderbook

import (
	"sort"
	"sync"

	"mdtunnel/internal/market"
)

// Book is the read side common to every variant. Update/Initialize signatures
// differ per variant, so they live on the concrete types.
type Book interface {
	// Snapshot returns a sorted, depth-limited view, or nil if the book has
	// not received valid state yet.
	Snapshot() *market.Depth
}

// book holds the state shared by all variants. Update runs on the network
// receive path while Snapshot runs on a timer, so both take mu.
type book struct {
	mu    sync.Mutex
	pair  string
	limit int
	bids  map[float64]market.Level
	asks  map[float64]market.Level
}

func newBook(pair string, limit int) book {
	return book{
		pair:  pair,
		limit: limit,
		bids:  make(map[float64]market.Level),
		asks:  make(map[float64]market.Level),
	}
}

// upsert places a level on one side, removing any stale entry for the same
// price on the other side first.
func (b *book) upsert(side, other map[float64]market.Level, price float64, lv market.Level) {
	delete(other, price)
	side[price] = lv
}

// remove deletes price from whichever side holds it. Deleting an absent
// price is a no-op: exchanges are known to resend deletes.
func (b *book) remove(price float64) {
	delete(b.bids, price)
	delete(b.asks, price)
}

// sorted returns asks ascending and bids descending, both truncated to the
// publish depth. Caller must hold mu.
func (b *book) sorted() (bids, asks []market.Level) {
	bids = collect(b.bids)
	asks = collect(b.asks)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	if b.limit > 0 && len(bids) > b.limit {
		bids = bids[:b.limit]
	}
	if b.limit > 0 && len(asks) > b.limit {
		asks = asks[:b.limit]
	}
	return bids, asks
}

func collect(m map[float64]market.Level) []market.Level {
	out := make([]market.Level, 0, len(m))
	for _, lv := range m {
		out = append(out, lv)
	}
	return out
}
