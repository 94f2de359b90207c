package orderbook

import "mdtunnel/internal/market"

// TradingBook applies (price, count, amount) deltas. Sign convention for
// trading books: amount > 0 places the level on the bid side, otherwise the
// ask side. count == 0 deletes the level from whichever side holds it.
type TradingBook struct {
	book
}

func NewTradingBook(pair string, limit int) *TradingBook {
	return &TradingBook{book: newBook(pair, limit)}
}

// Initialize bulk-loads a snapshot by replaying it as updates. Empty input
// is a no-op.
func (b *TradingBook) Initialize(items [][3]float64) {
	for _, it := range items {
		b.Update(it[0], int(it[1]), it[2])
	}
}

func (b *TradingBook) Update(price float64, count int, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count == 0 {
		b.remove(price)
		return
	}
	lv := market.Level{Price: price, Amount: amount, Count: count}
	if amount > 0 {
		b.upsert(b.bids, b.asks, price, lv)
	} else {
		b.upsert(b.asks, b.bids, price, lv)
	}
}

func (b *TradingBook) Snapshot() *market.Depth {
	b.mu.Lock()
	defer b.mu.Unlock()
	bids, asks := b.sorted()
	return &market.Depth{Pair: b.pair, Bids: bids, Asks: asks}
}
