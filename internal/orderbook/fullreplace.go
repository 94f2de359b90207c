package orderbook

import "mdtunnel/internal/market"

// FullReplaceBook is for exchanges that push the complete current book every
// interval (e.g. binance partial depth streams). There is no incremental
// merge: every message replaces all prior state.
type FullReplaceBook struct {
	book
	ready bool
}

func NewFullReplaceBook(pair string, limit int) *FullReplaceBook {
	return &FullReplaceBook{book: newBook(pair, limit)}
}

// Replace swaps in the new book wholesale. An empty message before any state
// has arrived leaves the book not ready; an empty book is not a valid market
// state and must not be published.
func (b *FullReplaceBook) Replace(bids, asks []market.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(bids) == 0 && len(asks) == 0 && !b.ready {
		return
	}
	b.bids = make(map[float64]market.Level, len(bids))
	b.asks = make(map[float64]market.Level, len(asks))
	for _, lv := range bids {
		if lv.Amount > 0 {
			b.bids[lv.Price] = lv
		}
	}
	for _, lv := range asks {
		if lv.Amount > 0 {
			b.asks[lv.Price] = lv
		}
	}
	b.ready = true
}

func (b *FullReplaceBook) Snapshot() *market.Depth {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return nil
	}
	bids, asks := b.sorted()
	return &market.Depth{Pair: b.pair, Bids: bids, Asks: asks}
}
