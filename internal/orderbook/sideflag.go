package orderbook

import "mdtunnel/internal/market"

// Side is the explicit buy/sell flag carried by side-flag delta protocols.
type Side int

const (
	Buy Side = iota
	Sell
)

// SideFlagBook is for protocols whose deltas name the side explicitly
// instead of encoding it in the amount sign, and whose snapshots arrive as
// two separate price→size maps.
type SideFlagBook struct {
	book
}

func NewSideFlagBook(pair string, limit int) *SideFlagBook {
	return &SideFlagBook{book: newBook(pair, limit)}
}

// Initialize replaces both sides from snapshot maps. Empty input is a no-op.
func (b *SideFlagBook) Initialize(asks, bids map[float64]float64) {
	if len(asks) == 0 && len(bids) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asks = make(map[float64]market.Level, len(asks))
	b.bids = make(map[float64]market.Level, len(bids))
	for price, size := range asks {
		if size > 0 {
			b.asks[price] = market.Level{Price: price, Amount: size}
		}
	}
	for price, size := range bids {
		if size > 0 {
			b.bids[price] = market.Level{Price: price, Amount: size}
		}
	}
}

func (b *SideFlagBook) Update(side Side, price, size float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if size == 0 {
		b.remove(price)
		return
	}
	lv := market.Level{Price: price, Amount: size}
	if side == Buy {
		b.upsert(b.bids, b.asks, price, lv)
	} else {
		b.upsert(b.asks, b.bids, price, lv)
	}
}

func (b *SideFlagBook) Snapshot() *market.Depth {
	b.mu.Lock()
	defer b.mu.Unlock()
	bids, asks := b.sorted()
	return &market.Depth{Pair: b.pair, Bids: bids, Asks: asks}
}
