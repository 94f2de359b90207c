package orderbook

import "mdtunnel/internal/market"

// FundingBook is the rate-keyed variant for funding markets. Same mechanic
// as TradingBook with the sign convention inverted: amount < 0 is a bid.
// Levels carry the funding period.
type FundingBook struct {
	book
}

func NewFundingBook(pair string, limit int) *FundingBook {
	return &FundingBook{book: newBook(pair, limit)}
}

func (b *FundingBook) Initialize(items [][4]float64) {
	for _, it := range items {
		b.Update(it[0], int(it[1]), int(it[2]), it[3])
	}
}

func (b *FundingBook) Update(rate float64, period, count int, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count == 0 {
		b.remove(rate)
		return
	}
	lv := market.Level{Price: rate, Amount: amount, Count: count, Period: period}
	if amount < 0 {
		b.upsert(b.bids, b.asks, rate, lv)
	} else {
		b.upsert(b.asks, b.bids, rate, lv)
	}
}

func (b *FundingBook) Snapshot() *market.Depth {
	b.mu.Lock()
	defer b.mu.Unlock()
	bids, asks := b.sorted()
	return &market.Depth{Pair: b.pair, Bids: bids, Asks: asks, Funding: true}
}
