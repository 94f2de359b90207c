package market

import "time"

// Ticker is a top-of-book / 24h stats record. Append-only.
type Ticker struct {
	Pair     string
	Bid      float64
	BidSize  float64
	Ask      float64
	AskSize  float64
	Last     float64
	Open     float64
	High     float64
	Low      float64
	Vol      float64
	QuoteVol float64
	Created  time.Time
}

func (t *Ticker) PairName() string     { return t.Pair }
func (t *Ticker) NaturalKey() []string { return nil }

func (t *Ticker) StampCreated(at time.Time) {
	if t.Created.IsZero() {
		t.Created = at
	}
}

func (t *Ticker) Document() map[string]any {
	return map[string]any{
		"pair":      t.Pair,
		"bid":       t.Bid,
		"bid_size":  t.BidSize,
		"ask":       t.Ask,
		"ask_size":  t.AskSize,
		"last":      t.Last,
		"open":      t.Open,
		"high":      t.High,
		"low":       t.Low,
		"vol":       t.Vol,
		"quote_vol": t.QuoteVol,
		"created":   orNow(t.Created),
	}
}

// Trade is one executed trade. Append-only: the tid looks unique but history
// must keep every row, so it is deliberately not a natural key.
type Trade struct {
	Pair      string
	TID       string
	Price     float64
	Amount    float64
	Direction string
	TradeTime time.Time
	Created   time.Time
}

func (t *Trade) PairName() string     { return t.Pair }
func (t *Trade) NaturalKey() []string { return nil }

func (t *Trade) StampCreated(at time.Time) {
	if t.Created.IsZero() {
		t.Created = at
	}
}

func (t *Trade) Document() map[string]any {
	return map[string]any{
		"pair":       t.Pair,
		"tid":        t.TID,
		"price":      t.Price,
		"amount":     t.Amount,
		"direction":  t.Direction,
		"trade_time": t.TradeTime,
		"created":    orNow(t.Created),
	}
}

// Kline is one candle bar. A bar receives several partial updates before it
// closes, so it declares a natural key and is upserted (last write wins).
type Kline struct {
	Pair         string
	StartTime    time.Time
	Open         float64
	Close        float64
	High         float64
	Low          float64
	Vol          float64
	QuoteVol     float64
	ContractType string
	Created      time.Time
}

func (k *Kline) PairName() string { return k.Pair }

func (k *Kline) StampCreated(at time.Time) {
	if k.Created.IsZero() {
		k.Created = at
	}
}

func (k *Kline) NaturalKey() []string {
	if k.ContractType != "" {
		return []string{"pair", "start_time", "contract_type"}
	}
	return []string{"pair", "start_time"}
}

func (k *Kline) Document() map[string]any {
	doc := map[string]any{
		"pair":       k.Pair,
		"start_time": k.StartTime,
		"open":       k.Open,
		"close":      k.Close,
		"high":       k.High,
		"low":        k.Low,
		"vol":        k.Vol,
		"quote_vol":  k.QuoteVol,
		"created":    orNow(k.Created),
	}
	if k.ContractType != "" {
		doc["contract_type"] = k.ContractType
	}
	return doc
}

// Level is one price level of a depth snapshot. Count and Period are only
// meaningful for the book variants that carry them.
type Level struct {
	Price  float64
	Amount float64
	Count  int
	Period int
}

// Depth is a sorted, depth-limited order book snapshot. Append-only.
type Depth struct {
	Pair    string
	Bids    []Level
	Asks    []Level
	Funding bool
	Created time.Time
}

func (d *Depth) PairName() string     { return d.Pair }
func (d *Depth) NaturalKey() []string { return nil }

func (d *Depth) StampCreated(at time.Time) {
	if d.Created.IsZero() {
		d.Created = at
	}
}

func (d *Depth) Document() map[string]any {
	return map[string]any{
		"pair":    d.Pair,
		"bids":    levelDocs(d.Bids, d.Funding),
		"asks":    levelDocs(d.Asks, d.Funding),
		"created": orNow(d.Created),
	}
}

func levelDocs(levels []Level, funding bool) []map[string]any {
	priceField := "price"
	if funding {
		priceField = "rate"
	}
	out := make([]map[string]any, 0, len(levels))
	for _, lv := range levels {
		doc := map[string]any{
			priceField: lv.Price,
			"amount":   lv.Amount,
		}
		if lv.Count > 0 {
			doc["count"] = lv.Count
		}
		if lv.Period > 0 {
			doc["period"] = lv.Period
		}
		out = append(out, doc)
	}
	return out
}
