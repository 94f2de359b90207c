// Package bitfinex streams v2 market data. Channels are identified by a
// numeric id handed out in "subscribed" events, so dispatch goes through a
// channel hub built at subscribe time. Trading pairs (t prefix) use the
// signed-amount book; funding pairs (f prefix) use the rate-keyed variant
// with the sign convention inverted.
package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mdtunnel/internal/exchange"
	"mdtunnel/internal/market"
	"mdtunnel/internal/orderbook"
)

type channelInfo struct {
	channel string
	pair    string
}

type Adapter struct {
	*exchange.Base

	mu  sync.Mutex
	hub map[int64]channelInfo
}

func New(deps exchange.Deps) (*Adapter, error) {
	base, err := exchange.NewBase("bitfinex", deps)
	if err != nil {
		return nil, err
	}
	a := &Adapter{Base: base, hub: make(map[int64]channelInfo)}
	a.registerChannels()
	return a, nil
}

func (a *Adapter) registerChannels() {
	for _, sym := range a.Symbols() {
		a.Session().Register(map[string]any{"event": "subscribe", "channel": "ticker", "symbol": sym})
		a.Session().Register(map[string]any{"event": "subscribe", "channel": "trades", "symbol": sym})
		a.Session().Register(map[string]any{"event": "subscribe", "channel": "book", "symbol": sym})
		a.Session().Register(map[string]any{"event": "subscribe", "channel": "candles", "key": "trade:1m:" + sym})
	}
}

func (a *Adapter) Run(ctx context.Context) error {
	return a.RunLoops(ctx, a.dispatch)
}

func (a *Adapter) dispatch(_ context.Context, raw []byte) error {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		return a.handleEvent(raw)
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}
	if len(frame) < 2 {
		return nil
	}
	var chanID int64
	if err := json.Unmarshal(frame[0], &chanID); err != nil {
		return err
	}

	// heartbeat: [chanId, "hb"]
	var hb string
	if json.Unmarshal(frame[1], &hb) == nil && hb == "hb" {
		return nil
	}

	a.mu.Lock()
	info, ok := a.hub[chanID]
	a.mu.Unlock()
	if !ok {
		log.Debug().Int64("chan_id", chanID).Msg("frame for unknown channel, skipped")
		return nil
	}

	switch info.channel {
	case "ticker":
		return a.handleTicker(info.pair, frame[1])
	case "trades":
		return a.handleTrades(info.pair, frame)
	case "candles":
		return a.handleCandles(info.pair, frame[1])
	case "book":
		return a.handleBook(info.pair, frame[1])
	}
	return nil
}

type eventMsg struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	ChanID  int64  `json:"chanId"`
	Symbol  string `json:"symbol"`
	Key     string `json:"key"`
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
}

func (a *Adapter) handleEvent(raw []byte) error {
	var ev eventMsg
	if err := json.Unmarshal(raw, &ev); err != nil {
		return err
	}
	switch ev.Event {
	case "subscribed":
		pair := ev.Symbol
		if pair == "" && ev.Key != "" {
			parts := strings.Split(ev.Key, ":")
			pair = parts[len(parts)-1]
		}
		a.mu.Lock()
		a.hub[ev.ChanID] = channelInfo{channel: ev.Channel, pair: pair}
		a.mu.Unlock()
		log.Debug().Str("channel", ev.Channel).Str("pair", pair).Int64("chan_id", ev.ChanID).
			Msg("bitfinex channel mapped")
	case "error":
		return fmt.Errorf("bitfinex error %d: %s", ev.Code, ev.Msg)
	}
	return nil
}

func funding(pair string) bool { return strings.HasPrefix(pair, "f") }

func (a *Adapter) handleTicker(pair string, payload json.RawMessage) error {
	var v []float64
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	if funding(pair) {
		if len(v) < 13 {
			return fmt.Errorf("short funding ticker: %d fields", len(v))
		}
		a.Publish(market.KindTicker, &market.Ticker{
			Pair: pair, Bid: v[1], BidSize: v[3], Ask: v[4], AskSize: v[6],
			Last: v[9], Vol: v[10], High: v[11], Low: v[12],
		})
		return nil
	}
	if len(v) < 10 {
		return fmt.Errorf("short ticker: %d fields", len(v))
	}
	a.Publish(market.KindTicker, &market.Ticker{
		Pair: pair, Bid: v[0], BidSize: v[1], Ask: v[2], AskSize: v[3],
		Last: v[6], Vol: v[7], High: v[8], Low: v[9],
	})
	return nil
}

func (a *Adapter) handleTrades(pair string, frame []json.RawMessage) error {
	// only "te"/"fte" execution updates carry a single trade; the snapshot
	// on subscribe and "tu" confirmations are skipped like upstream does
	if len(frame) < 3 {
		return nil
	}
	var kind string
	if err := json.Unmarshal(frame[1], &kind); err != nil {
		return nil
	}
	if kind != "te" && kind != "fte" {
		return nil
	}
	var v []float64
	if err := json.Unmarshal(frame[2], &v); err != nil {
		return err
	}
	if len(v) < 4 {
		return fmt.Errorf("short trade: %d fields", len(v))
	}
	trade := &market.Trade{
		Pair:      pair,
		TID:       fmt.Sprintf("%.0f", v[0]),
		Amount:    v[2],
		Price:     v[3],
		TradeTime: time.UnixMilli(int64(v[1])).UTC(),
	}
	if trade.Amount >= 0 {
		trade.Direction = "buy"
	} else {
		trade.Direction = "sell"
	}
	a.Publish(market.KindTrades, trade)
	return nil
}

func (a *Adapter) handleCandles(pair string, payload json.RawMessage) error {
	var rows [][]float64
	if err := json.Unmarshal(payload, &rows); err != nil {
		// single candle update
		var row []float64
		if err := json.Unmarshal(payload, &row); err != nil {
			return err
		}
		rows = [][]float64{row}
	}
	for _, v := range rows {
		if len(v) < 6 {
			continue
		}
		a.Publish(market.KindKline, &market.Kline{
			Pair:      pair,
			StartTime: time.UnixMilli(int64(v[0])).UTC(),
			Open:      v[1],
			Close:     v[2],
			High:      v[3],
			Low:       v[4],
			Vol:       v[5],
		})
	}
	return nil
}

func (a *Adapter) handleBook(pair string, payload json.RawMessage) error {
	var rows [][]float64
	if err := json.Unmarshal(payload, &rows); err == nil {
		// snapshot frame: replace the book wholesale
		if funding(pair) {
			book := orderbook.NewFundingBook(pair, a.BookLimit())
			for _, row := range rows {
				if len(row) == 4 {
					book.Update(row[0], int(row[1]), int(row[2]), row[3])
				}
			}
			a.SetBook(pair, book)
		} else {
			book := orderbook.NewTradingBook(pair, a.BookLimit())
			for _, row := range rows {
				if len(row) == 3 {
					book.Update(row[0], int(row[1]), row[2])
				}
			}
			a.SetBook(pair, book)
		}
		return nil
	}

	var row []float64
	if err := json.Unmarshal(payload, &row); err != nil {
		return fmt.Errorf("malformed book frame: %w", err)
	}
	switch book := a.Book(pair).(type) {
	case *orderbook.FundingBook:
		if len(row) == 4 {
			book.Update(row[0], int(row[1]), int(row[2]), row[3])
		}
	case *orderbook.TradingBook:
		if len(row) == 3 {
			book.Update(row[0], int(row[1]), row[2])
		}
	default:
		// delta before snapshot: upstream occasionally reorders, skip
		log.Debug().Str("pair", pair).Msg("book delta before snapshot, skipped")
	}
	return nil
}
