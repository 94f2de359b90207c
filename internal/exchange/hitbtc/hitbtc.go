// Package hitbtc streams JSON-RPC style market data. Dispatch keys off the
// method name; order book deltas carry an explicit side (separate ask/bid
// lists), so the books are the side-flag variant.
package hitbtc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"mdtunnel/internal/exchange"
	"mdtunnel/internal/market"
	"mdtunnel/internal/orderbook"
)

type Adapter struct {
	*exchange.Base
}

func New(deps exchange.Deps) (*Adapter, error) {
	base, err := exchange.NewBase("hitbtc", deps)
	if err != nil {
		return nil, err
	}
	a := &Adapter{Base: base}
	a.registerChannels()
	return a, nil
}

func (a *Adapter) registerChannels() {
	id := 1
	for _, sym := range a.Symbols() {
		for _, method := range []string{
			"subscribeTicker", "subscribeTrades", "subscribeCandles", "subscribeOrderbook",
		} {
			a.Session().Register(map[string]any{
				"method": method,
				"params": map[string]any{"symbol": sym},
				"id":     id,
			})
			id++
		}
	}
}

func (a *Adapter) Run(ctx context.Context) error {
	return a.RunLoops(ctx, a.dispatch)
}

type rpcMsg struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (a *Adapter) dispatch(_ context.Context, raw []byte) error {
	var msg rpcMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	switch msg.Method {
	case "":
		// subscribe ack
		return nil
	case "ticker":
		return a.handleTicker(msg.Params)
	case "snapshotTrades", "updateTrades":
		return a.handleTrades(msg.Params)
	case "snapshotCandles", "updateCandles":
		return a.handleCandles(msg.Params)
	case "snapshotOrderbook":
		return a.handleOrderbook(msg.Params, true)
	case "updateOrderbook":
		return a.handleOrderbook(msg.Params, false)
	default:
		log.Debug().Str("method", msg.Method).Msg("unknown hitbtc method, skipped")
		return nil
	}
}

type tickerParams struct {
	Symbol    string `json:"symbol"`
	Ask       string `json:"ask"`
	Bid       string `json:"bid"`
	Last      string `json:"last"`
	Open      string `json:"open"`
	Low       string `json:"low"`
	High      string `json:"high"`
	Volume    string `json:"volume"`
	VolumeQ   string `json:"volumeQuote"`
	Timestamp string `json:"timestamp"`
}

func (a *Adapter) handleTicker(params json.RawMessage) error {
	var p tickerParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	a.Publish(market.KindTicker, &market.Ticker{
		Pair:     p.Symbol,
		Ask:      f(p.Ask),
		Bid:      f(p.Bid),
		Last:     f(p.Last),
		Open:     f(p.Open),
		Low:      f(p.Low),
		High:     f(p.High),
		Vol:      f(p.Volume),
		QuoteVol: f(p.VolumeQ),
	})
	return nil
}

type tradesParams struct {
	Symbol string `json:"symbol"`
	Data   []struct {
		ID        int64  `json:"id"`
		Price     string `json:"price"`
		Quantity  string `json:"quantity"`
		Side      string `json:"side"`
		Timestamp string `json:"timestamp"`
	} `json:"data"`
}

func (a *Adapter) handleTrades(params json.RawMessage) error {
	var p tradesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	for _, item := range p.Data {
		a.Publish(market.KindTrades, &market.Trade{
			Pair:      p.Symbol,
			TID:       strconv.FormatInt(item.ID, 10),
			Price:     f(item.Price),
			Amount:    f(item.Quantity),
			Direction: item.Side,
			TradeTime: ts(item.Timestamp),
		})
	}
	return nil
}

type candlesParams struct {
	Symbol string `json:"symbol"`
	Data   []struct {
		Timestamp   string `json:"timestamp"`
		Open        string `json:"open"`
		Close       string `json:"close"`
		Min         string `json:"min"`
		Max         string `json:"max"`
		Volume      string `json:"volume"`
		VolumeQuote string `json:"volumeQuote"`
	} `json:"data"`
}

func (a *Adapter) handleCandles(params json.RawMessage) error {
	var p candlesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	for _, item := range p.Data {
		a.Publish(market.KindKline, &market.Kline{
			Pair:      p.Symbol,
			StartTime: ts(item.Timestamp),
			Open:      f(item.Open),
			Close:     f(item.Close),
			Low:       f(item.Min),
			High:      f(item.Max),
			Vol:       f(item.Volume),
			QuoteVol:  f(item.VolumeQuote),
		})
	}
	return nil
}

type bookParams struct {
	Symbol string      `json:"symbol"`
	Ask    []bookLevel `json:"ask"`
	Bid    []bookLevel `json:"bid"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (a *Adapter) handleOrderbook(params json.RawMessage, snapshot bool) error {
	var p bookParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	if snapshot {
		book := orderbook.NewSideFlagBook(p.Symbol, a.BookLimit())
		book.Initialize(levelMap(p.Ask), levelMap(p.Bid))
		a.SetBook(p.Symbol, book)
		return nil
	}
	book, _ := a.Book(p.Symbol).(*orderbook.SideFlagBook)
	if book == nil {
		log.Debug().Str("pair", p.Symbol).Msg("book update before snapshot, skipped")
		return nil
	}
	for _, lv := range p.Ask {
		book.Update(orderbook.Sell, f(lv.Price), f(lv.Size))
	}
	for _, lv := range p.Bid {
		book.Update(orderbook.Buy, f(lv.Price), f(lv.Size))
	}
	return nil
}

func levelMap(levels []bookLevel) map[float64]float64 {
	out := make(map[float64]float64, len(levels))
	for _, lv := range levels {
		out[f(lv.Price)] = f(lv.Size)
	}
	return out
}

func f(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}
