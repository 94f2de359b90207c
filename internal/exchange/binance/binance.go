// Package binance streams combined-stream market data. Depth messages are
// complete 20-level snapshots, so the books are full-replace.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mdtunnel/internal/exchange"
	"mdtunnel/internal/market"
	"mdtunnel/internal/orderbook"
)

var channels = (&exchange.PatternTable{}).
	MustAdd(`^(?P<pair>[a-z0-9]+)@(?P<type>[a-zA-Z0-9_]+)$`, map[string]market.Kind{
		"ticker":   market.KindTicker,
		"trade":    market.KindTrades,
		"kline_1m": market.KindKline,
		"depth20":  market.KindDepth,
	})

type Adapter struct {
	*exchange.Base
}

func New(deps exchange.Deps) (*Adapter, error) {
	base, err := exchange.NewBase("binance", deps)
	if err != nil {
		return nil, err
	}
	a := &Adapter{Base: base}
	a.registerChannels()
	return a, nil
}

func (a *Adapter) registerChannels() {
	params := make([]string, 0, len(a.Symbols())*4)
	for _, sym := range a.Symbols() {
		sym = strings.ToLower(sym)
		params = append(params,
			sym+"@ticker",
			sym+"@trade",
			sym+"@kline_1m",
			sym+"@depth20",
		)
	}
	a.Session().Register(map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	})
}

func (a *Adapter) Run(ctx context.Context) error {
	return a.RunLoops(ctx, a.dispatch)
}

type combinedMsg struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func (a *Adapter) dispatch(_ context.Context, raw []byte) error {
	var msg combinedMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	if msg.Stream == "" {
		// subscribe ack or other control frame
		return nil
	}
	pair, kind, ok := channels.Match(msg.Stream)
	if !ok {
		log.Debug().Str("stream", msg.Stream).Msg("unknown binance channel, skipped")
		return nil
	}
	switch kind {
	case market.KindTicker:
		return a.handleTicker(pair, msg.Data)
	case market.KindTrades:
		return a.handleTrade(pair, msg.Data)
	case market.KindKline:
		return a.handleKline(pair, msg.Data)
	case market.KindDepth:
		return a.handleDepth(pair, msg.Data)
	}
	return nil
}

type tickerMsg struct {
	Close   string `json:"c"`
	Open    string `json:"o"`
	High    string `json:"h"`
	Low     string `json:"l"`
	Vol     string `json:"v"`
	Quote   string `json:"q"`
	Bid     string `json:"b"`
	BidSize string `json:"B"`
	Ask     string `json:"a"`
	AskSize string `json:"A"`
}

func (a *Adapter) handleTicker(pair string, data []byte) error {
	var m tickerMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	a.Publish(market.KindTicker, &market.Ticker{
		Pair:     pair,
		Last:     f(m.Close),
		Open:     f(m.Open),
		High:     f(m.High),
		Low:      f(m.Low),
		Vol:      f(m.Vol),
		QuoteVol: f(m.Quote),
		Bid:      f(m.Bid),
		BidSize:  f(m.BidSize),
		Ask:      f(m.Ask),
		AskSize:  f(m.AskSize),
	})
	return nil
}

type tradeMsg struct {
	TID      int64  `json:"t"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	Time     int64  `json:"T"`
	IsMaker  bool   `json:"m"`
}

func (a *Adapter) handleTrade(pair string, data []byte) error {
	var m tradeMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	direction := "buy"
	if m.IsMaker {
		direction = "sell"
	}
	a.Publish(market.KindTrades, &market.Trade{
		Pair:      pair,
		TID:       strconv.FormatInt(m.TID, 10),
		Price:     f(m.Price),
		Amount:    f(m.Quantity),
		Direction: direction,
		TradeTime: time.UnixMilli(m.Time).UTC(),
	})
	return nil
}

type klineMsg struct {
	K struct {
		Start int64  `json:"t"`
		Open  string `json:"o"`
		Close string `json:"c"`
		High  string `json:"h"`
		Low   string `json:"l"`
		Vol   string `json:"v"`
		Quote string `json:"q"`
	} `json:"k"`
}

func (a *Adapter) handleKline(pair string, data []byte) error {
	var m klineMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	a.Publish(market.KindKline, &market.Kline{
		Pair:      pair,
		StartTime: time.UnixMilli(m.K.Start).UTC(),
		Open:      f(m.K.Open),
		Close:     f(m.K.Close),
		High:      f(m.K.High),
		Low:       f(m.K.Low),
		Vol:       f(m.K.Vol),
		QuoteVol:  f(m.K.Quote),
	})
	return nil
}

type depthMsg struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (a *Adapter) handleDepth(pair string, data []byte) error {
	var m depthMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	book, _ := a.Book(pair).(*orderbook.FullReplaceBook)
	if book == nil {
		book = orderbook.NewFullReplaceBook(pair, a.BookLimit())
		a.SetBook(pair, book)
	}
	book.Replace(levels(m.Bids), levels(m.Asks))
	return nil
}

func levels(raw [][2]string) []market.Level {
	out := make([]market.Level, 0, len(raw))
	for _, lv := range raw {
		out = append(out, market.Level{Price: f(lv[0]), Amount: f(lv[1])})
	}
	return out
}

func f(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
