package hitbtc

import (
	"context"
	"testing"

	"mdtunnel/internal/exchange"
	"mdtunnel/internal/market"
	"mdtunnel/internal/session"
	"mdtunnel/internal/tunnel"
)

func newAdapter(t *testing.T) (*Adapter, *tunnel.Tunnel) {
	t.Helper()
	tn := tunnel.New(0)
	a, err := New(exchange.Deps{
		Tunnel:    tn,
		Symbols:   []string{"BTCUSD"},
		BookLimit: 10,
		Session:   session.Config{URL: "ws://127.0.0.1:1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return a, tn
}

func dispatch(t *testing.T, a *Adapter, frames ...string) {
	t.Helper()
	for _, f := range frames {
		if err := a.dispatch(context.Background(), []byte(f)); err != nil {
			t.Fatalf("dispatch(%s): %v", f, err)
		}
	}
}

func TestDispatchTicker(t *testing.T) {
	a, tn := newAdapter(t)
	dispatch(t, a, `{"method":"ticker","params":{"symbol":"BTCUSD","ask":"3951.2","bid":"3950.8","last":"3951.0","open":"3900","low":"3880","high":"4000","volume":"120","volumeQuote":"470000","timestamp":"2019-03-01T12:00:00.000Z"}}`)
	tk, err := tn.GetBlocking(context.Background(), "hitbtc|ticker")
	if err != nil {
		t.Fatal(err)
	}
	ticker := tk.Payload.(*market.Ticker)
	if ticker.Ask != 3951.2 || ticker.Bid != 3950.8 || ticker.QuoteVol != 470000 {
		t.Errorf("ticker = %+v", ticker)
	}
}

func TestDispatchTrades(t *testing.T) {
	a, tn := newAdapter(t)
	dispatch(t, a, `{"method":"updateTrades","params":{"symbol":"BTCUSD","data":[{"id":54469456,"price":"3951.0","quantity":"0.054","side":"buy","timestamp":"2019-03-01T12:00:01.000Z"}]}}`)
	tr, err := tn.GetBlocking(context.Background(), "hitbtc|trades")
	if err != nil {
		t.Fatal(err)
	}
	trade := tr.Payload.(*market.Trade)
	if trade.TID != "54469456" || trade.Direction != "buy" || trade.TradeTime.IsZero() {
		t.Errorf("trade = %+v", trade)
	}
}

func TestOrderbookSnapshotThenDelta(t *testing.T) {
	a, _ := newAdapter(t)
	dispatch(t, a,
		`{"method":"snapshotOrderbook","params":{"symbol":"BTCUSD","ask":[{"price":"101","size":"2"},{"price":"102","size":"3"}],"bid":[{"price":"100","size":"1"}]}}`,
		`{"method":"updateOrderbook","params":{"symbol":"BTCUSD","ask":[{"price":"101","size":"0"}],"bid":[]}}`,
	)
	snap := a.Book("BTCUSD").Snapshot()
	if len(snap.Asks) != 1 || snap.Asks[0].Price != 102 || snap.Asks[0].Amount != 3 {
		t.Errorf("asks = %+v, want [{102 3}]", snap.Asks)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 100 || snap.Bids[0].Amount != 1 {
		t.Errorf("bids = %+v, want [{100 1}]", snap.Bids)
	}
}

func TestUpdateBeforeSnapshotSkipped(t *testing.T) {
	a, _ := newAdapter(t)
	// upstream occasionally delivers an update first; must not panic
	dispatch(t, a, `{"method":"updateOrderbook","params":{"symbol":"BTCUSD","ask":[{"price":"101","size":"1"}],"bid":[]}}`)
	if a.Book("BTCUSD") != nil {
		t.Fatal("no book should exist before a snapshot")
	}
}

func TestSnapshotReplacesBook(t *testing.T) {
	a, _ := newAdapter(t)
	dispatch(t, a,
		`{"method":"snapshotOrderbook","params":{"symbol":"BTCUSD","ask":[{"price":"101","size":"2"}],"bid":[]}}`,
		`{"method":"snapshotOrderbook","params":{"symbol":"BTCUSD","ask":[{"price":"105","size":"9"}],"bid":[]}}`,
	)
	snap := a.Book("BTCUSD").Snapshot()
	if len(snap.Asks) != 1 || snap.Asks[0].Price != 105 {
		t.Errorf("snapshot should replace prior state: %+v", snap.Asks)
	}
}

func TestAckIgnored(t *testing.T) {
	a, tn := newAdapter(t)
	dispatch(t, a, `{"jsonrpc":"2.0","result":true,"id":1}`)
	for _, key := range []string{"hitbtc|ticker", "hitbtc|trades"} {
		if tn.Len(key) != 0 {
			t.Errorf("ack should not produce records for %s", key)
		}
	}
}
