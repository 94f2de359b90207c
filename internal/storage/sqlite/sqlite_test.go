package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mdtunnel/internal/market"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestKlineBatchDedupLastWriteWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	start := time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []market.Envelope{
		{Exchange: "binance", Kind: market.KindKline, Payload: &market.Kline{
			Pair: "btcusdt", StartTime: start, Close: 100,
		}},
		{Exchange: "binance", Kind: market.KindKline, Payload: &market.Kline{
			Pair: "btcusdt", StartTime: start, Close: 105,
		}},
	}
	if err := s.BulkWrite(ctx, "binance0kline", batch); err != nil {
		t.Fatalf("BulkWrite failed: %v", err)
	}

	docs, err := s.Docs(ctx, "binance0kline")
	if err != nil {
		t.Fatalf("Docs failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1 (deduped)", len(docs))
	}
	if docs[0]["close"].(float64) != 105 {
		t.Errorf("close = %v, want 105 (last write wins)", docs[0]["close"])
	}
}

func TestTradesAppendOnly(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	batch := []market.Envelope{
		{Exchange: "binance", Kind: market.KindTrades, Payload: &market.Trade{Pair: "btcusdt", TID: "7", Price: 100}},
		{Exchange: "binance", Kind: market.KindTrades, Payload: &market.Trade{Pair: "btcusdt", TID: "7", Price: 100}},
	}
	if err := s.BulkWrite(ctx, "binance0trades", batch); err != nil {
		t.Fatalf("BulkWrite failed: %v", err)
	}

	n, err := s.Count(ctx, "binance0trades")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d rows, want 2 (full history kept)", n)
	}
}

func TestSeparateBarsNotDeduped(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	start := time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []market.Envelope{
		{Exchange: "binance", Kind: market.KindKline, Payload: &market.Kline{Pair: "btcusdt", StartTime: start}},
		{Exchange: "binance", Kind: market.KindKline, Payload: &market.Kline{Pair: "btcusdt", StartTime: start.Add(time.Minute)}},
		{Exchange: "binance", Kind: market.KindKline, Payload: &market.Kline{Pair: "ethusdt", StartTime: start}},
	}
	if err := s.BulkWrite(ctx, "binance0kline", batch); err != nil {
		t.Fatalf("BulkWrite failed: %v", err)
	}

	n, err := s.Count(ctx, "binance0kline")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("got %d rows, want 3", n)
	}
}

func TestInvalidCollectionRejected(t *testing.T) {
	s := newStore(t)
	err := s.BulkWrite(context.Background(), `bad"name`, []market.Envelope{
		{Exchange: "x", Kind: market.KindTicker, Payload: &market.Ticker{Pair: "p"}},
	})
	if err == nil {
		t.Fatal("expected error for invalid collection name")
	}
}
