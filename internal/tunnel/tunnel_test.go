package tunnel

import (
	"context"
	"testing"
	"time"

	"mdtunnel/internal/market"
)

func ticker(ex string, last float64) market.Envelope {
	return market.Envelope{
		Exchange: ex,
		Kind:     market.KindTicker,
		Payload:  &market.Ticker{Pair: "btcusdt", Last: last},
	}
}

func TestFIFOPerKey(t *testing.T) {
	tn := New(0)
	for _, last := range []float64{1, 2, 3} {
		tn.Put(ticker("binance", last))
	}

	ctx := context.Background()
	for _, want := range []float64{1, 2, 3} {
		env, err := tn.GetBlocking(ctx, "binance|ticker")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got := env.Payload.(*market.Ticker).Last; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestLazyKeyCreationAndKeys(t *testing.T) {
	tn := New(0)
	if len(tn.Keys()) != 0 {
		t.Fatal("fresh tunnel should have no keys")
	}
	tn.Put(ticker("binance", 1))
	tn.Put(ticker("bitfinex", 2))
	keys := tn.Keys()
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want 2 entries", keys)
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	tn := New(0)
	done := make(chan float64, 1)
	go func() {
		env, err := tn.GetBlocking(context.Background(), "binance|ticker")
		if err != nil {
			return
		}
		done <- env.Payload.(*market.Ticker).Last
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("get returned before put")
	default:
	}

	tn.Put(ticker("binance", 42))
	select {
	case got := <-done:
		if got != 42 {
			t.Errorf("got %v, want 42", got)
		}
	case <-time.After(time.Second):
		t.Fatal("get did not wake up")
	}
}

func TestGetCancelled(t *testing.T) {
	tn := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tn.GetBlocking(ctx, "binance|ticker"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestPutBlockingBounded(t *testing.T) {
	tn := New(2)
	ctx := context.Background()
	if err := tn.PutBlocking(ctx, ticker("binance", 1)); err != nil {
		t.Fatal(err)
	}
	if err := tn.PutBlocking(ctx, ticker("binance", 2)); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- tn.PutBlocking(ctx, ticker("binance", 3))
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-blocked:
		t.Fatal("put should block on a full bounded queue")
	default:
	}

	if _, err := tn.GetBlocking(ctx, "binance|ticker"); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("blocked put failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked put did not wake up")
	}
}

func TestPutNeverRefusesPastBound(t *testing.T) {
	tn := New(2)
	for i := 0; i < 10; i++ {
		tn.Put(ticker("binance", float64(i)))
	}
	if got := tn.Len("binance|ticker"); got != 10 {
		t.Fatalf("len = %d, want 10", got)
	}
}

func TestBatchDrainScenario(t *testing.T) {
	// 35 records, batch size 30: first drain returns exactly 30, second
	// drain blocks until 5 more arrive.
	tn := New(0)
	for i := 0; i < 35; i++ {
		tn.Put(ticker("binance", float64(i)))
	}

	ctx := context.Background()
	drain := func(n int) []market.Envelope {
		batch := make([]market.Envelope, 0, n)
		for len(batch) < n {
			env, err := tn.GetBlocking(ctx, "binance|ticker")
			if err != nil {
				t.Fatalf("drain: %v", err)
			}
			batch = append(batch, env)
		}
		return batch
	}

	first := drain(30)
	if got := first[29].Payload.(*market.Ticker).Last; got != 29 {
		t.Errorf("first batch out of order: last item %v", got)
	}
	if got := tn.Len("binance|ticker"); got != 5 {
		t.Fatalf("after first drain len = %d, want 5", got)
	}

	second := make(chan []market.Envelope, 1)
	go func() { second <- drain(30) }()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-second:
		t.Fatal("second drain should block at 5 of 30")
	default:
	}

	for i := 35; i < 60; i++ {
		tn.Put(ticker("binance", float64(i)))
	}
	select {
	case batch := <-second:
		if got := batch[0].Payload.(*market.Ticker).Last; got != 30 {
			t.Errorf("second batch starts at %v, want 30", got)
		}
	case <-time.After(time.Second):
		t.Fatal("second drain did not complete")
	}
}
