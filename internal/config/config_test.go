package config

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const valid = `
[storage]
backend = "sqlite"

[exchanges.binance]
enabled = true
ws_url = "wss://stream.binance.com:9443/stream"
symbols = ["btcusdt"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(write(t, valid))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Persist.BatchSize != 30 {
		t.Errorf("batch_size default = %d, want 30", cfg.Persist.BatchSize)
	}
	if cfg.Orderbook.Level != 25 {
		t.Errorf("orderbook level default = %d, want 25", cfg.Orderbook.Level)
	}
	if cfg.Persist.WorkersDepth <= cfg.Persist.WorkersDefault {
		t.Errorf("depth pools should default larger: %d vs %d",
			cfg.Persist.WorkersDepth, cfg.Persist.WorkersDefault)
	}
}

func TestRetryDefaultsOnWhenOmitted(t *testing.T) {
	cfg, err := Load(write(t, valid))
	if err != nil {
		t.Fatal(err)
	}
	// a transient dial failure must not kill an adapter just because the
	// config has no [ws] section
	if !cfg.RetryOnConnectLost() {
		t.Fatal("retry_on_connect_lost must default to true")
	}
}

func TestRetryExplicitOffPreserved(t *testing.T) {
	cfg, err := Load(write(t, `
[ws]
retry_on_connect_lost = false
`+valid))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetryOnConnectLost() {
		t.Fatal("explicit retry_on_connect_lost = false must stick")
	}
}

func TestEnabledExchangeNeedsURL(t *testing.T) {
	_, err := Load(write(t, `
[storage]
backend = "sqlite"

[exchanges.binance]
enabled = true
symbols = ["btcusdt"]
`))
	if err == nil {
		t.Fatal("missing ws_url must be a fatal configuration error")
	}
}

func TestPostgresBackendNeedsDSN(t *testing.T) {
	_, err := Load(write(t, `
[storage]
backend = "postgres"

[exchanges.binance]
enabled = true
ws_url = "wss://x"
symbols = ["btcusdt"]
`))
	if err == nil {
		t.Fatal("postgres backend without dsn must fail")
	}
}

func TestNoExchangeEnabled(t *testing.T) {
	_, err := Load(write(t, `
[storage]
backend = "sqlite"
`))
	if err == nil {
		t.Fatal("expected error when no exchange is enabled")
	}
}

func TestUnknownBackendRejected(t *testing.T) {
	_, err := Load(write(t, `
[storage]
backend = "cassandra"

[exchanges.binance]
enabled = true
ws_url = "wss://x"
symbols = ["btcusdt"]
`))
	if err == nil {
		t.Fatal("unknown backend must fail")
	}
}
