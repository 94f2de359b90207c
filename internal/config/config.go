package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	WS struct {
		ReconnectIntervalSec int `toml:"reconnect_interval_sec"`
		DialTimeoutSec       int `toml:"dial_timeout_sec"`
		ReadTimeoutSec       int `toml:"read_timeout_sec"`
		PingIntervalSec      int `toml:"ping_interval_sec"`
		// pointer so an omitted key defaults on while an explicit false
		// still disables the reconnect loop
		Retry *bool `toml:"retry_on_connect_lost"`
	} `toml:"ws"`

	Orderbook struct {
		Level               int `toml:"level"`
		SnapshotIntervalSec int `toml:"snapshot_interval_sec"`
	} `toml:"orderbook"`

	Persist struct {
		BatchSize       int `toml:"batch_size"`
		WorkersDepth    int `toml:"workers_depth"`
		WorkersDefault  int `toml:"workers_default"`
		ScanIntervalSec int `toml:"scan_interval_sec"`
	} `toml:"persist"`

	Tunnel struct {
		MaxSize int `toml:"max_size"`
	} `toml:"tunnel"`

	Storage struct {
		Backend string `toml:"backend"` // mongo | postgres | sqlite

		Mongo struct {
			URI      string `toml:"uri"`
			Database string `toml:"database"`
			PoolSize int    `toml:"pool_size"`
		} `toml:"mongo"`

		Postgres struct {
			DSN      string `toml:"dsn"`
			PoolSize int    `toml:"pool_size"`
		} `toml:"postgres"`

		SQLite struct {
			Path string `toml:"path"`
		} `toml:"sqlite"`
	} `toml:"storage"`

	Redis struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Prefix  string `toml:"prefix"`
		TTLSec  int    `toml:"ttl_sec"`
	} `toml:"redis"`

	Exchanges map[string]Exchange `toml:"exchanges"`
}

type Exchange struct {
	Enabled bool     `toml:"enabled"`
	WsURL   string   `toml:"ws_url"`
	Symbols []string `toml:"symbols"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.WS.ReconnectIntervalSec <= 0 {
		cfg.WS.ReconnectIntervalSec = 5
	}
	if cfg.WS.DialTimeoutSec <= 0 {
		cfg.WS.DialTimeoutSec = 10
	}
	if cfg.WS.ReadTimeoutSec <= 0 {
		cfg.WS.ReadTimeoutSec = 60
	}
	if cfg.WS.PingIntervalSec <= 0 {
		cfg.WS.PingIntervalSec = 25
	}
	if cfg.WS.Retry == nil {
		retry := true
		cfg.WS.Retry = &retry
	}
	if cfg.Orderbook.Level <= 0 {
		cfg.Orderbook.Level = 25
	}
	if cfg.Orderbook.SnapshotIntervalSec <= 0 {
		cfg.Orderbook.SnapshotIntervalSec = 5
	}
	if cfg.Persist.BatchSize <= 0 {
		cfg.Persist.BatchSize = 30
	}
	if cfg.Persist.WorkersDepth <= 0 {
		cfg.Persist.WorkersDepth = 3
	}
	if cfg.Persist.WorkersDefault <= 0 {
		cfg.Persist.WorkersDefault = 1
	}
	if cfg.Persist.ScanIntervalSec <= 0 {
		cfg.Persist.ScanIntervalSec = 60
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "mongo"
	}
	if cfg.Storage.Mongo.URI == "" {
		cfg.Storage.Mongo.URI = "mongodb://localhost:27017"
	}
	if cfg.Storage.Mongo.Database == "" {
		cfg.Storage.Mongo.Database = "mdtunnel"
	}
	if cfg.Storage.Mongo.PoolSize <= 0 {
		cfg.Storage.Mongo.PoolSize = 100
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/mdtunnel.db"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "mdtunnel"
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "mongo", "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn empty but backend is postgres")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	enabled := 0
	for name, ex := range cfg.Exchanges {
		if !ex.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(ex.WsURL) == "" {
			return fmt.Errorf("exchanges.%s.ws_url empty but enabled", name)
		}
		if len(ex.Symbols) == 0 {
			return fmt.Errorf("exchanges.%s.symbols empty but enabled", name)
		}
	}
	if enabled == 0 {
		return errors.New("no exchange enabled")
	}
	return nil
}

// Duration helpers keep the call sites readable.

func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.WS.ReconnectIntervalSec) * time.Second
}
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.WS.DialTimeoutSec) * time.Second
}
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.WS.ReadTimeoutSec) * time.Second
}
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.WS.PingIntervalSec) * time.Second
}
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Orderbook.SnapshotIntervalSec) * time.Second
}
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Persist.ScanIntervalSec) * time.Second
}
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSec) * time.Second
}

// RetryOnConnectLost reports whether lost connections are retried. On unless
// the config says retry_on_connect_lost = false.
func (c *Config) RetryOnConnectLost() bool {
	return c.WS.Retry == nil || *c.WS.Retry
}
