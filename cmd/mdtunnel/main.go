package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mdtunnel/internal/config"
	"mdtunnel/internal/exchange"
	"mdtunnel/internal/exchange/binance"
	"mdtunnel/internal/exchange/bitfinex"
	"mdtunnel/internal/exchange/hitbtc"
	"mdtunnel/internal/logger"
	"mdtunnel/internal/persist"
	"mdtunnel/internal/session"
	"mdtunnel/internal/storage"
	"mdtunnel/internal/storage/mongo"
	"mdtunnel/internal/storage/postgres"
	"mdtunnel/internal/storage/rediscache"
	"mdtunnel/internal/storage/sqlite"
	"mdtunnel/internal/tunnel"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger.Setup(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := buildStore(ctx, cfg)
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(cctx); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	var cache *rediscache.Cache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		cache = rediscache.New(rdb, cfg.Redis.Prefix, cfg.RedisTTL())
		defer rdb.Close()
	}

	tn := tunnel.New(cfg.Tunnel.MaxSize)

	worker := persist.NewWorker(tn, store, cache, cfg.Persist.BatchSize)
	supervisor := persist.NewSupervisor(tn, worker, persist.SupervisorConfig{
		ScanInterval:   cfg.ScanInterval(),
		WorkersDepth:   cfg.Persist.WorkersDepth,
		WorkersDefault: cfg.Persist.WorkersDefault,
	})

	adapters := buildAdapters(cfg, tn)
	if len(adapters) == 0 {
		log.Fatal().Msg("no exchange adapters constructed")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.Run(ctx)
	}()
	for _, a := range adapters {
		wg.Add(1)
		go func(a exchange.Adapter) {
			defer wg.Done()
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("exchange", a.Name()).Msg("adapter exited")
			}
		}(a)
	}

	log.Info().
		Str("config", *configPath).
		Str("backend", cfg.Storage.Backend).
		Int("exchanges", len(adapters)).
		Int("batch_size", cfg.Persist.BatchSize).
		Msg("mdtunnel started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()
}

func buildStore(ctx context.Context, cfg *config.Config) storage.Store {
	switch cfg.Storage.Backend {
	case "mongo":
		store, err := mongo.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database,
			uint64(cfg.Storage.Mongo.PoolSize))
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect failed")
		}
		return store
	case "postgres":
		store, err := postgres.New(cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.PoolSize)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		return store
	case "sqlite":
		store, err := sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("sqlite open failed")
		}
		return store
	default:
		log.Fatal().Str("backend", cfg.Storage.Backend).Msg("unknown storage backend")
		return nil
	}
}

func buildAdapters(cfg *config.Config, tn *tunnel.Tunnel) []exchange.Adapter {
	var adapters []exchange.Adapter
	for name, ex := range cfg.Exchanges {
		if !ex.Enabled {
			log.Warn().Str("exchange", name).Msg("disabled by config")
			continue
		}
		deps := exchange.Deps{
			Tunnel:           tn,
			Symbols:          ex.Symbols,
			BookLimit:        cfg.Orderbook.Level,
			SnapshotInterval: cfg.SnapshotInterval(),
			Session: session.Config{
				URL:               ex.WsURL,
				ReconnectInterval: cfg.ReconnectInterval(),
				DialTimeout:       cfg.DialTimeout(),
				ReadTimeout:       cfg.ReadTimeout(),
				PingInterval:      cfg.PingInterval(),
				Retry:             cfg.RetryOnConnectLost(),
			},
		}

		var (
			a   exchange.Adapter
			err error
		)
		switch name {
		case "binance":
			a, err = binance.New(deps)
		case "bitfinex":
			a, err = bitfinex.New(deps)
		case "hitbtc":
			a, err = hitbtc.New(deps)
		default:
			log.Warn().Str("exchange", name).Msg("no adapter for exchange")
			continue
		}
		if err != nil {
			// configuration error at adapter construction is fatal
			log.Fatal().Err(err).Str("exchange", name).Msg("adapter construction failed")
		}
		adapters = append(adapters, a)
	}
	return adapters
}
