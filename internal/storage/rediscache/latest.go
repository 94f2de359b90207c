// Package rediscache keeps the most recent ticker and depth document per
// stream in a redis hash, so dashboards can read current market state
// without touching the document store. Best effort only: cache failures are
// logged at debug level and never slow the pipeline down.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mdtunnel/internal/market"
)

type Cache struct {
	rdb       *redis.Client
	keyLatest string
	ttl       time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "mdtunnel"
	}
	return &Cache{
		rdb:       rdb,
		keyLatest: prefix + ":latest",
		ttl:       ttl,
	}
}

// Update stores the latest document for ticker and depth records. Other
// kinds have no "current value" semantics and are skipped.
func (c *Cache) Update(ctx context.Context, env market.Envelope) {
	if env.Kind != market.KindTicker && env.Kind != market.KindDepth {
		return
	}
	doc := env.Payload.Document()
	b, err := json.Marshal(doc)
	if err != nil {
		return
	}

	// field = "binance|ticker|btcusdt" -> json
	field := env.RoutingKey() + "|" + env.Payload.PairName()
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, c.keyLatest, field, string(b))
	if c.ttl > 0 {
		pipe.Expire(ctx, c.keyLatest, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Debug().Err(err).Str("field", field).Msg("latest cache update failed")
	}
}
