// Package persist drains the tunnel into the document store. One worker is
// one logical unit of concurrency bound permanently to one routing key; the
// supervisor discovers new keys at runtime and spawns worker pools for them.
package persist

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mdtunnel/internal/market"
	"mdtunnel/internal/storage"
	"mdtunnel/internal/storage/rediscache"
	"mdtunnel/internal/tunnel"
)

type Worker struct {
	tunnel    *tunnel.Tunnel
	store     storage.Store
	cache     *rediscache.Cache // optional
	batchSize int
}

func NewWorker(tn *tunnel.Tunnel, store storage.Store, cache *rediscache.Cache, batchSize int) *Worker {
	if batchSize <= 0 {
		batchSize = 30
	}
	return &Worker{tunnel: tn, store: store, cache: cache, batchSize: batchSize}
}

// Run loops forever: drain one full batch, write it, repeat. A failed batch
// is logged and dropped — at-least-once delivery with possible loss under
// sustained write failure is the accepted trade-off. Returns only when ctx
// is cancelled.
func (w *Worker) Run(ctx context.Context, key string) {
	collection := market.CollectionName(key)
	logger := log.With().Str("key", key).Str("collection", collection).Logger()
	logger.Info().Int("batch_size", w.batchSize).Msg("persistence worker started")

	for {
		batch, err := w.drain(ctx, key)
		if err != nil {
			logger.Info().Msg("persistence worker stopped")
			return
		}
		// one id per drained batch so success and failure logs correlate
		batchID := uuid.NewString()
		if err := w.store.BulkWrite(ctx, collection, batch); err != nil {
			logger.Error().Err(err).
				Str("batch_id", batchID).
				Int("count", len(batch)).
				Msg("bulk write failed, batch dropped")
			continue
		}
		logger.Debug().
			Str("batch_id", batchID).
			Int("count", len(batch)).
			Msg("batch persisted")
		if w.cache != nil {
			for _, env := range batch {
				w.cache.Update(ctx, env)
			}
		}
	}
}

// drain blocks until exactly batchSize records have arrived for key.
func (w *Worker) drain(ctx context.Context, key string) ([]market.Envelope, error) {
	batch := make([]market.Envelope, 0, w.batchSize)
	for len(batch) < w.batchSize {
		env, err := w.tunnel.GetBlocking(ctx, key)
		if err != nil {
			return nil, err
		}
		batch = append(batch, env)
	}
	return batch, nil
}
