// Package mongo is the primary document-store backend. Writes go out as
// bulk operations with an unacknowledged write concern: the pipeline favors
// throughput over per-write acknowledgment.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"mdtunnel/internal/market"
	"mdtunnel/internal/storage"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	wc     *writeconcern.WriteConcern
}

func New(ctx context.Context, uri, database string, poolSize uint64) (*Store, error) {
	opts := options.Client().ApplyURI(uri)
	if poolSize > 0 {
		opts.SetMaxPoolSize(poolSize)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		client: client,
		db:     client.Database(database),
		// not ack: w=0 with a short timeout, fire and forget
		wc: &writeconcern.WriteConcern{W: 0, WTimeout: 2 * time.Second},
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// BulkWrite executes one batch. Unordered except for kline collections,
// where operation order decides the final state of an upserted bar.
func (s *Store) BulkWrite(ctx context.Context, collection string, items []market.Envelope) error {
	ops, ordered := storage.BuildOps(collection, items)
	if len(ops) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		if op.Upsert {
			filter := bson.M{}
			for f, v := range op.Filter {
				filter[f] = v
			}
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(filter).
				SetReplacement(bson.M(op.Doc)).
				SetUpsert(true))
		} else {
			models = append(models, mongo.NewInsertOneModel().SetDocument(bson.M(op.Doc)))
		}
	}

	coll := s.db.Collection(collection, options.Collection().SetWriteConcern(s.wc))
	result, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(ordered))
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			// partial failure: log per-document detail, keep the pipeline
			// moving, never retry the failed documents
			for _, we := range bwe.WriteErrors {
				log.Warn().
					Str("collection", collection).
					Int("index", we.Index).
					Int("code", we.Code).
					Str("message", we.Message).
					Msg("bulk write error")
			}
			return nil
		}
		return err
	}
	log.Debug().
		Str("collection", collection).
		Int64("inserted", result.InsertedCount).
		Int64("upserted", result.UpsertedCount).
		Int64("modified", result.ModifiedCount).
		Msg("bulk write done")
	return nil
}

var _ storage.Store = (*Store)(nil)
