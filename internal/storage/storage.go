// Package storage turns batches of canonical records into document-store
// writes. The insert-vs-upsert policy lives here: kline bars are deduped by
// natural key (a bar gets several partial updates before it closes), every
// other kind is appended so the full history survives.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mdtunnel/internal/market"
)

// Store is one document-store backend.
type Store interface {
	// BulkWrite persists one batch into collection. Partial failures are
	// the backend's to log; the returned error covers total failure only.
	BulkWrite(ctx context.Context, collection string, items []market.Envelope) error
	Close(ctx context.Context) error
}

// Op is one prepared write. Upsert ops replace the full matched document
// (last write wins within a bar).
type Op struct {
	Upsert    bool
	KeyFields []string
	Filter    map[string]any
	Doc       map[string]any
}

// BuildOps prepares the write list for one batch and reports whether the
// batch must execute ordered. Only kline collections upsert: operation order
// affects the final state of a given key there, so those run ordered; all
// other collections run unordered for throughput.
func BuildOps(collection string, items []market.Envelope) ([]Op, bool) {
	kline := strings.HasSuffix(collection, string(market.KindKline))
	ops := make([]Op, 0, len(items))
	for _, env := range items {
		doc := env.Payload.Document()
		key := env.Payload.NaturalKey()
		if !kline || len(key) == 0 {
			ops = append(ops, Op{Doc: doc})
			continue
		}
		filter := make(map[string]any, len(key))
		for _, f := range key {
			filter[f] = doc[f]
		}
		ops = append(ops, Op{Upsert: true, KeyFields: key, Filter: filter, Doc: doc})
	}
	return ops, kline
}

// NaturalKeyString flattens an upsert filter into one comparable string for
// the SQL backends, joining values in the payload's declared field order.
func NaturalKeyString(keyFields []string, filter map[string]any) string {
	parts := make([]string, 0, len(keyFields))
	for _, f := range keyFields {
		parts = append(parts, formatKeyValue(filter[f]))
	}
	return strings.Join(parts, "|")
}

func formatKeyValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
