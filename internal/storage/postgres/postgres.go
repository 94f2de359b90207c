// Package postgres mirrors the sqlite backend on a shared server: one jsonb
// table per collection, natural-key upserts via ON CONFLICT.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rs/zerolog/log"

	"mdtunnel/internal/market"
	"mdtunnel/internal/storage"
)

type Store struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]bool
}

func New(dsn string, poolSize int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if poolSize <= 0 {
		poolSize = 10
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize / 2)
	return &Store{db: db, ensured: make(map[string]bool)}, nil
}

func (s *Store) Close(context.Context) error { return s.db.Close() }

func (s *Store) ensureTable(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return nil
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %q (
  id BIGSERIAL PRIMARY KEY,
  nk TEXT,
  doc JSONB NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_nk ON %q(nk) WHERE nk IS NOT NULL;
`, collection, collection, collection))
	if err != nil {
		return err
	}
	s.ensured[collection] = true
	return nil
}

func (s *Store) BulkWrite(ctx context.Context, collection string, items []market.Envelope) error {
	ops, _ := storage.BuildOps(collection, items)
	if len(ops) == 0 {
		return nil
	}
	if err := s.ensureTable(ctx, collection); err != nil {
		return err
	}

	insert := fmt.Sprintf(`INSERT INTO %q (nk, doc, created_at) VALUES (NULL, $1, $2)`, collection)
	upsert := fmt.Sprintf(`INSERT INTO %q (nk, doc, created_at) VALUES ($1, $2, $3)
ON CONFLICT (nk) WHERE nk IS NOT NULL DO UPDATE SET doc = excluded.doc, created_at = excluded.created_at`, collection)

	now := time.Now().UnixMilli()
	for i, op := range ops {
		raw, err := json.Marshal(op.Doc)
		if err != nil {
			log.Warn().Str("collection", collection).Int("index", i).Err(err).
				Msg("document not serializable, skipped")
			continue
		}
		if op.Upsert {
			nk := storage.NaturalKeyString(op.KeyFields, op.Filter)
			_, err = s.db.ExecContext(ctx, upsert, nk, string(raw), now)
		} else {
			_, err = s.db.ExecContext(ctx, insert, string(raw), now)
		}
		if err != nil {
			log.Warn().Str("collection", collection).Int("index", i).Err(err).
				Msg("write error")
		}
	}
	return nil
}

func validCollection(name string) error {
	if name == "" {
		return fmt.Errorf("empty collection name")
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("invalid collection name %q", name)
		}
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
