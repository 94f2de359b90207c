// Package sqlite is a local single-file backend with the same collection
// semantics as the mongo store. Collections map to lazily created tables of
// JSON documents; upserts key on the flattened natural key.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog/log"

	"mdtunnel/internal/market"
	"mdtunnel/internal/storage"
)

type Store struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]bool
}

func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
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
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  nk TEXT,
  doc TEXT NOT NULL,
  created_at INTEGER NOT NULL
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

	insert := fmt.Sprintf(`INSERT INTO %q (nk, doc, created_at) VALUES (NULL, ?, ?)`, collection)
	upsert := fmt.Sprintf(`INSERT INTO %q (nk, doc, created_at) VALUES (?, ?, ?)
ON CONFLICT(nk) WHERE nk IS NOT NULL DO UPDATE SET doc = excluded.doc, created_at = excluded.created_at`, collection)

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

// Count reports the stored document count for a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := s.ensureTable(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, collection)).Scan(&n)
	return n, err
}

// Docs returns the stored documents for a collection in insertion order.
func (s *Store) Docs(ctx context.Context, collection string) ([]map[string]any, error) {
	if err := s.ensureTable(ctx, collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM %q ORDER BY id`, collection))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
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
