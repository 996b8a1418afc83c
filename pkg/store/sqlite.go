package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xhad/docqa/pkg/index"
)

// SQLiteCache keeps serialized indexes in a single sqlite table.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	if path == "" {
		path = filepath.Join(DefaultDir, "cache.db")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS index_cache (
			fingerprint TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			model TEXT NOT NULL,
			payload BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Load(ctx context.Context, url string) (*index.Index, bool, error) {
	key := Fingerprint(url)

	var payload []byte
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM index_cache WHERE fingerprint = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}

	idx := &index.Index{}
	if err := idx.UnmarshalBinary(payload); err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}
	return idx, true, nil
}

func (c *SQLiteCache) Save(ctx context.Context, idx *index.Index, url string) error {
	key := Fingerprint(url)
	payload, err := idx.MarshalBinary()
	if err != nil {
		return &CacheError{Op: "save", Key: key, Err: err}
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO index_cache (fingerprint, url, model, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			url = excluded.url,
			model = excluded.model,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		key, url, idx.Model(), payload, time.Now().Unix())
	if err != nil {
		return &CacheError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
