// Package store persists vector indexes keyed by the fingerprint of the
// source document URL.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/xhad/docqa/pkg/index"
)

// Cache loads and saves one index per document URL. A missing entry is not
// an error. Save replaces any previous entry atomically: a concurrent Load
// sees either the old or the new index, never a partial one.
type Cache interface {
	Load(ctx context.Context, url string) (*index.Index, bool, error)
	Save(ctx context.Context, idx *index.Index, url string) error
	Close() error
}

// Fingerprint is the hex SHA-256 of the URL. It depends on the URL alone,
// so a changed document behind the same URL keeps hitting the old entry.
func Fingerprint(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// CacheError reports a storage or decode failure. Callers treat it as a
// miss.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type StoreConfig struct {
	Backend    string
	Dir        string // file backend
	Path       string // sqlite database file
	ConnString string // postgres
	TableName  string // postgres table prefix
}

// Open returns the cache selected by config.Backend.
func Open(ctx context.Context, config StoreConfig) (Cache, error) {
	switch config.Backend {
	case "", BackendFile:
		return NewFileCache(config.Dir)
	case BackendSQLite:
		return NewSQLiteCache(ctx, config.Path)
	case BackendPostgres:
		return NewPGVectorCache(ctx, PGVectorConfig{ConnString: config.ConnString, TableName: config.TableName})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}
