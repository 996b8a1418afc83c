package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/pkg/index"
)

type PGVectorConfig struct {
	ConnString string
	TableName  string
}

// PGVectorCache stores each index as one row in <table>_entries and one
// row per chunk in <table>_chunks. The embedding column is untyped so
// indexes of any dimension share the table.
type PGVectorCache struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
}

func NewPGVectorCache(ctx context.Context, config PGVectorConfig) (*PGVectorCache, error) {
	if config.TableName == "" {
		config.TableName = "docqa_index"
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	c := &PGVectorCache{
		config: config,
		pool:   pool,
	}

	if err := c.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return c, nil
}

func (c *PGVectorCache) entries() string { return c.config.TableName + "_entries" }
func (c *PGVectorCache) chunks() string  { return c.config.TableName + "_chunks" }

func (c *PGVectorCache) initialize(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createEntries := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			fingerprint TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			model TEXT NOT NULL,
			dim INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, c.entries())
	if _, err := c.pool.Exec(ctx, createEntries); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			fingerprint TEXT NOT NULL REFERENCES %s (fingerprint) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector NOT NULL,
			PRIMARY KEY (fingerprint, position)
		)`, c.chunks(), c.entries())
	if _, err := c.pool.Exec(ctx, createChunks); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// Load reads the entry and its chunks from one repeatable-read snapshot.
func (c *PGVectorCache) Load(ctx context.Context, url string) (*index.Index, bool, error) {
	key := Fingerprint(url)

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}
	defer tx.Rollback(ctx)

	var (
		model      string
		chunkCount int
	)
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT model, chunk_count FROM %s WHERE fingerprint = $1`, c.entries()),
		key,
	).Scan(&model, &chunkCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}

	rows, err := tx.Query(ctx,
		fmt.Sprintf(`SELECT position, content, embedding FROM %s WHERE fingerprint = $1 ORDER BY position`, c.chunks()),
		key,
	)
	if err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}
	defer rows.Close()

	entries := make([]index.Entry, 0, chunkCount)
	for rows.Next() {
		var (
			chunk models.Chunk
			vec   pgvector.Vector
		)
		if err := rows.Scan(&chunk.Position, &chunk.Content, &vec); err != nil {
			return nil, false, &CacheError{Op: "load", Key: key, Err: fmt.Errorf("failed to scan row: %w", err)}
		}
		entries = append(entries, index.Entry{Chunk: chunk, Vector: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}
	if len(entries) != chunkCount {
		return nil, false, &CacheError{
			Op:  "load",
			Key: key,
			Err: fmt.Errorf("entry lists %d chunks, found %d", chunkCount, len(entries)),
		}
	}

	idx, err := index.FromEntries(model, entries)
	if err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}
	return idx, true, nil
}

// Save replaces every row for the URL inside one transaction.
func (c *PGVectorCache) Save(ctx context.Context, idx *index.Index, url string) error {
	key := Fingerprint(url)
	fail := func(err error) error { return &CacheError{Op: "save", Key: key, Err: err} }

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	entries := idx.Entries()

	upsert := fmt.Sprintf(`
		INSERT INTO %s (fingerprint, url, model, dim, chunk_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (fingerprint) DO UPDATE SET
			url = EXCLUDED.url,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = EXCLUDED.updated_at`,
		c.entries())
	if _, err := tx.Exec(ctx, upsert, key, sanitizeText(url), idx.Model(), idx.Dim(), len(entries)); err != nil {
		return fail(fmt.Errorf("failed to upsert entry: %w", err))
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE fingerprint = $1`, c.chunks()), key); err != nil {
		return fail(fmt.Errorf("failed to delete chunks: %w", err))
	}

	insert := fmt.Sprintf(`INSERT INTO %s (fingerprint, position, content, embedding) VALUES ($1, $2, $3, $4)`, c.chunks())
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insert, key, e.Chunk.Position, sanitizeText(e.Chunk.Content), pgvector.NewVector(e.Vector))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fail(fmt.Errorf("failed to insert chunks: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (c *PGVectorCache) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// sanitizeText drops invalid UTF-8 and NUL bytes, which postgres text
// columns reject.
func sanitizeText(s string) string {
	if utf8.ValidString(s) && !strings.ContainsRune(s, 0) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == 0 {
			continue
		}
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
