package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/internal/testutil"
	"github.com/xhad/docqa/pkg/index"
	"github.com/xhad/docqa/pkg/store"
)

func sampleIndex(t *testing.T, texts ...string) *index.Index {
	t.Helper()
	idx := index.New("fake-embed")
	for i, text := range texts {
		require.NoError(t, idx.Add(models.Chunk{Position: i, Content: text}, testutil.Vector(text)))
	}
	return idx
}

func TestFingerprint(t *testing.T) {
	a := store.Fingerprint("https://example.com/policy.pdf")
	assert.Equal(t, a, store.Fingerprint("https://example.com/policy.pdf"))
	assert.NotEqual(t, a, store.Fingerprint("https://example.com/policy.pdf?"))
	assert.NotEqual(t, a, store.Fingerprint("https://example.com/policy.pdF"))
	assert.Len(t, a, 64)
}

type backend struct {
	name string
	open func(t *testing.T) store.Cache
}

func backends() []backend {
	b := []backend{
		{"file", func(t *testing.T) store.Cache {
			c, err := store.NewFileCache(t.TempDir())
			require.NoError(t, err)
			return c
		}},
		{"sqlite", func(t *testing.T) store.Cache {
			c, err := store.NewSQLiteCache(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
			require.NoError(t, err)
			return c
		}},
	}
	if dsn := os.Getenv("DOCQA_TEST_DATABASE_URL"); dsn != "" {
		b = append(b, backend{"postgres", func(t *testing.T) store.Cache {
			c, err := store.NewPGVectorCache(context.Background(), store.PGVectorConfig{
				ConnString: dsn,
				TableName:  "docqa_test",
			})
			require.NoError(t, err)
			return c
		}})
	}
	return b
}

func TestCache_MissIsNotError(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			c := b.open(t)
			defer c.Close()

			idx, ok, err := c.Load(context.Background(), "https://example.com/never-saved.pdf")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, idx)
		})
	}
}

func TestCache_RoundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			c := b.open(t)
			defer c.Close()
			ctx := context.Background()
			url := fmt.Sprintf("https://example.com/%s/round-trip.pdf", b.name)

			original := sampleIndex(t,
				"grace period for premium payment",
				"waiting period for pre-existing diseases",
				"maternity benefits are covered",
			)
			require.NoError(t, c.Save(ctx, original, url))

			loaded, ok, err := c.Load(ctx, url)
			require.NoError(t, err)
			require.True(t, ok)

			assert.Equal(t, original.Model(), loaded.Model())
			assert.Equal(t, original.Len(), loaded.Len())
			for _, q := range []string{"grace period", "maternity", "diseases"} {
				vec := testutil.Vector(q)
				assert.Equal(t, original.Search(vec, 2), loaded.Search(vec, 2), q)
			}
		})
	}
}

func TestCache_SaveOverwrites(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			c := b.open(t)
			defer c.Close()
			ctx := context.Background()
			url := fmt.Sprintf("https://example.com/%s/overwrite.docx", b.name)

			require.NoError(t, c.Save(ctx, sampleIndex(t, "one", "two", "three"), url))
			require.NoError(t, c.Save(ctx, sampleIndex(t, "replacement"), url))

			loaded, ok, err := c.Load(ctx, url)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []models.Chunk{{Position: 0, Content: "replacement"}}, loaded.Chunks())
		})
	}
}

func TestCache_ConcurrentSaveAndLoad(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			c := b.open(t)
			defer c.Close()
			ctx := context.Background()
			url := fmt.Sprintf("https://example.com/%s/race.eml", b.name)

			versions := []*index.Index{
				sampleIndex(t, "alpha", "beta"),
				sampleIndex(t, "gamma", "delta", "epsilon"),
			}
			require.NoError(t, c.Save(ctx, versions[0], url))

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, c.Save(ctx, versions[i%2], url))
				}(i)
				go func() {
					defer wg.Done()
					loaded, ok, err := c.Load(ctx, url)
					if !assert.NoError(t, err) || !assert.True(t, ok) {
						return
					}
					chunks := loaded.Chunks()
					assert.True(t,
						assert.ObjectsAreEqual(versions[0].Chunks(), chunks) ||
							assert.ObjectsAreEqual(versions[1].Chunks(), chunks),
						"loaded a partial index: %v", chunks)
				}()
			}
			wg.Wait()
		})
	}
}

func TestFileCache_CorruptEntryIsCacheError(t *testing.T) {
	dir := t.TempDir()
	c, err := store.NewFileCache(dir)
	require.NoError(t, err)

	url := "https://example.com/corrupt.pdf"
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.Fingerprint(url)+".idx"), []byte("garbage"), 0o644))

	_, ok, err := c.Load(context.Background(), url)
	assert.False(t, ok)

	var cacheErr *store.CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "load", cacheErr.Op)
}

func TestFileCache_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := store.NewFileCache(dir)
	require.NoError(t, err)

	require.NoError(t, c.Save(context.Background(), sampleIndex(t, "x"), "https://example.com/a.pdf"))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestOpen(t *testing.T) {
	c, err := store.Open(context.Background(), store.StoreConfig{Backend: store.BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &store.FileCache{}, c)

	c, err = store.Open(context.Background(), store.StoreConfig{
		Backend: store.BackendSQLite,
		Path:    filepath.Join(t.TempDir(), "c.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteCache{}, c)
	require.NoError(t, c.Close())

	_, err = store.Open(context.Background(), store.StoreConfig{Backend: "redis"})
	assert.Error(t, err)
}
