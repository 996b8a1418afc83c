package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xhad/docqa/pkg/index"
)

const DefaultDir = "docqa_cache"

// FileCache stores each index as <dir>/<fingerprint>.idx.
type FileCache struct {
	dir string
}

func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".idx")
}

func (c *FileCache) Load(_ context.Context, url string) (*index.Index, bool, error) {
	key := Fingerprint(url)
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}

	idx := &index.Index{}
	if err := idx.UnmarshalBinary(data); err != nil {
		return nil, false, &CacheError{Op: "load", Key: key, Err: err}
	}
	return idx, true, nil
}

// Save writes to a temp file in the cache directory and renames it over the
// entry, so readers never observe a partial file.
func (c *FileCache) Save(_ context.Context, idx *index.Index, url string) error {
	key := Fingerprint(url)
	data, err := idx.MarshalBinary()
	if err != nil {
		return &CacheError{Op: "save", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(c.dir, key+"-*.tmp")
	if err != nil {
		return &CacheError{Op: "save", Key: key, Err: err}
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	serr := tmp.Sync()
	cerr := tmp.Close()
	if err := errors.Join(werr, serr, cerr); err != nil {
		os.Remove(tmpName)
		return &CacheError{Op: "save", Key: key, Err: err}
	}

	if err := os.Rename(tmpName, c.path(key)); err != nil {
		os.Remove(tmpName)
		return &CacheError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (c *FileCache) Close() error { return nil }
