package index

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/docqa/internal/models"
)

// snapshotVersion prefixes every serialized index.
const snapshotVersion byte = 1

// Entry is one chunk and its embedding.
type Entry struct {
	Chunk  models.Chunk
	Vector []float32
}

// Result is a search hit.
type Result struct {
	Chunk models.Chunk
	Score float64
}

// Index holds every chunk of one document together with its vector and
// answers cosine-similarity queries. Entries keep insertion order, which is
// also the tie-break order for equal scores.
type Index struct {
	mu      sync.RWMutex
	model   string
	dim     int
	entries []Entry
}

// New returns an empty index for vectors produced by model.
func New(model string) *Index {
	return &Index{model: model}
}

// FromEntries rebuilds an index from persisted entries.
func FromEntries(model string, entries []Entry) (*Index, error) {
	idx := New(model)
	for _, e := range entries {
		if err := idx.Add(e.Chunk, e.Vector); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Add appends a chunk. All vectors in an index share one dimension.
func (i *Index) Add(chunk models.Chunk, vector []float32) error {
	if len(vector) == 0 {
		return errors.New("empty vector")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.dim == 0 {
		i.dim = len(vector)
	} else if len(vector) != i.dim {
		return fmt.Errorf("vector dimension mismatch: got %d, index has %d", len(vector), i.dim)
	}
	v := make([]float32, len(vector))
	copy(v, vector)
	i.entries = append(i.entries, Entry{Chunk: chunk, Vector: v})
	return nil
}

// Search returns up to k entries ordered by descending cosine similarity.
func (i *Index) Search(query []float32, k int) []Result {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if k <= 0 || len(i.entries) == 0 {
		return nil
	}

	results := make([]Result, len(i.entries))
	for j, e := range i.entries {
		results[j] = Result{Chunk: e.Chunk, Score: cosine(query, e.Vector)}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *Index) Dim() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dim
}

// Model is the embedding model that produced the vectors.
func (i *Index) Model() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.model
}

// Chunks returns the chunks in insertion order.
func (i *Index) Chunks() []models.Chunk {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]models.Chunk, len(i.entries))
	for j, e := range i.entries {
		out[j] = e.Chunk
	}
	return out
}

// Entries returns a copy of the index content in insertion order.
func (i *Index) Entries() []Entry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Entry, len(i.entries))
	copy(out, i.entries)
	return out
}

type snapshot struct {
	Model   string
	Entries []Entry
}

func (i *Index) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(snapshotVersion)
	if err := gob.NewEncoder(&buf).Encode(snapshot{Model: i.Model(), Entries: i.Entries()}); err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}
	return buf.Bytes(), nil
}

func (i *Index) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || data[0] != snapshotVersion {
		return errors.New("unknown index snapshot version")
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}
	restored, err := FromEntries(snap.Model, snap.Entries)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.model = restored.model
	i.dim = restored.dim
	i.entries = restored.entries
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
