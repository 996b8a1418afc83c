package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/internal/types"
	"github.com/xhad/docqa/pkg/workers"
)

const DefaultBatchSize = 32

// EmbeddingError reports a failed embedding call. A build that returns it
// produces no index.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s failed: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

type BuilderConfig struct {
	BatchSize int // chunks per embedding call
	Workers   int // concurrent embedding calls; 1 embeds batches in order
}

// Builder embeds chunks and assembles an Index.
type Builder struct {
	config   BuilderConfig
	embedder types.Embedder
	strategy workers.Strategy
}

func NewBuilder(embedder types.Embedder, config BuilderConfig) *Builder {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	return &Builder{
		config:   config,
		embedder: embedder,
		strategy: workers.Partitioned{Workers: config.Workers, RangeSize: config.BatchSize},
	}
}

// Build embeds every chunk and returns the index. Chunk i always receives
// vector i regardless of how batches were scheduled.
func (b *Builder) Build(ctx context.Context, chunks []models.Chunk) (*Index, error) {
	vectors := make([][]float32, len(chunks))

	err := b.strategy.Run(ctx, len(chunks), func(ctx context.Context, lo, hi int) error {
		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Content)
		}

		embedded, err := b.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return &EmbeddingError{Op: fmt.Sprintf("batch [%d:%d]", lo, hi), Err: err}
		}
		if len(embedded) != len(texts) {
			return &EmbeddingError{
				Op:  fmt.Sprintf("batch [%d:%d]", lo, hi),
				Err: fmt.Errorf("got %d vectors for %d texts", len(embedded), len(texts)),
			}
		}
		copy(vectors[lo:hi], embedded)
		return nil
	})
	if err != nil {
		var embErr *EmbeddingError
		if errors.As(err, &embErr) {
			return nil, embErr
		}
		return nil, &EmbeddingError{Op: "build", Err: err}
	}

	idx := New(b.embedder.ModelName())
	for i, c := range chunks {
		if err := idx.Add(c, vectors[i]); err != nil {
			return nil, &EmbeddingError{Op: fmt.Sprintf("chunk %d", c.Position), Err: err}
		}
	}
	return idx, nil
}
