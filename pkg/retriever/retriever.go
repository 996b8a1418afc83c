// Package retriever selects the chunks of an index most similar to a
// question.
package retriever

import (
	"context"
	"errors"

	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/internal/types"
	"github.com/xhad/docqa/pkg/index"
)

const DefaultTopK = 4

type Retriever struct {
	embedder types.Embedder
	topK     int
}

// New returns a retriever that embeds queries with embedder. It must be the
// embedder the searched indexes were built with.
func New(embedder types.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, topK: topK}
}

// Retrieve returns up to k chunks, most similar first. k <= 0 uses the
// retriever's default.
func (r *Retriever) Retrieve(ctx context.Context, idx *index.Index, query string, k int) ([]models.Chunk, error) {
	if k <= 0 {
		k = r.topK
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		var embErr *index.EmbeddingError
		if errors.As(err, &embErr) {
			return nil, err
		}
		return nil, &index.EmbeddingError{Op: "query", Err: err}
	}

	results := idx.Search(vec, k)
	chunks := make([]models.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}

// Contents is Retrieve reduced to chunk text.
func (r *Retriever) Contents(ctx context.Context, idx *index.Index, query string, k int) ([]string, error) {
	chunks, err := r.Retrieve(ctx, idx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out, nil
}
