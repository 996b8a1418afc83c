// Package testutil holds deterministic stand-ins for the embedding and
// generation services.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

const FakeDim = 256

// Embedder hashes lowercase words into a fixed number of buckets and
// normalizes the result. Identical text always yields identical vectors.
type Embedder struct {
	Model string
	// Fail, when set, is consulted for every batch.
	Fail func(texts []string) error

	calls   atomic.Int64
	texts   atomic.Int64
	queries atomic.Int64
}

func NewEmbedder() *Embedder {
	return &Embedder{Model: "fake-embed"}
}

func (e *Embedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.texts.Add(int64(len(texts)))
	if e.Fail != nil {
		if err := e.Fail(texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.queries.Add(1)
	if e.Fail != nil {
		if err := e.Fail([]string{text}); err != nil {
			return nil, err
		}
	}
	return Vector(text), nil
}

func (e *Embedder) ModelName() string { return e.Model }

// Calls is the number of EmbedDocuments requests served.
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

// Texts is the number of document texts embedded.
func (e *Embedder) Texts() int { return int(e.texts.Load()) }

// Queries is the number of EmbedQuery requests served.
func (e *Embedder) Queries() int { return int(e.queries.Load()) }

// Vector is the embedding Embedder returns for text.
func Vector(text string) []float32 {
	v := make([]float32, FakeDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,;:!?\"'")))
		v[h.Sum32()%FakeDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Generator answers prompts through Respond and records every prompt.
type Generator struct {
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (g *Generator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.Respond(prompt)
}

func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}
