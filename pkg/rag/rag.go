// Package rag answers questions about a remote document: it extracts,
// chunks and embeds the document (or loads a cached index), retrieves
// contexts per question and asks the reasoner in batches.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xhad/docqa/internal/logger"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/pkg/index"
	"github.com/xhad/docqa/pkg/processor"
	"github.com/xhad/docqa/pkg/reasoner"
	"github.com/xhad/docqa/pkg/retriever"
	"github.com/xhad/docqa/pkg/store"
	"github.com/xhad/docqa/pkg/workers"
)

const DefaultBatchSize = 5

// ErrInvalidRequest is returned for requests without a document URL.
var ErrInvalidRequest = errors.New("invalid request")

type Request struct {
	Documents string   `json:"documents"`
	Questions []string `json:"questions"`
}

type Response struct {
	Answers []string `json:"answers"`
}

type Stage string

const (
	StageCache   Stage = "cache"
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
	StageAnswer  Stage = "answer"
	StageDone    Stage = "done"
)

// Event reports pipeline progress for one request.
type Event struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

type ProgressFunc func(Event)

// Extractor turns a document URL into text.
type Extractor interface {
	Extract(ctx context.Context, url string) (*models.Document, error)
}

// Deps are the collaborators of a Service. Cache may be nil.
type Deps struct {
	Extractor Extractor
	Processor *processor.Processor
	Builder   *index.Builder
	Cache     store.Cache
	Retriever *retriever.Retriever
	Reasoner  *reasoner.Reasoner
}

type ServiceConfig struct {
	BatchSize   int // questions per reasoning call
	TopK        int // contexts per question
	Concurrency int // reasoning calls in flight
}

type Service struct {
	deps   Deps
	config ServiceConfig
	group  singleflight.Group

	mu       sync.Mutex
	watchers map[string][]*watcher // callers waiting on an ingestion, by URL
}

func NewService(deps Deps, config ServiceConfig) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.TopK <= 0 {
		config.TopK = retriever.DefaultTopK
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Service{deps: deps, config: config}
}

// BatchError reports reasoning batches that failed. Answers of the other
// batches are still returned; the slots of failed questions are empty.
type BatchError struct {
	Failed []int // indexes of questions without an answer
	Errs   []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d of the questions could not be answered: %s", len(e.Failed), strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error { return e.Errs }

func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	return s.RunWithProgress(ctx, req, nil)
}

// RunWithProgress answers every question of req in order. On a reasoning
// failure the partial response is returned together with a *BatchError.
// onProgress is never called concurrently.
func (s *Service) RunWithProgress(ctx context.Context, req Request, onProgress ProgressFunc) (*Response, error) {
	start := time.Now()
	var mu sync.Mutex
	progress := func(stage Stage, format string, args ...any) {
		if onProgress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onProgress(Event{Stage: stage, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(req.Documents) == "" {
		return nil, fmt.Errorf("%w: documents is required", ErrInvalidRequest)
	}
	logger.Info("document URL: %s", req.Documents)
	logger.Info("questions: %d", len(req.Questions))

	resp := &Response{Answers: make([]string, len(req.Questions))}
	if len(req.Questions) == 0 {
		progress(StageDone, "no questions")
		return resp, nil
	}

	idx, err := s.indexWithProgress(ctx, req.Documents, progress)
	if err != nil {
		return nil, err
	}

	err = s.answer(ctx, idx, req.Questions, resp.Answers, progress)
	logger.Info("answered %d questions in %s", len(req.Questions), time.Since(start).Round(time.Millisecond))
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		return resp, err
	}
	if err != nil {
		return nil, err
	}
	progress(StageDone, "answered %d questions", len(req.Questions))
	return resp, nil
}

// Index returns the index for url, building and caching it on a miss.
func (s *Service) Index(ctx context.Context, url string) (*index.Index, error) {
	return s.indexWithProgress(ctx, url, func(Stage, string, ...any) {})
}

func (s *Service) indexWithProgress(ctx context.Context, url string, progress func(Stage, string, ...any)) (*index.Index, error) {
	progress(StageCache, "checking cache")
	if s.deps.Cache != nil {
		idx, ok, err := s.deps.Cache.Load(ctx, url)
		switch {
		case err != nil:
			logger.Warn("cache load failed, rebuilding: %v", err)
		case ok:
			logger.Debug("cache hit for %s", url)
			progress(StageCache, "cache hit (%d chunks)", idx.Len())
			return idx, nil
		}
	}

	unwatch := s.watch(url, progress)
	defer unwatch()

	// Concurrent requests for the same URL share one ingestion, detached
	// from the cancellation of whichever caller started it.
	ch := s.group.DoChan(url, func() (any, error) {
		return s.ingest(context.WithoutCancel(ctx), url, func(stage Stage, format string, args ...any) {
			s.broadcast(url, stage, format, args...)
		})
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.Debug("shared ingestion for %s", url)
		}
		return res.Val.(*index.Index), nil
	}
}

// watcher forwards ingestion progress to one caller until it stops waiting.
type watcher struct {
	mu       sync.Mutex
	stopped  bool
	progress func(Stage, string, ...any)
}

func (w *watcher) notify(stage Stage, format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.progress(stage, format, args...)
	}
}

func (s *Service) watch(url string, progress func(Stage, string, ...any)) func() {
	w := &watcher{progress: progress}

	s.mu.Lock()
	if s.watchers == nil {
		s.watchers = make(map[string][]*watcher)
	}
	joined := len(s.watchers[url]) > 0
	s.watchers[url] = append(s.watchers[url], w)
	s.mu.Unlock()

	if joined {
		progress(StageExtract, "waiting for shared ingestion of %s", url)
	}

	return func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()
		ws := s.watchers[url]
		for i, other := range ws {
			if other == w {
				ws = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		if len(ws) == 0 {
			delete(s.watchers, url)
		} else {
			s.watchers[url] = ws
		}
	}
}

func (s *Service) broadcast(url string, stage Stage, format string, args ...any) {
	s.mu.Lock()
	ws := append([]*watcher(nil), s.watchers[url]...)
	s.mu.Unlock()
	for _, w := range ws {
		w.notify(stage, format, args...)
	}
}

func (s *Service) ingest(ctx context.Context, url string, progress func(Stage, string, ...any)) (*index.Index, error) {
	progress(StageExtract, "fetching %s", url)
	doc, err := s.deps.Extractor.Extract(ctx, url)
	if err != nil {
		return nil, err
	}

	progress(StageChunk, "chunking %d bytes of %s text", len(doc.Text), doc.Format)
	chunks, err := s.deps.Processor.Chunk(ctx, doc.Text)
	if err != nil {
		return nil, err
	}

	progress(StageEmbed, "embedding %d chunks", len(chunks))
	idx, err := s.deps.Builder.Build(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Save(ctx, idx, url); err != nil {
			logger.Warn("cache save failed: %v", err)
		}
	}
	return idx, nil
}

// answer fills answers in place, one reasoning call per batch of questions.
func (s *Service) answer(ctx context.Context, idx *index.Index, questions, answers []string, progress func(Stage, string, ...any)) error {
	batches := (len(questions) + s.config.BatchSize - 1) / s.config.BatchSize
	batchErrs := make([]error, batches)

	strategy := workers.Partitioned{Workers: s.config.Concurrency, RangeSize: 1}
	err := strategy.Run(ctx, batches, func(ctx context.Context, lo, hi int) error {
		for b := lo; b < hi; b++ {
			from := b * s.config.BatchSize
			to := min(from+s.config.BatchSize, len(questions))
			progress(StageAnswer, "answering questions %d-%d of %d", from+1, to, len(questions))

			items := make([]reasoner.Item, 0, to-from)
			for _, q := range questions[from:to] {
				contexts, err := s.deps.Retriever.Contents(ctx, idx, q, s.config.TopK)
				if err != nil {
					return err
				}
				items = append(items, reasoner.Item{Question: q, Contexts: contexts})
			}

			res, err := s.deps.Reasoner.Answer(ctx, items)
			if err != nil {
				logger.Error("batch %d failed: %v", b+1, err)
				batchErrs[b] = err
				continue
			}
			copy(answers[from:to], res.Answers)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var be BatchError
	for b, err := range batchErrs {
		if err == nil {
			continue
		}
		from := b * s.config.BatchSize
		to := min(from+s.config.BatchSize, len(questions))
		for i := from; i < to; i++ {
			be.Failed = append(be.Failed, i)
		}
		be.Errs = append(be.Errs, fmt.Errorf("batch %d: %w", b+1, err))
	}
	if len(be.Errs) > 0 {
		return &be
	}
	return nil
}
