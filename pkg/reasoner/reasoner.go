// Package reasoner answers a batch of questions with a single generation
// call and recovers answers from malformed responses.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/docqa/internal/logger"
	"github.com/xhad/docqa/internal/types"
)

const (
	DefaultPreamble     = "You are a helpful assistant."
	DefaultInstructions = "You are a specialist in policy and contract language. " +
		"Answer each question using only its context. Be concise and precise, " +
		"and keep exact numbers, terms and conditions."

	// FallbackSentinel is the answer for a question whose marker is missing
	// from a response that could not be parsed as JSON.
	FallbackSentinel = "Error: no answer found in model response"

	rawLogPrefix = 200
)

// ErrReasoningService matches every *ServiceError.
var ErrReasoningService = errors.New("reasoning service error")

// ServiceError reports a failed generation call. The whole batch is lost.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("reasoning service failed: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrReasoningService }

// Item is one question and the contexts retrieved for it.
type Item struct {
	Question string
	Contexts []string
}

type Outcome string

const (
	OutcomeParsed    Outcome = "parsed"
	OutcomeRecovered Outcome = "recovered"
)

type ItemStatus string

const (
	ItemParsed    ItemStatus = "parsed"
	ItemRecovered ItemStatus = "recovered"
	ItemFailed    ItemStatus = "failed"
)

// Result holds one trimmed answer per item, in item order.
type Result struct {
	Answers []string
	Outcome Outcome
	Items   []ItemStatus
}

type ReasonerConfig struct {
	Preamble     string
	Instructions string
}

type Reasoner struct {
	config    ReasonerConfig
	generator types.Generator
}

func NewWithConfig(generator types.Generator, config ReasonerConfig) *Reasoner {
	if config.Preamble == "" {
		config.Preamble = DefaultPreamble
	}
	if config.Instructions == "" {
		config.Instructions = DefaultInstructions
	}
	return &Reasoner{config: config, generator: generator}
}

func New(generator types.Generator) *Reasoner {
	return NewWithConfig(generator, ReasonerConfig{})
}

// Answer issues one generation call for the whole batch.
func (r *Reasoner) Answer(ctx context.Context, items []Item) (*Result, error) {
	if len(items) == 0 {
		return &Result{Outcome: OutcomeParsed}, nil
	}

	raw, err := r.generator.Generate(ctx, r.BuildPrompt(items))
	if err != nil {
		return nil, &ServiceError{Err: err}
	}

	res := Parse(raw, len(items))
	if res.Outcome == OutcomeRecovered {
		logger.Warn("answer parse degraded for batch of %d | raw response: %s", len(items), truncate(strings.TrimSpace(raw), rawLogPrefix))
	}
	return res, nil
}

// BuildPrompt lays out every question with its contexts, followed by the
// instructions and the JSON answer contract.
func (r *Reasoner) BuildPrompt(items []Item) string {
	var b strings.Builder
	b.WriteString(r.config.Preamble)
	b.WriteString("\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "Question %d:\n%s\n\nContext %d:\n%s\n\n", i+1, item.Question, i+1, strings.Join(item.Contexts, "\n"))
	}
	b.WriteString(r.config.Instructions)
	b.WriteString("\n")
	b.WriteString("Please **only** return a JSON object with this schema:\n")
	b.WriteString(`{"answers": ["Answer to Q1", "Answer to Q2", ...]}` + "\n")
	fmt.Fprintf(&b, "The answers array must contain exactly %d strings, one per question, in question order.\n", len(items))
	b.WriteString("Do not include any additional text, explanation, or formatting.")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
