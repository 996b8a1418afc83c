package reasoner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docqa/internal/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		n        int
		answers  []string
		outcome  Outcome
		statuses []ItemStatus
	}{
		{
			name:     "valid json",
			raw:      `{"answers": [" 30 days ", "Yes"]}`,
			n:        2,
			answers:  []string{"30 days", "Yes"},
			outcome:  OutcomeParsed,
			statuses: []ItemStatus{ItemParsed, ItemParsed},
		},
		{
			name:     "json inside prose and fences",
			raw:      "Sure! Here you go:\n```json\n{\"answers\": [\"A\", \"B\"]}\n```\nThanks",
			n:        2,
			answers:  []string{"A", "B"},
			outcome:  OutcomeParsed,
			statuses: []ItemStatus{ItemParsed, ItemParsed},
		},
		{
			name:     "wrong length falls back",
			raw:      `{"answers": ["only one"]} Answer 1: first Answer 2: second`,
			n:        2,
			answers:  []string{`first`, "second"},
			outcome:  OutcomeRecovered,
			statuses: []ItemStatus{ItemRecovered, ItemRecovered},
		},
		{
			name:     "non-string answers fall back",
			raw:      `{"answers": [1, 2]}`,
			n:        2,
			answers:  []string{FallbackSentinel, FallbackSentinel},
			outcome:  OutcomeRecovered,
			statuses: []ItemStatus{ItemFailed, ItemFailed},
		},
		{
			name:     "missing answers field",
			raw:      `{"result": ["x"]}`,
			n:        1,
			answers:  []string{FallbackSentinel},
			outcome:  OutcomeRecovered,
			statuses: []ItemStatus{ItemFailed},
		},
		{
			name:     "markers with missing middle",
			raw:      "Answer 1: thirty days\nAnswer 3: covered after 24 months",
			n:        3,
			answers:  []string{"thirty days", FallbackSentinel, "covered after 24 months"},
			outcome:  OutcomeRecovered,
			statuses: []ItemStatus{ItemRecovered, ItemFailed, ItemRecovered},
		},
		{
			name:     "markers out of order",
			raw:      "Answer 2: second\nAnswer 1: first",
			n:        2,
			answers:  []string{"first", "second\nAnswer 1: first"},
			outcome:  OutcomeRecovered,
			statuses: []ItemStatus{ItemRecovered, ItemRecovered},
		},
		{
			name:     "double digit markers",
			raw:      "Answer 1: one Answer 11: eleven",
			n:        11,
			answers:  append(append([]string{"one"}, repeat(FallbackSentinel, 9)...), "eleven"),
			outcome:  OutcomeRecovered,
			statuses: append(append([]ItemStatus{ItemRecovered}, repeatStatus(ItemFailed, 9)...), ItemRecovered),
		},
		{
			name:     "empty response",
			raw:      "",
			n:        1,
			answers:  []string{FallbackSentinel},
			outcome:  OutcomeRecovered,
			statuses: []ItemStatus{ItemFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.raw, tt.n)
			assert.Equal(t, tt.answers, res.Answers)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.statuses, res.Items)
		})
	}
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func repeatStatus(s ItemStatus, n int) []ItemStatus {
	out := make([]ItemStatus, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestBuildPrompt(t *testing.T) {
	r := New(&testutil.Generator{})
	prompt := r.BuildPrompt([]Item{
		{Question: "What is the grace period?", Contexts: []string{"ctx a", "ctx b"}},
		{Question: "Is maternity covered?", Contexts: []string{"ctx c"}},
	})

	assert.True(t, strings.HasPrefix(prompt, DefaultPreamble+"\n\n"))
	assert.Contains(t, prompt, "Question 1:\nWhat is the grace period?\n\nContext 1:\nctx a\nctx b\n\n")
	assert.Contains(t, prompt, "Question 2:\nIs maternity covered?\n\nContext 2:\nctx c\n\n")
	assert.Contains(t, prompt, `{"answers": ["Answer to Q1", "Answer to Q2", ...]}`)
	assert.Contains(t, prompt, "exactly 2 strings")
	assert.Less(t, strings.Index(prompt, "Question 1:"), strings.Index(prompt, "Question 2:"))
}

func TestAnswer_OneCallPerBatch(t *testing.T) {
	gen := &testutil.Generator{Respond: func(string) (string, error) {
		return `{"answers": ["A1", "A2", "A3"]}`, nil
	}}

	res, err := New(gen).Answer(context.Background(), []Item{{Question: "q1"}, {Question: "q2"}, {Question: "q3"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"A1", "A2", "A3"}, res.Answers)
	assert.Len(t, gen.Prompts(), 1)
}

func TestAnswer_EmptyBatch(t *testing.T) {
	gen := &testutil.Generator{Respond: func(string) (string, error) {
		t.Fatal("generator must not be called")
		return "", nil
	}}

	res, err := New(gen).Answer(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Answers)
}

func TestAnswer_ServiceError(t *testing.T) {
	cause := errors.New("401 unauthorized")
	gen := &testutil.Generator{Respond: func(string) (string, error) { return "", cause }}

	res, err := New(gen).Answer(context.Background(), []Item{{Question: "q"}})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrReasoningService)
	assert.ErrorIs(t, err, cause)

	var svcErr *ServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestAnswer_FallbackIsNotAnError(t *testing.T) {
	gen := &testutil.Generator{Respond: func(string) (string, error) {
		return "I could not format JSON.\nAnswer 1: yes\nAnswer 2: no", nil
	}}

	res, err := New(gen).Answer(context.Background(), []Item{{Question: "q1"}, {Question: "q2"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecovered, res.Outcome)
	assert.Equal(t, []string{"yes", "no"}, res.Answers)
}
