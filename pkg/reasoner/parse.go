package reasoner

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Parse extracts n answers from a model response. A JSON object with an
// "answers" array of exactly n strings is accepted as is; anything else is
// recovered from "Answer i:" markers in the raw text.
func Parse(raw string, n int) *Result {
	if answers, ok := parseJSON(raw, n); ok {
		items := make([]ItemStatus, n)
		for i := range items {
			items[i] = ItemParsed
		}
		return &Result{Answers: answers, Outcome: OutcomeParsed, Items: items}
	}
	return parseMarkers(raw, n)
}

func parseJSON(raw string, n int) ([]string, bool) {
	doc := strings.TrimSpace(raw)
	if !gjson.Valid(doc) {
		start := strings.Index(doc, "{")
		end := strings.LastIndex(doc, "}")
		if start < 0 || end <= start {
			return nil, false
		}
		doc = doc[start : end+1]
		if !gjson.Valid(doc) {
			return nil, false
		}
	}

	field := gjson.Get(doc, "answers")
	if !field.IsArray() {
		return nil, false
	}
	elems := field.Array()
	if len(elems) != n {
		return nil, false
	}

	answers := make([]string, n)
	for i, e := range elems {
		if e.Type != gjson.String {
			return nil, false
		}
		answers[i] = strings.TrimSpace(e.String())
	}
	return answers, true
}

// parseMarkers takes, for each question i, the text after the first
// "Answer i:" up to the nearest later marker of a higher-numbered answer.
func parseMarkers(raw string, n int) *Result {
	res := &Result{
		Answers: make([]string, n),
		Outcome: OutcomeRecovered,
		Items:   make([]ItemStatus, n),
	}

	for i := 1; i <= n; i++ {
		marker := fmt.Sprintf("Answer %d:", i)
		pos := strings.Index(raw, marker)
		if pos < 0 {
			res.Answers[i-1] = FallbackSentinel
			res.Items[i-1] = ItemFailed
			continue
		}

		rest := raw[pos+len(marker):]
		end := len(rest)
		for j := i + 1; j <= n; j++ {
			if k := strings.Index(rest, fmt.Sprintf("Answer %d:", j)); k >= 0 && k < end {
				end = k
			}
		}

		res.Answers[i-1] = strings.TrimSpace(rest[:end])
		res.Items[i-1] = ItemRecovered
	}
	return res
}
