// Package estimate implements the router's approximate token counter. It is
// deliberately cheap: no tokenizer, no I/O, no errors. Absolute accuracy
// against a given model's real tokenizer is not the goal; monotone,
// deterministic behavior against a fixed budget is.
package estimate

import (
	"math"
	"strings"

	"github.com/lattice-run/promptrouter/internal/domain"
)

// avgCharsPerToken and wordsPerTokenRatio mirror the heuristic every stage of
// the router (and every test fixture) assumes: roughly four characters per
// token or 1.3 tokens per word, whichever estimate is larger.
const (
	avgCharsPerToken   = 4
	wordsPerTokenRatio = 1.3
	tokensPerMessage   = 4
)

// Text estimates the token count of a single string.
// estimate(text) = max(floor(len(text)/4), ceil(word_count*1.3))
func Text(s string) int {
	if s == "" {
		return 0
	}
	charEstimate := len(s) / avgCharsPerToken
	wordCount := len(strings.Fields(s))
	wordEstimate := int(math.Ceil(float64(wordCount) * wordsPerTokenRatio))
	if wordEstimate > charEstimate {
		return wordEstimate
	}
	return charEstimate
}

// Messages estimates the token count of a message list: the sum of each
// message's content estimate plus a fixed per-message overhead.
func Messages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += Text(m.Content) + tokensPerMessage
	}
	return total
}
