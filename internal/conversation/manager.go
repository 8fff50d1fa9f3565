// Package conversation implements the router's budget-aware truncation of a
// message list, sized to a target model's context window. Both strategies
// are total: they never fail, and ordering is preserved within the kept set.
package conversation

import (
	"fmt"
	"strings"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/estimate"
)

const (
	maxHistoryTokensCap      = 4000
	reservedCompletionTokens = 1500
	defaultModelTokenLimit   = 4096
)

// modelTokenLimits is the static prefix-match table used to size the
// history budget for a model that isn't in the registry's own metadata.
var modelTokenLimits = map[string]int{
	"llama-3.1-8b-instant":    8000,
	"llama-3.1-70b-versatile": 128000,
	"llama-3.3-70b-versatile": 128000,
	"mixtral-8x7b-32768":      32768,
	"gemma-7b-it":             8192,
}

// TokenLimit resolves a model's context window via case-insensitive
// prefix match against the built-in table, defaulting to 4096.
func TokenLimit(modelID string) int {
	lower := strings.ToLower(modelID)
	for key, limit := range modelTokenLimits {
		if strings.HasPrefix(lower, key) {
			return limit
		}
	}
	return defaultModelTokenLimit
}

// Strategy selects a truncation algorithm.
type Strategy string

const (
	SlidingWindow  Strategy = "sliding_window"
	ImportanceBased Strategy = "importance_based"
)

// Manager truncates message lists to fit a target model's budget.
type Manager struct {
	ModelID         string
	TokenLimit      int
	MaxHistoryTokens int
}

// New constructs a Manager for the given model id, resolving its token
// limit and deriving max_history = min(4000, limit - 1500).
func New(modelID string) *Manager {
	limit := TokenLimit(modelID)
	maxHistory := limit - reservedCompletionTokens
	if maxHistory > maxHistoryTokensCap {
		maxHistory = maxHistoryTokensCap
	}
	return &Manager{ModelID: modelID, TokenLimit: limit, MaxHistoryTokens: maxHistory}
}

// Truncate returns a new ordered list satisfying the manager's budget.
func (m *Manager) Truncate(messages []domain.Message, strategy Strategy) []domain.Message {
	switch strategy {
	case ImportanceBased:
		return m.importanceBased(messages)
	default:
		return m.slidingWindow(messages)
	}
}

func (m *Manager) slidingWindow(messages []domain.Message) []domain.Message {
	system, conversation := partition(messages)
	if len(conversation) == 0 {
		return messages
	}

	systemTokens := estimate.Messages(system)
	available := m.MaxHistoryTokens - systemTokens

	lastUserIdx := -1
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == "user" {
			lastUserIdx = i
			break
		}
	}
	if lastUserIdx == -1 {
		return append(append([]domain.Message{}, system...), conversation...)
	}

	lastUser := conversation[lastUserIdx]
	kept := []domain.Message{lastUser}
	currentTokens := estimate.Messages([]domain.Message{lastUser})

	for i := lastUserIdx - 1; i >= 0; i-- {
		msg := conversation[i]
		msgTokens := estimate.Messages([]domain.Message{msg})
		if currentTokens+msgTokens <= available {
			kept = append([]domain.Message{msg}, kept...)
			currentTokens += msgTokens
		} else {
			break
		}
	}

	out := make([]domain.Message, 0, len(system)+len(kept))
	out = append(out, system...)
	out = append(out, kept...)
	return out
}

func (m *Manager) importanceBased(messages []domain.Message) []domain.Message {
	system, conversation := partition(messages)
	if len(conversation) <= 3 {
		return messages
	}

	var firstUser *domain.Message
	for i := range conversation {
		if conversation[i].Role == "user" {
			firstUser = &conversation[i]
			break
		}
	}

	recentStart := len(conversation) - 4
	if recentStart < 0 {
		recentStart = 0
	}
	recent := conversation[recentStart:]

	systemTokens := estimate.Messages(system)
	priorityTokens := 0
	if firstUser != nil {
		priorityTokens = estimate.Messages([]domain.Message{*firstUser})
	}
	recentTokens := estimate.Messages(recent)
	available := m.MaxHistoryTokens - systemTokens

	if priorityTokens+recentTokens <= available {
		var middleGap []domain.Message
		if len(conversation) > 5 {
			middleGap = conversation[1 : len(conversation)-4]
		}
		if len(middleGap) > 0 && firstUser != nil {
			marker := domain.Message{
				Role:    "system",
				Content: fmt.Sprintf("[%d messages truncated for context]", len(middleGap)),
			}
			out := make([]domain.Message, 0, len(system)+2+len(recent))
			out = append(out, system...)
			out = append(out, *firstUser, marker)
			out = append(out, recent...)
			return out
		}
		out := make([]domain.Message, 0, len(system)+len(conversation))
		out = append(out, system...)
		out = append(out, conversation...)
		return out
	}

	out := make([]domain.Message, 0, len(system)+len(recent))
	out = append(out, system...)
	out = append(out, recent...)
	return out
}

// AddContextSummary inserts a system message carrying summary text
// immediately after any existing leading system messages.
func AddContextSummary(messages []domain.Message, summary string) []domain.Message {
	insertAt := 0
	for insertAt < len(messages) && messages[insertAt].Role == "system" {
		insertAt++
	}
	out := make([]domain.Message, 0, len(messages)+1)
	out = append(out, messages[:insertAt]...)
	out = append(out, domain.Message{Role: "system", Content: "Context summary: " + summary})
	out = append(out, messages[insertAt:]...)
	return out
}

func partition(messages []domain.Message) (system, conversation []domain.Message) {
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			conversation = append(conversation, m)
		}
	}
	return
}
