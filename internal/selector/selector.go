// Package selector implements the router's model selection engine: one LLM
// call that recommends a model id from the currently active set, plus the
// hard rules a wrapper enforces around it (only recommend a real model,
// compute should_switch deterministically, degrade to the caller's own
// choice on any failure) and the alternatives-scoring used to build a
// recommendation envelope.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/jsonutil"
	"github.com/lattice-run/promptrouter/internal/llmclient"
	"github.com/lattice-run/promptrouter/internal/routererr"
)

const systemPromptHeader = `You are an intelligent model selection engine.

AVAILABLE MODELS:
%s

YOUR TASK:
Analyze the user's query and recommend the BEST model from the available list above.

SELECTION CRITERIA:
1. Code generation/debugging: prefer models with larger context windows and strong reasoning
2. Creative writing: prefer models with good language understanding
3. Simple questions: use faster, smaller models
4. Complex reasoning/analysis: use larger, more capable models
5. Translation/multilingual: prefer models trained on multiple languages
6. Math/logic: prefer models with strong reasoning capabilities

IMPORTANT RULES:
- Only recommend models from the AVAILABLE MODELS list above
- Consider context window requirements for long conversations
- Balance performance vs speed based on complexity
- If user selected model is already optimal, keep it

Return ONLY valid JSON in this exact format:
{
  "recommended_model": "exact-model-id-from-list",
  "intent": "code_generation|creative_writing|question_answering|analysis|translation|math",
  "complexity": "simple|medium|complex",
  "reason": "brief explanation why this model is best",
  "confidence": 0-100
}`

// Selector recommends a model id for a query via one bounded LLM call.
type Selector struct {
	Client  *llmclient.Client
	ModelID string
}

// New constructs a Selector bound to the given selector model id.
func New(client *llmclient.Client, modelID string) *Selector {
	return &Selector{Client: client, ModelID: modelID}
}

// identityDecision is returned whenever the selector cannot recommend a
// change: no candidates, an upstream failure, or an invalid recommendation.
func identityDecision(currentModelID string, confidence int, reason string) domain.RoutingDecision {
	return domain.RoutingDecision{
		RecommendedModelID: currentModelID,
		Intent:             domain.IntentUnknown,
		Complexity:         domain.ComplexityMedium,
		Reason:             reason,
		Confidence:         confidence,
		ShouldSwitch:       false,
	}
}

// Select recommends a model for query given the currently active registry
// entries and the client's chosen model. It never returns an error: any
// upstream failure degrades to identityDecision.
func (s *Selector) Select(ctx context.Context, query, currentModelID string, models []domain.ModelDescriptor) domain.RoutingDecision {
	if len(models) == 0 {
		return identityDecision(currentModelID, 50, "No alternatives available")
	}

	activeIDs := make(map[string]bool, len(models))
	var listing strings.Builder
	for _, m := range models {
		activeIDs[m.ID] = true
		name := m.DisplayName
		if name == "" {
			name = m.ID
		}
		ctxWindow := "N/A"
		if m.ContextWindow > 0 {
			ctxWindow = fmt.Sprintf("%d", m.ContextWindow)
		}
		fmt.Fprintf(&listing, "  - %s: %s (context: %s)\n", m.ID, name, ctxWindow)
	}

	content, err := s.Client.Complete(ctx, llmclient.CompleteOpts{
		Model:       s.ModelID,
		System:      fmt.Sprintf(systemPromptHeader, listing.String()),
		User:        fmt.Sprintf("Query: %s\nCurrent model: %s", query, currentModelID),
		Temperature: 0.0,
		MaxTokens:   300,
		JSONMode:    true,
	})
	if err != nil {
		slog.WarnContext(ctx, "model selection degraded",
			slog.Any("error", &routererr.SelectorError{Err: err}))
		return identityDecision(currentModelID, 50, fmt.Sprintf("Error: %v", err))
	}

	obj := jsonutil.ExtractObject(content)
	if len(obj) == 0 {
		slog.WarnContext(ctx, "model selection degraded",
			slog.Any("error", &routererr.ParseError{Stage: "selector", Raw: content, Err: errors.New("no JSON object found")}))
	}
	recommended := jsonutil.String(obj, "recommended_model", currentModelID)
	if !activeIDs[recommended] {
		recommended = currentModelID
	}

	return domain.RoutingDecision{
		RecommendedModelID: recommended,
		Intent:             domain.Intent(jsonutil.String(obj, "intent", string(domain.IntentUnknown))),
		Complexity:         domain.Complexity(jsonutil.String(obj, "complexity", string(domain.ComplexityMedium))),
		Reason:             jsonutil.String(obj, "reason", "Auto-selected"),
		Confidence:         jsonutil.Int(obj, "confidence", 70, 0, 100),
		ShouldSwitch:       recommended != currentModelID,
	}
}

// TopAlternatives scores every active model other than recommended by
// intent affinity and context-window size, returning the top two.
func TopAlternatives(intent domain.Intent, recommendedID string, models []domain.ModelDescriptor) []domain.Alternative {
	type scored struct {
		id    string
		score int
	}
	var candidates []scored
	for _, m := range models {
		if m.ID == recommendedID {
			continue
		}
		score := 50
		lowerID := strings.ToLower(m.ID)
		switch intent {
		case domain.IntentCodeGeneration:
			if strings.Contains(lowerID, "code") || strings.Contains(lowerID, "qwen") {
				score += 30
			}
		case domain.IntentCreativeWriting:
			if strings.Contains(lowerID, "llama") && strings.Contains(lowerID, "70b") {
				score += 30
			}
		case domain.IntentQuestionAnswering:
			if strings.Contains(lowerID, "8b") || strings.Contains(lowerID, "instant") {
				score += 30
			}
		case domain.IntentAnalysis:
			if strings.Contains(lowerID, "70b") {
				score += 30
			}
		}
		if m.ContextWindow > 100_000 {
			score += 10
		}
		candidates = append(candidates, scored{id: m.ID, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	n := len(candidates)
	if n > 2 {
		n = 2
	}
	out := make([]domain.Alternative, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, domain.Alternative{ModelID: c.id, Score: c.score})
	}
	return out
}
