// Package enhancer implements the router's prompt enhancer: a single LLM
// call that adds specificity and structure to a query without changing its
// intent, guarded by pre-call skip heuristics and post-call validation that
// treats the model's own "should_enhance" flag as advisory, not final.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/jsonutil"
	"github.com/lattice-run/promptrouter/internal/llmclient"
	"github.com/lattice-run/promptrouter/internal/routererr"
)

const (
	minQueryLenForEnhancement = 10
	maxEnhancementRatio       = 3.0
	minSimilarityThreshold    = 0.3
	minLengthRatio            = 0.8
)

const systemPrompt = `You are a prompt enhancer. Improve clarity WITHOUT changing intent.

STRICT RULES:
1. Keep the EXACT same request/question
2. Add specificity and structure ONLY
3. DO NOT add new requirements or topics
4. DO NOT make assumptions about context
5. Keep length under 2x original
6. If query is already clear, return it unchanged

CRITICAL: Respond ONLY with valid JSON. No explanation, no markdown, just JSON.

{
  "enhanced_prompt": "improved version",
  "changes": ["change1", "change2"],
  "should_enhance": true/false
}

If query is a greeting, simple question, or already clear, set should_enhance=false.`

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "greetings": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"whats up": true, "what's up": true, "sup": true,
}

var acknowledgmentPrefixes = []string{"yes", "no", "ok", "okay", "sure", "thanks", "thank you"}

var wordRe = regexp.MustCompile(`\w+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true,
}

// Enhancer improves a query's clarity via one bounded LLM call, wrapped in
// heuristics that skip or reject changes likely to be hallucinated drift.
type Enhancer struct {
	Client  *llmclient.Client
	ModelID string
}

// New constructs an Enhancer bound to the given enhancer model id.
func New(client *llmclient.Client, modelID string) *Enhancer {
	return &Enhancer{Client: client, ModelID: modelID}
}

func unchanged(query, reason string, similarity float64) domain.EnhancementVerdict {
	return domain.EnhancementVerdict{
		EnhancedPrompt: query,
		Changes:        nil,
		ShouldEnhance:  false,
		Reason:         reason,
		Similarity:     similarity,
	}
}

// shouldSkip reports whether a query should skip the LLM call entirely, to
// avoid burning a call (and a hallucination risk) on text with nothing to
// improve.
func shouldSkip(query string) (bool, string) {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	if len(query) < minQueryLenForEnhancement {
		return true, "Query too short"
	}
	if greetings[lower] || len(strings.Fields(lower)) <= 2 {
		return true, "Greeting or very short message"
	}
	for _, prefix := range acknowledgmentPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true, "Acknowledgment or simple response"
		}
	}
	if len(query) > 500 {
		return true, "Query already detailed"
	}
	return false, ""
}

// keywordSimilarity computes Jaccard similarity between two texts'
// stopword-filtered word sets.
func keywordSimilarity(a, b string) float64 {
	words1 := wordSet(a)
	words2 := wordSet(b)
	if len(words1) == 0 || len(words2) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range words1 {
		if words2[w] {
			intersection++
		}
	}
	union := len(words1) + len(words2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if !stopwords[w] {
			out[w] = true
		}
	}
	return out
}

// Enhance improves query given its classified intent/complexity, applying
// pre-call skip heuristics and post-call anti-hallucination guards. It never
// returns an error: any failure or rejected enhancement returns the
// original query unchanged.
func (e *Enhancer) Enhance(ctx context.Context, query string, intent domain.Intent, complexity domain.Complexity) domain.EnhancementVerdict {
	if skip, reason := shouldSkip(query); skip {
		return unchanged(query, reason, 1.0)
	}

	content, err := e.Client.Complete(ctx, llmclient.CompleteOpts{
		Model:       e.ModelID,
		System:      systemPrompt,
		User:        fmt.Sprintf("Original query: %s\nIntent: %s\nComplexity: %s", query, intent, complexity),
		Temperature: 0.2,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		slog.WarnContext(ctx, "prompt enhancement degraded",
			slog.Any("error", &routererr.EnhancerError{Err: err}))
		return unchanged(query, fmt.Sprintf("Error: %v", err), 0.0)
	}

	obj := jsonutil.ExtractObject(content)
	if len(obj) == 0 {
		slog.WarnContext(ctx, "prompt enhancement degraded",
			slog.Any("error", &routererr.ParseError{Stage: "enhancer", Raw: content, Err: errors.New("no JSON object found")}))
	}
	enhancedPrompt := jsonutil.String(obj, "enhanced_prompt", query)
	shouldEnhance := jsonutil.Bool(obj, "should_enhance", true)
	changes := jsonutil.StringSlice(obj, "changes")

	if !shouldEnhance {
		return unchanged(query, "Model determined enhancement unnecessary", 1.0)
	}

	queryLen := len(query)
	lengthRatio := float64(len(enhancedPrompt)) / float64(max(queryLen, 1))
	if lengthRatio > maxEnhancementRatio {
		return unchanged(query, fmt.Sprintf("Enhancement exceeded length limit (%.1fx)", lengthRatio), 0.0)
	}

	similarity := keywordSimilarity(query, enhancedPrompt)
	if similarity < minSimilarityThreshold {
		return unchanged(query, fmt.Sprintf("Enhancement changed topic (similarity: %.2f)", similarity), similarity)
	}

	if strings.TrimSpace(enhancedPrompt) == "" || float64(len(enhancedPrompt)) < float64(queryLen)*minLengthRatio {
		return unchanged(query, "Enhanced version weaker than original", 0.0)
	}

	return domain.EnhancementVerdict{
		EnhancedPrompt: enhancedPrompt,
		Changes:        changes,
		ShouldEnhance:  true,
		Reason:         "Successfully enhanced",
		Similarity:     similarity,
	}
}
