// Package confidential implements the router's privacy classifier: a single
// LLM call that flags whether a user query contains actual sensitive values
// (not merely a question about a sensitive topic). It never blocks routing —
// any failure or ambiguity degrades to a non-confidential verdict.
package confidential

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/jsonutil"
	"github.com/lattice-run/promptrouter/internal/llmclient"
	"github.com/lattice-run/promptrouter/internal/routererr"
)

const minQueryLen = 5

const systemPrompt = `You are a privacy and data-security classifier.

Your only job is to detect whether the user query contains confidential or sensitive information.

Categories to check:
- pii: full names combined with ID numbers, social security numbers, passport numbers, national IDs, date-of-birth + name combos, home addresses
- credentials: passwords, API keys, tokens, secret keys, private keys
- financial: bank account numbers, credit/debit card numbers, CVVs, PINs, transaction details
- medical: health diagnoses, prescriptions, patient records, insurance details
- internal_business: unreleased product details, internal project codes, employee salary data, M&A information

IMPORTANT RULES:
- A query that ASKS ABOUT these topics (e.g. "what is an SSN?") is NOT confidential.
- A query that CONTAINS actual confidential values (e.g. "my SSN is 123-45-6789") IS confidential.
- General business questions, coding questions, and general knowledge are NOT confidential.
- Be conservative — only flag when you are highly confident actual sensitive data is present.

Respond ONLY with valid JSON, no explanation:
{
  "is_confidential": true/false,
  "confidence": 0-100,
  "categories": ["pii", "credentials", "financial", "medical", "internal_business"],
  "reason": "one-sentence human-readable explanation of what sensitive data was found, or why it is safe"
}`

// safeFallback is returned whenever detection cannot run or fails: routing
// must never stall or error out because the privacy classifier is down.
func safeFallback() domain.ConfidentialityVerdict {
	return domain.ConfidentialityVerdict{
		IsConfidential: false,
		Confidence:     0,
		Categories:     nil,
		Reason:         "Detection unavailable — treated as non-confidential",
	}
}

// Classifier detects confidential content in a user query via one bounded
// LLM call against the shared llmclient.
type Classifier struct {
	Client  *llmclient.Client
	ModelID string
}

// New constructs a Classifier bound to the given model id, typically a
// small, fast model since this call sits on the router's critical path.
func New(client *llmclient.Client, modelID string) *Classifier {
	return &Classifier{Client: client, ModelID: modelID}
}

// Classify returns a verdict for the given query. It never returns an error:
// any upstream failure degrades to safeFallback per the router's
// never-block-on-a-degraded-stage policy.
func (c *Classifier) Classify(ctx context.Context, query string) domain.ConfidentialityVerdict {
	if len(strings.TrimSpace(query)) < minQueryLen {
		return safeFallback()
	}

	content, err := c.Client.Complete(ctx, llmclient.CompleteOpts{
		Model:       c.ModelID,
		System:      systemPrompt,
		User:        "Classify this query:\n" + query,
		Temperature: 0.0,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		slog.WarnContext(ctx, "confidentiality classification degraded",
			slog.Any("error", &routererr.ClassifierError{Err: err}))
		return safeFallback()
	}

	obj := jsonutil.ExtractObject(content)
	if len(obj) == 0 {
		slog.WarnContext(ctx, "confidentiality classification degraded",
			slog.Any("error", &routererr.ParseError{Stage: "confidential", Raw: content, Err: errors.New("no JSON object found")}))
	}
	return domain.ConfidentialityVerdict{
		IsConfidential: jsonutil.Bool(obj, "is_confidential", false),
		Confidence:     jsonutil.Int(obj, "confidence", 0, 0, 100),
		Categories:     jsonutil.StringSlice(obj, "categories"),
		Reason:         jsonutil.String(obj, "reason", "No details provided"),
	}
}
