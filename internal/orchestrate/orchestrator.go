// Package orchestrate implements the routing state machine: the single
// place that decides, for a given chat request, whether to bypass routing
// entirely, run the confidentiality/selection/enhancement pipeline, return a
// recommendation to the client, or silently swap models and forward.
//
// The dispatch decision follows one transition table keyed on four derived
// flags — bypass_routing, decision, enabled, processed — implemented as the
// four cases in Route below. Any change to routing behavior belongs in this
// file, row-for-row against that table, not scattered across guards
// elsewhere.
package orchestrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-run/promptrouter/internal/confidential"
	"github.com/lattice-run/promptrouter/internal/conversation"
	"github.com/lattice-run/promptrouter/internal/dispatcher"
	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/enhancer"
	"github.com/lattice-run/promptrouter/internal/estimate"
	"github.com/lattice-run/promptrouter/internal/registryclient"
	"github.com/lattice-run/promptrouter/internal/routererr"
	"github.com/lattice-run/promptrouter/internal/selector"
)

// Outcome is exactly one of: a recommendation envelope (no dispatch
// occurred), a unary dispatch body, or a streaming dispatch body.
type Outcome struct {
	Envelope *domain.RecommendationEnvelope
	Body     []byte
	Stream   io.ReadCloser
}

// Orchestrator wires the four auxiliary stages and the backend dispatcher
// into the routing decision described above.
type Orchestrator struct {
	Confidential        *confidential.Classifier
	Selector            *selector.Selector
	Enhancer            *enhancer.Enhancer
	Registry            *registryclient.Client
	Dispatcher          *dispatcher.Dispatcher
	ConfidentialModelID string
}

// New wires an Orchestrator from its five collaborators.
func New(c *confidential.Classifier, s *selector.Selector, e *enhancer.Enhancer, r *registryclient.Client, d *dispatcher.Dispatcher, confidentialModelID string) *Orchestrator {
	return &Orchestrator{
		Confidential:        c,
		Selector:            s,
		Enhancer:            e,
		Registry:            r,
		Dispatcher:          d,
		ConfidentialModelID: confidentialModelID,
	}
}

// Route decides and executes the routing outcome for req, mutating req's
// Messages/ModelID/Metadata in place to reflect what was actually forwarded.
func (o *Orchestrator) Route(ctx context.Context, req *domain.ChatRequest) (*Outcome, error) {
	lastUserIdx, query := req.LastUserMessage()

	bypass := req.Metadata.ImageGeneration || req.Metadata.VideoGeneration || req.Metadata.Task != ""
	if bypass || req.Metadata.SLMProcessed || lastUserIdx == -1 {
		return o.forward(ctx, req)
	}

	switch req.Metadata.SLMDecision {
	case "accept", "reject":
		return o.enhancementOnly(ctx, req, query)
	}

	if req.Metadata.SLMEnabled {
		return o.routeEnabled(ctx, req, query)
	}
	return o.routeDisabled(ctx, req, query)
}

// enhancementOnly handles slm_decision ∈ {accept, reject}: the client has
// already resolved a prior recommendation, so only confidentiality
// bookkeeping and enhancement run — no model fetch, no re-selection.
func (o *Orchestrator) enhancementOnly(ctx context.Context, req *domain.ChatRequest, query string) (*Outcome, error) {
	verdict := o.Confidential.Classify(ctx, query)
	intent := domain.IntentUnknown
	if verdict.IsConfidential {
		intent = domain.IntentConfidential
	}

	o.applyTruncationAndEnhancement(ctx, req, query, req.ModelID, intent, domain.ComplexityMedium, verdict)
	return o.forward(ctx, req)
}

// routeEnabled implements "¬processed ∧ enabled": the client wants to see
// recommendations rather than have the router switch models silently.
func (o *Orchestrator) routeEnabled(ctx context.Context, req *domain.ChatRequest, query string) (*Outcome, error) {
	verdict, models, err := o.classifyAndFetch(ctx, req, query)
	if err != nil {
		return nil, err
	}

	decision := o.selectWithOverride(ctx, query, req.ModelID, models, verdict)

	if decision.ShouldSwitch {
		return &Outcome{Envelope: o.buildEnvelope(req, decision, models, verdict)}, nil
	}

	o.applyTruncationAndEnhancement(ctx, req, query, req.ModelID, decision.Intent, decision.Complexity, verdict)
	return o.forward(ctx, req)
}

// routeDisabled implements "¬processed ∧ ¬enabled": the router may switch
// models silently, without surfacing a recommendation to the client.
func (o *Orchestrator) routeDisabled(ctx context.Context, req *domain.ChatRequest, query string) (*Outcome, error) {
	verdict, models, err := o.classifyAndFetch(ctx, req, query)
	if err != nil {
		return nil, err
	}

	decision := o.selectWithOverride(ctx, query, req.ModelID, models, verdict)

	finalModelID := req.ModelID
	if decision.ShouldSwitch {
		finalModelID = decision.RecommendedModelID
	}

	o.applyTruncationAndEnhancement(ctx, req, query, finalModelID, decision.Intent, decision.Complexity, verdict)
	return o.forward(ctx, req)
}

// classifyAndFetch runs the confidentiality classifier and the registry
// fetch concurrently: neither depends on the other's result, and the router
// budgets zero added latency for running them in sequence.
func (o *Orchestrator) classifyAndFetch(ctx context.Context, req *domain.ChatRequest, query string) (domain.ConfidentialityVerdict, []domain.ModelDescriptor, error) {
	var verdict domain.ConfidentialityVerdict
	var models []domain.ModelDescriptor

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		verdict = o.Confidential.Classify(gctx, query)
		return nil
	})
	g.Go(func() error {
		models = o.Registry.ListActiveModels(gctx, req.AuthzHeader)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ConfidentialityVerdict{}, nil, fmt.Errorf("classify/fetch barrier: %w", err)
	}
	return verdict, models, nil
}

// selectWithOverride runs the model selector and then applies the
// confidential override, which is never itself subject to should_switch
// logic from the selector — a confidential query always wins.
func (o *Orchestrator) selectWithOverride(ctx context.Context, query, currentModelID string, models []domain.ModelDescriptor, verdict domain.ConfidentialityVerdict) domain.RoutingDecision {
	if verdict.IsConfidential {
		return domain.RoutingDecision{
			RecommendedModelID: o.ConfidentialModelID,
			Intent:             domain.IntentConfidential,
			Complexity:         domain.ComplexityMedium,
			Reason:             verdict.Reason,
			Confidence:         verdict.Confidence,
			ShouldSwitch:       o.ConfidentialModelID != currentModelID,
		}
	}
	return o.Selector.Select(ctx, query, currentModelID, models)
}

// applyTruncationAndEnhancement runs the prompt enhancer first, splices its
// verdict into the last user message, and only then truncates the rewritten
// list to finalModelID's budget — enhancement can legally grow a message
// (up to the enhancer's own length guard), and that growth must still be
// subject to the budget check, not appended after it. It rewrites req in
// place with the truncated, enhanced history, the resolved model id, and the
// outbound observability metadata.
func (o *Orchestrator) applyTruncationAndEnhancement(ctx context.Context, req *domain.ChatRequest, query, finalModelID string, intent domain.Intent, complexity domain.Complexity, verdict domain.ConfidentialityVerdict) {
	mgr := conversation.New(finalModelID)
	originalTokens := estimate.Messages(req.Messages)

	enh := o.Enhancer.Enhance(ctx, query, intent, complexity)
	finalPrompt := query
	if enh.ShouldEnhance {
		finalPrompt = enh.EnhancedPrompt
	}
	rewritten := replaceLastUserMessage(req.Messages, finalPrompt)

	truncated := mgr.Truncate(rewritten, conversation.SlidingWindow)
	truncatedTokens := estimate.Messages(truncated)
	messagesRemoved := len(rewritten) - len(truncated)
	budgetExceeded := truncatedTokens > mgr.MaxHistoryTokens

	req.Messages = truncated
	req.ModelID = finalModelID
	req.Metadata.SLMProcessed = true
	req.Metadata.SLMIntent = string(intent)
	req.Metadata.SLMComplexity = string(complexity)
	req.Metadata.SLMEnhanced = enh.ShouldEnhance
	req.Metadata.SLMSimilarity = enh.Similarity
	req.Metadata.SLMOriginalTokens = originalTokens
	req.Metadata.SLMTruncatedTokens = truncatedTokens
	req.Metadata.SLMMessagesRemoved = messagesRemoved
	req.Metadata.SLMBudgetExceeded = budgetExceeded
	req.Metadata.SLMEnhanceReason = enh.Reason
	req.Metadata.IsConfidential = verdict.IsConfidential
	req.Metadata.ConfidentialReason = verdict.Reason

	if budgetExceeded {
		slog.WarnContext(ctx, "token budget exceeded after truncation, forwarding as-is",
			slog.Any("error", &routererr.BudgetError{
				ModelID:          finalModelID,
				EstimatedTokens:  truncatedTokens,
				MaxHistoryTokens: mgr.MaxHistoryTokens,
			}))
	}
}

func replaceLastUserMessage(messages []domain.Message, content string) []domain.Message {
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == "user" {
			out[i] = domain.Message{Role: "user", Content: content}
			break
		}
	}
	return out
}

func (o *Orchestrator) buildEnvelope(req *domain.ChatRequest, decision domain.RoutingDecision, models []domain.ModelDescriptor, verdict domain.ConfidentialityVerdict) *domain.RecommendationEnvelope {
	return &domain.RecommendationEnvelope{
		Type:             "model_recommendation",
		CurrentModel:     req.ModelID,
		RecommendedModel: decision.RecommendedModelID,
		Reason:           decision.Reason,
		Intent:           decision.Intent,
		Complexity:       decision.Complexity,
		Confidence:       decision.Confidence,
		Alternatives:     selector.TopAlternatives(decision.Intent, decision.RecommendedModelID, models),
		IsConfidential:   verdict.IsConfidential,
		ConfidentialInfo: verdict.Reason,
		Message:          fmt.Sprintf("Recommending %s instead of %s", decision.RecommendedModelID, req.ModelID),
	}
}

// forward dispatches req to the backend, streaming or unary, unchanged
// except for whatever applyTruncationAndEnhancement already applied.
func (o *Orchestrator) forward(ctx context.Context, req *domain.ChatRequest) (*Outcome, error) {
	if req.Stream {
		stream, err := o.Dispatcher.DispatchStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{Stream: stream}, nil
	}
	body, err := o.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Outcome{Body: body}, nil
}
