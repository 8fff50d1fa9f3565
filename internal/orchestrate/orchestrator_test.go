package orchestrate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lattice-run/promptrouter/internal/confidential"
	"github.com/lattice-run/promptrouter/internal/dispatcher"
	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/enhancer"
	"github.com/lattice-run/promptrouter/internal/llmclient"
	"github.com/lattice-run/promptrouter/internal/registryclient"
	"github.com/lattice-run/promptrouter/internal/selector"
	"github.com/stretchr/testify/require"
)

// stubResponses configures the fixed replies the fake auxiliary LLM gives
// for each of the three system-prompt shapes it can be asked to fill.
type stubResponses struct {
	confidential string
	selector     string
	enhancer     string
}

func newStubLLMServer(t *testing.T, resp stubResponses) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		system := body.Messages[0].Content

		var content string
		switch {
		case strings.Contains(system, "privacy and data-security"):
			content = resp.confidential
		case strings.Contains(system, "model selection engine"):
			content = resp.selector
		case strings.Contains(system, "prompt enhancer"):
			content = resp.enhancer
		default:
			t.Fatalf("unrecognized system prompt: %s", system)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))
}

func newRegistryServer(t *testing.T, models []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": models})
	}))
}

func newDispatchServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"dispatched","choices":[]}`))
	}))
	return srv, &gotModel
}

type harness struct {
	orch        *Orchestrator
	dispatchURL *string
	llmSrv      *httptest.Server
	regSrv      *httptest.Server
	dispSrv     *httptest.Server
}

func (h *harness) close() {
	h.llmSrv.Close()
	h.regSrv.Close()
	h.dispSrv.Close()
}

func newHarness(t *testing.T, resp stubResponses, models []map[string]any) *harness {
	t.Helper()
	llmSrv := newStubLLMServer(t, resp)
	regSrv := newRegistryServer(t, models)
	dispSrv, gotModel := newDispatchServer(t)

	client := llmclient.New(llmSrv.URL, "test-key", llmSrv.Client())
	orch := New(
		confidential.New(client, "confidential-model"),
		selector.New(client, "selector-model"),
		enhancer.New(client, "enhancer-model"),
		registryclient.New(regSrv.URL, regSrv.Client()),
		dispatcher.New(dispSrv.URL, dispSrv.Client()),
		"groq/compound",
	)
	return &harness{orch: orch, dispatchURL: gotModel, llmSrv: llmSrv, regSrv: regSrv, dispSrv: dispSrv}
}

func baseRequest() *domain.ChatRequest {
	return &domain.ChatRequest{
		ModelID: "model-a",
		Messages: []domain.Message{
			{Role: "system", Content: "be helpful"},
			{Role: "user", Content: "explain how merge sort works step by step please"},
		},
		AuthzHeader: "Bearer user-token",
	}
}

func TestRoute_BypassOnImageGeneration(t *testing.T) {
	h := newHarness(t, stubResponses{}, nil)
	defer h.close()

	req := baseRequest()
	req.Metadata.ImageGeneration = true

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, out.Envelope)
	require.Contains(t, string(out.Body), "dispatched")
	require.Equal(t, "model-a", *h.dispatchURL)
	require.False(t, req.Metadata.SLMProcessed)
}

func TestRoute_ProcessedPassesThrough(t *testing.T) {
	h := newHarness(t, stubResponses{}, nil)
	defer h.close()

	req := baseRequest()
	req.Metadata.SLMProcessed = true

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, out.Envelope)
	require.Equal(t, "model-a", *h.dispatchURL)
}

func TestRoute_AcceptDecisionRunsEnhancementOnlyAndMarksProcessed(t *testing.T) {
	resp := stubResponses{
		confidential: `{"is_confidential": false, "confidence": 5}`,
		enhancer:     `{"enhanced_prompt": "Please explain how merge sort works step by step, including complexity analysis.", "should_enhance": true}`,
	}
	h := newHarness(t, resp, nil)
	defer h.close()

	req := baseRequest()
	req.Metadata.SLMDecision = "accept"

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, out.Envelope)
	require.Equal(t, "model-a", *h.dispatchURL) // unchanged, decision path never re-selects
	require.True(t, req.Metadata.SLMProcessed)
	require.False(t, req.Metadata.IsConfidential)
}

func TestRoute_EnabledSwitchReturnsRecommendationEnvelope(t *testing.T) {
	// Scenario: selector returns a different id with confidence 82; no dispatch occurs.
	resp := stubResponses{
		confidential: `{"is_confidential": false, "confidence": 0}`,
		selector:     `{"recommended_model": "model-b", "intent": "code_generation", "complexity": "complex", "reason": "bigger context", "confidence": 82}`,
	}
	models := []map[string]any{
		{"id": "model-a", "name": "Model A", "info": map[string]any{"is_active": true}},
		{"id": "model-b", "name": "Model B", "context_window": 128000, "info": map[string]any{"is_active": true}},
	}
	h := newHarness(t, resp, models)
	defer h.close()

	req := baseRequest()
	req.Metadata.SLMEnabled = true

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, out.Envelope)
	require.Equal(t, "model_recommendation", out.Envelope.Type)
	require.Equal(t, "model-b", out.Envelope.RecommendedModel)
	require.Equal(t, 82, out.Envelope.Confidence)
	require.LessOrEqual(t, len(out.Envelope.Alternatives), 2)
	require.Empty(t, *h.dispatchURL, "no backend dispatch should occur")
}

func TestRoute_EnabledNoSwitchForwardsAndMarksProcessed(t *testing.T) {
	resp := stubResponses{
		confidential: `{"is_confidential": false, "confidence": 0}`,
		selector:     `{"recommended_model": "model-a", "intent": "question_answering", "complexity": "simple", "confidence": 60}`,
		enhancer:     `{"should_enhance": false}`,
	}
	models := []map[string]any{{"id": "model-a", "info": map[string]any{"is_active": true}}}
	h := newHarness(t, resp, models)
	defer h.close()

	req := baseRequest()
	req.Metadata.SLMEnabled = true

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, out.Envelope)
	require.Equal(t, "model-a", *h.dispatchURL)
	require.True(t, req.Metadata.SLMProcessed)
	require.Equal(t, "question_answering", req.Metadata.SLMIntent)
}

func TestRoute_DisabledSilentlySwapsModel(t *testing.T) {
	resp := stubResponses{
		confidential: `{"is_confidential": false, "confidence": 0}`,
		selector:     `{"recommended_model": "model-b", "intent": "analysis", "complexity": "complex", "confidence": 75}`,
		enhancer:     `{"should_enhance": false}`,
	}
	models := []map[string]any{
		{"id": "model-a", "info": map[string]any{"is_active": true}},
		{"id": "model-b", "info": map[string]any{"is_active": true}},
	}
	h := newHarness(t, resp, models)
	defer h.close()

	req := baseRequest()
	req.Metadata.SLMEnabled = false

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, out.Envelope)
	require.Equal(t, "model-b", *h.dispatchURL)
	require.Equal(t, "model-b", req.ModelID)
	require.True(t, req.Metadata.SLMProcessed)
}

func TestRoute_ConfidentialOverrideWinsRegardlessOfSelector(t *testing.T) {
	resp := stubResponses{
		confidential: `{"is_confidential": true, "confidence": 97, "categories": ["pii"], "reason": "contains an SSN"}`,
		enhancer:     `{"should_enhance": false}`,
	}
	models := []map[string]any{
		{"id": "model-a", "info": map[string]any{"is_active": true}},
		{"id": "groq/compound", "info": map[string]any{"is_active": true}},
	}
	h := newHarness(t, resp, models)
	defer h.close()

	req := baseRequest()
	req.Messages[len(req.Messages)-1].Content = "my SSN is 123-45-6789, can you help me file taxes"
	req.Metadata.SLMEnabled = false

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, out.Envelope)
	require.Equal(t, "groq/compound", *h.dispatchURL)
	require.True(t, req.Metadata.IsConfidential)
}

func TestRoute_NoUserMessagePassesThrough(t *testing.T) {
	h := newHarness(t, stubResponses{}, nil)
	defer h.close()

	req := baseRequest()
	req.Messages = []domain.Message{{Role: "system", Content: "sys only"}}

	out, err := h.orch.Route(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, out.Envelope)
	require.Equal(t, "model-a", *h.dispatchURL)
}
