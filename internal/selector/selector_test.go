package selector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/llmclient"
	"github.com/stretchr/testify/require"
)

func newTestSelector(t *testing.T, handler http.HandlerFunc) *Selector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(llmclient.New(srv.URL, "test-key", srv.Client()), "llama-3.1-8b-instant")
}

func chatResponseWith(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
	}
}

func TestSelect_NoModelsReturnsIdentity(t *testing.T) {
	s := newTestSelector(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not call LLM with no candidates")
	})
	got := s.Select(context.Background(), "explain recursion", "current-model", nil)
	require.Equal(t, "current-model", got.RecommendedModelID)
	require.False(t, got.ShouldSwitch)
}

func TestSelect_RejectsUnknownRecommendation(t *testing.T) {
	s := newTestSelector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponseWith(`{"recommended_model": "not-in-list", "confidence": 90}`))
	})
	models := []domain.ModelDescriptor{{ID: "model-a"}, {ID: "model-b"}}
	got := s.Select(context.Background(), "q", "model-a", models)
	require.Equal(t, "model-a", got.RecommendedModelID)
	require.False(t, got.ShouldSwitch)
}

func TestSelect_AcceptsValidSwitch(t *testing.T) {
	s := newTestSelector(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponseWith(
			`{"recommended_model": "model-b", "intent": "code_generation", "complexity": "complex", "reason": "bigger context", "confidence": 82}`,
		))
	})
	models := []domain.ModelDescriptor{{ID: "model-a"}, {ID: "model-b"}}
	got := s.Select(context.Background(), "write a merge sort", "model-a", models)
	require.Equal(t, "model-b", got.RecommendedModelID)
	require.True(t, got.ShouldSwitch)
	require.Equal(t, domain.IntentCodeGeneration, got.Intent)
	require.Equal(t, 82, got.Confidence)
}

func TestSelect_DegradesOnUpstreamError(t *testing.T) {
	s := newTestSelector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	models := []domain.ModelDescriptor{{ID: "model-a"}}
	got := s.Select(context.Background(), "q", "model-a", models)
	require.Equal(t, "model-a", got.RecommendedModelID)
	require.False(t, got.ShouldSwitch)
	require.Equal(t, 50, got.Confidence)
}

func TestTopAlternatives_ScoresAndSortsAndCaps(t *testing.T) {
	models := []domain.ModelDescriptor{
		{ID: "recommended-model"},
		{ID: "qwen-coder", ContextWindow: 32000},
		{ID: "llama-3.1-8b-instant", ContextWindow: 8000},
		{ID: "some-70b-model", ContextWindow: 200_000},
		{ID: "plain-model", ContextWindow: 4000},
	}
	alts := TopAlternatives(domain.IntentCodeGeneration, "recommended-model", models)
	require.Len(t, alts, 2)
	require.Equal(t, "qwen-coder", alts[0].ModelID)
	require.Equal(t, 80, alts[0].Score)
}

func TestTopAlternatives_ContextWindowBonus(t *testing.T) {
	models := []domain.ModelDescriptor{
		{ID: "big-context", ContextWindow: 150_000},
		{ID: "small-context", ContextWindow: 1_000},
	}
	alts := TopAlternatives(domain.IntentUnknown, "irrelevant", models)
	require.Equal(t, "big-context", alts[0].ModelID)
	require.Equal(t, 60, alts[0].Score)
	require.Equal(t, 50, alts[1].Score)
}
