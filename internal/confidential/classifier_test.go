package confidential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lattice-run/promptrouter/internal/llmclient"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T, handler http.HandlerFunc) *Classifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := llmclient.New(srv.URL, "test-key", srv.Client())
	return New(c, "llama-3.1-8b-instant")
}

func chatResponseWith(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestClassify_ShortQueryShortCircuits(t *testing.T) {
	called := false
	clf := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	verdict := clf.Classify(context.Background(), "hi")
	require.False(t, called)
	require.False(t, verdict.IsConfidential)
	require.Equal(t, 0, verdict.Confidence)
}

func TestClassify_FlagsConfidentialResponse(t *testing.T) {
	clf := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponseWith(
			`{"is_confidential": true, "confidence": 95, "categories": ["pii"], "reason": "contains an SSN"}`,
		))
	})
	verdict := clf.Classify(context.Background(), "my SSN is 123-45-6789")
	require.True(t, verdict.IsConfidential)
	require.Equal(t, 95, verdict.Confidence)
	require.Equal(t, []string{"pii"}, verdict.Categories)
	require.Equal(t, "contains an SSN", verdict.Reason)
}

func TestClassify_ClampsOutOfRangeConfidence(t *testing.T) {
	clf := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponseWith(`{"is_confidential": true, "confidence": 250}`))
	})
	verdict := clf.Classify(context.Background(), "what is my account number 12345678")
	require.Equal(t, 100, verdict.Confidence)
}

func TestClassify_DegradesOnUpstreamError(t *testing.T) {
	clf := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	verdict := clf.Classify(context.Background(), "does this fail gracefully please")
	require.False(t, verdict.IsConfidential)
	require.Contains(t, verdict.Reason, "unavailable")
}

func TestClassify_HandlesFencedJSONResponse(t *testing.T) {
	clf := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponseWith(
			"```json\n{\"is_confidential\": false, \"confidence\": 5}\n```",
		))
	})
	verdict := clf.Classify(context.Background(), "what is a social security number")
	require.False(t, verdict.IsConfidential)
}
