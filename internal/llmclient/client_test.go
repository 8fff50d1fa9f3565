package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComplete_SendsJSONModeAndParsesContent(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"is_confidential": false}`}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", srv.Client())
	content, err := c.Complete(context.Background(), CompleteOpts{
		Model:       "llama-3.1-8b-instant",
		System:      "classify",
		User:        "some query",
		Temperature: 0.0,
		MaxTokens:   200,
		JSONMode:    true,
	})
	require.NoError(t, err)
	require.Equal(t, `{"is_confidential": false}`, content)
	require.Equal(t, map[string]any{"type": "json_object"}, toMap(captured.ResponseFormat))
	require.Equal(t, "some query", captured.Messages[1].Content)
}

func TestComplete_NoChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", srv.Client())
	_, err := c.Complete(context.Background(), CompleteOpts{Model: "m", System: "s", User: "u"})
	require.Error(t, err)
}

func toMap(m map[string]any) map[string]any { return m }
