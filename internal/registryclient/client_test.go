package registryclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListActiveModels_FiltersInactiveAndForwardsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/api/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "model-a", "name": "Model A", "context_window": 8000, "info": map[string]any{"is_active": true}},
				{"id": "model-b", "name": "Model B", "info": map[string]any{"is_active": false}},
				{"id": "model-c"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	models := c.ListActiveModels(context.Background(), "Bearer user-token")

	require.Equal(t, "Bearer user-token", gotAuth)
	require.Len(t, models, 2)
	require.Equal(t, "model-a", models[0].ID)
	require.Equal(t, "model-c", models[1].ID)
}

func TestListActiveModels_DegradesOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	models := c.ListActiveModels(context.Background(), "Bearer user-token")
	require.Nil(t, models)
}
