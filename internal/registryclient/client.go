// Package registryclient fetches the caller's active model list from the
// upstream model registry, forwarding the inbound request's own bearer
// credential rather than authenticating with a router-owned key.
package registryclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/routererr"
	"github.com/lattice-run/promptrouter/internal/transport"
)

// Client fetches model descriptors from a single OpenAI-compatible
// /api/models endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New builds a Client. baseURL is the registry's root, e.g.
// "https://chat.example.com" — "/api/models" is appended per call.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTPClient: httpClient}
}

type registryModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	OwnedBy       string `json:"owned_by"`
	ContextWindow int    `json:"context_window"`
	Info          struct {
		IsActive *bool `json:"is_active"`
		Meta     struct {
			Capabilities map[string]bool `json:"capabilities"`
		} `json:"meta"`
	} `json:"info"`
}

type registryResponse struct {
	Data []registryModel `json:"data"`
}

// ListActiveModels returns every model the registry reports active,
// authenticating with authzHeader (the value of the inbound request's own
// Authorization header). Any failure — network, non-2xx, malformed body —
// degrades to an empty list per the router's "no alternatives" policy; it
// never returns an error.
func (c *Client) ListActiveModels(ctx context.Context, authzHeader string) []domain.ModelDescriptor {
	headers := map[string]string{
		"Authorization": authzHeader,
		"Content-Type":  "application/json",
	}

	body, err := transport.Get(ctx, c.HTTPClient, c.BaseURL+"/api/models", headers)
	if err != nil {
		slog.WarnContext(ctx, "model registry fetch degraded",
			slog.Any("error", &routererr.RegistryError{Err: err}))
		return nil
	}

	var parsed registryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		slog.WarnContext(ctx, "model registry fetch degraded",
			slog.Any("error", &routererr.ParseError{Stage: "registry", Raw: string(body), Err: err}))
		return nil
	}

	var active []domain.ModelDescriptor
	for _, m := range parsed.Data {
		if m.Info.IsActive != nil && !*m.Info.IsActive {
			continue
		}
		name := m.Name
		if name == "" {
			name = m.ID
		}
		var caps []string
		for cap, enabled := range m.Info.Meta.Capabilities {
			if enabled {
				caps = append(caps, cap)
			}
		}
		active = append(active, domain.ModelDescriptor{
			ID:            m.ID,
			DisplayName:   name,
			Owner:         m.OwnedBy,
			ContextWindow: m.ContextWindow,
			Capabilities:  caps,
			IsActive:      true,
		})
	}
	return active
}
