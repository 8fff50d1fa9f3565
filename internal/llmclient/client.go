// Package llmclient is the single OpenAI-compatible chat-completions client
// shared by the confidentiality classifier, model selector, and prompt
// enhancer. Each of those stages differs only in system prompt, temperature,
// and max_tokens — this package owns the wire format and JSON-mode plumbing
// so the stages stay focused on their own decision logic.
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lattice-run/promptrouter/internal/transport"
)

// Client calls a single OpenAI-compatible chat-completions endpoint used for
// the router's own auxiliary decisions (never for the user-facing backend
// dispatch, which lives in the dispatcher package).
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// New builds a Client. baseURL should include the full path up to but
// excluding "/chat/completions", e.g. "https://api.groq.com/openai/v1".
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTPClient: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteOpts configures a single completion call.
type CompleteOpts struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSONMode forces response_format: {"type": "json_object"}. Every
	// router-internal caller (classifier, selector, enhancer) sets this.
	JSONMode bool
}

// Complete issues one chat-completions call and returns the raw assistant
// message content. Callers pass that content through jsonutil.ExtractObject
// since even JSON-mode responses can arrive wrapped in prose or fences.
func (c *Client) Complete(ctx context.Context, opts CompleteOpts) (string, error) {
	req := chatRequest{
		Model: opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: opts.System},
			{Role: "user", Content: opts.User},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}

	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	body, err := transport.Do(ctx, c.HTTPClient, c.BaseURL+"/chat/completions", req, headers)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
