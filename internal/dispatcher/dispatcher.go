// Package dispatcher forwards a finalized chat request to an
// OpenAI-compatible backend, unary or streaming. It does not retry: a
// single shot is attempted and failures surface with the backend's own
// HTTP status, per the router's degrade-never-amplify-latency policy.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/routererr"
	"github.com/lattice-run/promptrouter/internal/transport"
)

// ErrorClass buckets a backend failure for observability; the dispatcher
// itself never acts on the class (no retries), it only annotates.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrContextOverflow
	ErrRateLimited
	ErrTransient
	ErrFatal
)

// ClassifiedError wraps a dispatch failure with a best-effort class and
// retry hint, mirroring how the backend's own error body is shaped.
type ClassifiedError struct {
	Err        error
	Class      ErrorClass
	RetryAfter int
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

func (c ErrorClass) String() string {
	switch c {
	case ErrContextOverflow:
		return "context_overflow"
	case ErrRateLimited:
		return "rate_limited"
	case ErrTransient:
		return "transient"
	case ErrFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func classify(statusCode int, retryAfter int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case statusCode == http.StatusRequestEntityTooLarge:
		return ErrContextOverflow
	case statusCode >= 500:
		return ErrTransient
	default:
		return ErrFatal
	}
}

// chatCompletionRequest is the OpenAI-compatible wire body sent to the
// backend, built from the router's finalized domain.ChatRequest.
type chatCompletionRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`
}

func toWireRequest(req *domain.ChatRequest) chatCompletionRequest {
	body := chatCompletionRequest{Model: req.ModelID, Messages: req.Messages, Stream: req.Stream}
	return body
}

// Dispatcher sends a finalized request to a single OpenAI-compatible
// backend endpoint.
type Dispatcher struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New builds a Dispatcher targeting baseURL, e.g.
// "https://api.groq.com/openai/v1".
func New(baseURL string, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Dispatcher{BaseURL: baseURL, HTTPClient: httpClient}
}

// Dispatch forwards a non-streaming request and returns the backend's raw
// JSON body. Errors are wrapped in routererr.DispatchError so the HTTP layer
// can surface the backend's own status code.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.ChatRequest) ([]byte, error) {
	headers := map[string]string{"Authorization": req.AuthzHeader}
	body, err := transport.Do(ctx, d.HTTPClient, d.BaseURL+"/chat/completions", toWireRequest(req), headers)
	if err != nil {
		return nil, wrapDispatchErr(err)
	}
	return body, nil
}

// DispatchStream forwards a streaming request and returns the raw SSE body
// for line-by-line proxying. The caller owns closing the returned stream.
func (d *Dispatcher) DispatchStream(ctx context.Context, req *domain.ChatRequest) (io.ReadCloser, error) {
	headers := map[string]string{"Authorization": req.AuthzHeader}
	stream, err := transport.DoStream(ctx, d.HTTPClient, d.BaseURL+"/chat/completions", toWireRequest(req), headers)
	if err != nil {
		return nil, wrapDispatchErr(err)
	}
	return stream, nil
}

func wrapDispatchErr(err error) error {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		class := classify(statusErr.StatusCode, statusErr.RetryAfterSecs)
		return &ClassifiedError{
			Err:        &routererr.DispatchError{StatusCode: statusErr.StatusCode, Body: statusErr.Body},
			Class:      class,
			RetryAfter: statusErr.RetryAfterSecs,
		}
	}
	return &ClassifiedError{Err: fmt.Errorf("dispatch failed: %w", err), Class: ErrTransient}
}

// StatusCode extracts the backend's own HTTP status from a dispatch error,
// defaulting to 502 when the failure never reached the backend at all.
func StatusCode(err error) int {
	var de *routererr.DispatchError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return http.StatusBadGateway
}

// sseEvent is one decoded "data: {...}" line from a backend's event stream,
// used only to detect the terminal event when proxying.
type sseEvent struct {
	Done   bool   `json:"done"`
	Status string `json:"status"`
}

// IsTerminal reports whether a raw SSE data payload marks stream end.
func IsTerminal(data []byte) bool {
	var ev sseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return false
	}
	if ev.Done {
		return true
	}
	switch ev.Status {
	case "succeeded", "failed", "timeout":
		return true
	}
	return false
}
