package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lattice-run/promptrouter/internal/dispatcher"
	"github.com/lattice-run/promptrouter/internal/domain"
	"github.com/lattice-run/promptrouter/internal/events"
	temporalpkg "github.com/lattice-run/promptrouter/internal/temporal"
)

// maxStreamBytes limits streaming response size to prevent memory exhaustion (100 MB).
const maxStreamBytes = 100 * 1024 * 1024

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, msg, errType string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: msg, Type: errType}})
}

// ChatCompletionsHandler implements the router's single inbound endpoint:
// an OpenAI-compatible chat completion request, decoded directly into
// domain.ChatRequest, routed by the Orchestrator, and either forwarded
// (unary or streamed) or returned to the caller as a recommendation
// envelope.
func ChatCompletionsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		var req domain.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid JSON: "+err.Error(), "invalid_request_error", http.StatusBadRequest)
			return
		}
		if len(req.Messages) == 0 {
			writeError(w, "messages is required", "invalid_request_error", http.StatusBadRequest)
			return
		}
		if req.ModelID == "" {
			writeError(w, "model is required", "invalid_request_error", http.StatusBadRequest)
			return
		}
		req.ID = reqID
		req.AuthzHeader = r.Header.Get("Authorization")

		originalModelID := req.ModelID

		out, err := d.Orchestrator.Route(r.Context(), &req)
		latencyMs := float64(time.Since(start).Milliseconds())

		if err != nil {
			status := dispatcher.StatusCode(err)
			if status == 0 {
				status = http.StatusBadGateway
			}
			d.recordFailure(r.Context(), reqID, req.ModelID, status, err)
			writeError(w, err.Error(), "server_error", status)
			return
		}

		switch {
		case out.Envelope != nil:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(out.Envelope)

			if d.Metrics != nil {
				d.Metrics.RequestsTotal.WithLabelValues("chat.completions", originalModelID, "200").Inc()
				d.Metrics.RecommendationsTotal.Inc()
			}
			if d.EventBus != nil {
				d.EventBus.Publish(events.Event{
					Type:          events.EventRecommendationIssued,
					RequestID:     reqID,
					ModelID:       originalModelID,
					RecommendedID: out.Envelope.RecommendedModel,
					Intent:        string(out.Envelope.Intent),
					Complexity:    string(out.Envelope.Complexity),
					Confidence:    out.Envelope.Confidence,
					LatencyMs:     latencyMs,
				})
			}
			d.logDecision(r.Context(), temporalpkg.DecisionAuditInput{
				RequestID:       reqID,
				Route:           "recommendation",
				OriginalModelID: originalModelID,
				FinalModelID:    out.Envelope.RecommendedModel,
				Intent:          string(out.Envelope.Intent),
				Complexity:      string(out.Envelope.Complexity),
				Confidence:      out.Envelope.Confidence,
				ShouldSwitch:    true,
				IsConfidential:  out.Envelope.IsConfidential,
				LatencyMs:       latencyMs,
			})

		case out.Stream != nil:
			d.proxyStream(w, r, out.Stream, reqID, originalModelID, req.Metadata, start)

		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(out.Body)

			if d.Metrics != nil {
				d.Metrics.RequestsTotal.WithLabelValues("chat.completions", req.ModelID, "200").Inc()
				if req.Metadata.IsConfidential {
					d.Metrics.ConfidentialOverridesTotal.Inc()
				}
			}
			if d.EventBus != nil {
				d.EventBus.Publish(events.Event{
					Type:           events.EventRoutingForwarded,
					RequestID:      reqID,
					ModelID:        originalModelID,
					RecommendedID:  req.ModelID,
					Intent:         req.Metadata.SLMIntent,
					Complexity:     req.Metadata.SLMComplexity,
					IsConfidential: req.Metadata.IsConfidential,
					LatencyMs:      latencyMs,
				})
				if req.Metadata.IsConfidential {
					d.EventBus.Publish(events.Event{
						Type:      events.EventConfidentialOverride,
						RequestID: reqID,
						ModelID:   req.ModelID,
					})
				}
			}
			d.logDecision(r.Context(), temporalpkg.DecisionAuditInput{
				RequestID:       reqID,
				Route:           "forwarded",
				OriginalModelID: originalModelID,
				FinalModelID:    req.ModelID,
				Intent:          req.Metadata.SLMIntent,
				Complexity:      req.Metadata.SLMComplexity,
				ShouldSwitch:    originalModelID != req.ModelID,
				IsConfidential:  req.Metadata.IsConfidential,
				Enhanced:        req.Metadata.SLMEnhanced,
				OriginalTokens:  req.Metadata.SLMOriginalTokens,
				TruncatedTokens: req.Metadata.SLMTruncatedTokens,
				MessagesRemoved: req.Metadata.SLMMessagesRemoved,
				LatencyMs:       latencyMs,
			})
		}

		if d.Health != nil {
			d.Health.RecordSuccess("dispatch", latencyMs)
		}
	}
}

func (d Dependencies) recordFailure(ctx context.Context, reqID, modelID string, status int, err error) {
	if d.Metrics != nil {
		d.Metrics.RequestsTotal.WithLabelValues("chat.completions", modelID, statusLabel(status)).Inc()
	}
	if d.Health != nil {
		d.Health.RecordError("dispatch", err.Error())
	}
	if d.EventBus != nil {
		var classified *dispatcher.ClassifiedError
		errClass := "unknown"
		if errors.As(err, &classified) {
			errClass = classified.Class.String()
		}
		d.EventBus.Publish(events.Event{
			Type:       events.EventStageDegraded,
			RequestID:  reqID,
			ModelID:    modelID,
			Stage:      "dispatch",
			ErrorClass: errClass,
			ErrorMsg:   err.Error(),
		})
	}
}

// sseData reports whether line is an SSE "data: ..." frame and returns its
// payload with the trailing newline and "data: " prefix stripped. Frames
// that are blank or that carry the "[DONE]" sentinel are not decodable JSON
// and are reported as non-data so callers don't try to parse them.
func sseData(line []byte) ([]byte, bool) {
	trimmed := bytes.TrimRight(line, "\r\n")
	const prefix = "data: "
	if !bytes.HasPrefix(trimmed, []byte(prefix)) {
		return nil, false
	}
	payload := bytes.TrimSpace(trimmed[len(prefix):])
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return nil, false
	}
	return payload, true
}

// proxyStream relays the backend's SSE body to the client line by line,
// flushing each line as it arrives and breaking as soon as a data frame
// reports a terminal event (done=true or a terminal status) rather than
// waiting for the backend to close the connection on its own.
func (d Dependencies) proxyStream(w http.ResponseWriter, r *http.Request, body io.ReadCloser, reqID, originalModelID string, meta domain.Metadata, start time.Time) {
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Negotiated-Model", originalModelID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	reader := bufio.NewReaderSize(body, 32*1024)
	var totalBytes int64
	streamSuccess := true
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			totalBytes += int64(len(line))
			if totalBytes > maxStreamBytes {
				slog.Warn("stream: max size exceeded, terminating",
					slog.String("request_id", reqID),
					slog.Int64("bytes", totalBytes))
				streamSuccess = false
				break
			}
			if _, writeErr := w.Write(line); writeErr != nil {
				slog.Warn("stream: write error",
					slog.String("request_id", reqID),
					slog.String("error", writeErr.Error()))
				streamSuccess = false
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
			if payload, ok := sseData(line); ok && dispatcher.IsTerminal(payload) {
				break
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				slog.Warn("stream: read error",
					slog.String("request_id", reqID),
					slog.String("error", readErr.Error()))
				streamSuccess = false
			}
			break
		}
	}

	latencyMs := float64(time.Since(start).Milliseconds())
	status := "200"
	if !streamSuccess {
		status = "stream_error"
	}
	if d.Metrics != nil {
		d.Metrics.RequestsTotal.WithLabelValues("chat.completions", originalModelID, status).Inc()
	}
	if d.EventBus != nil {
		d.EventBus.Publish(events.Event{
			Type:      events.EventRoutingForwarded,
			RequestID: reqID,
			ModelID:   originalModelID,
			LatencyMs: latencyMs,
		})
	}
	d.logDecision(r.Context(), temporalpkg.DecisionAuditInput{
		RequestID:       reqID,
		Route:           "forwarded",
		OriginalModelID: originalModelID,
		FinalModelID:    originalModelID,
		Intent:          meta.SLMIntent,
		Complexity:      meta.SLMComplexity,
		IsConfidential:  meta.IsConfidential,
		Enhanced:        meta.SLMEnhanced,
		LatencyMs:       latencyMs,
	})
}

// logDecision starts the decision-audit workflow via Temporal when
// available and the circuit breaker allows it; otherwise it falls back to
// a direct structured log line. The start call is bounded by a 5-second
// timeout and does not wait for the workflow to finish; no failure here
// reaches the caller.
func (d Dependencies) logDecision(ctx context.Context, input temporalpkg.DecisionAuditInput) {
	if d.Temporal != nil && d.CircuitBreaker != nil && d.CircuitBreaker.Allow() {
		logCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Temporal.LogDecision(logCtx, input); err != nil {
			d.CircuitBreaker.RecordFailure()
			d.directAudit(input)
			return
		}
		d.CircuitBreaker.RecordSuccess()
		return
	}
	d.directAudit(input)
}

func (d Dependencies) directAudit(input temporalpkg.DecisionAuditInput) {
	slog.Info("routing decision",
		slog.String("request_id", input.RequestID),
		slog.String("route", input.Route),
		slog.String("original_model_id", input.OriginalModelID),
		slog.String("final_model_id", input.FinalModelID),
		slog.Bool("should_switch", input.ShouldSwitch),
		slog.Bool("is_confidential", input.IsConfidential),
	)
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "200"
	case code == 429:
		return "429"
	case code == 413:
		return "413"
	case code >= 500:
		return "502"
	default:
		return "400"
	}
}
