package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-run/promptrouter/internal/circuitbreaker"
	"github.com/lattice-run/promptrouter/internal/events"
	"github.com/lattice-run/promptrouter/internal/health"
	"github.com/lattice-run/promptrouter/internal/idempotency"
	"github.com/lattice-run/promptrouter/internal/metrics"
	"github.com/lattice-run/promptrouter/internal/orchestrate"
	"github.com/lattice-run/promptrouter/internal/ratelimit"
	"github.com/lattice-run/promptrouter/internal/temporal"
)

// Dependencies wires the router's HTTP layer to the orchestrator and the
// ambient observability/resilience stack around it.
type Dependencies struct {
	Orchestrator *orchestrate.Orchestrator
	Metrics      *metrics.Registry
	EventBus     *events.Bus
	Health       *health.Tracker

	// Temporal is nil when the decision-audit workflow is disabled; logging
	// falls back to direct slog lines in that case.
	Temporal       *temporal.Manager
	CircuitBreaker *circuitbreaker.Breaker

	RateLimiter *ratelimit.Limiter
	Idempotency *idempotency.Cache
}

func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/healthz", healthzHandler(d))
	r.Handle("/metrics", d.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}
		if d.Idempotency != nil {
			r.Use(idempotency.Middleware(d.Idempotency))
		}
		r.Post("/chat/completions", ChatCompletionsHandler(d))
	})
}

func healthzHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if d.Orchestrator == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "unhealthy", "reason": "orchestrator not wired"})
			return
		}

		status := "ok"
		code := http.StatusOK
		targets := map[string]string{}
		if d.Health != nil {
			for _, s := range d.Health.AllStats() {
				targets[s.TargetID] = string(s.State)
				if s.State == health.StateDown {
					status = "degraded"
				}
			}
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  status,
			"targets": targets,
		})
	}
}
